package model

import "time"

// Session is one conversation, keyed by the id the client generated.
type Session struct {
	ID        string    `gorm:"primaryKey;size:191" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}
