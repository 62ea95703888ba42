package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is append-only. Within a session messages are ordered by
// (CreatedAt, ID).
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:191;not null;index:idx_messages_session_created,priority:1" json:"session_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_session_created,priority:2" json:"created_at"`
}

// Turn is the role/content view of a message used for prompts and history
// responses.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
