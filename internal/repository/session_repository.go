package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"supportchat/internal/model"
)

type SessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db, now: utcNow}
}

// Ensure inserts the session if it is absent. Existing rows, including their
// timestamps, are left untouched.
func (r *SessionRepository) Ensure(ctx context.Context, sessionID string) error {
	now := r.now()
	session := &model.Session{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(session).Error
	if err != nil {
		return fmt.Errorf("ensure session failed: %w", err)
	}
	return nil
}

// List returns every session, most recently active first.
func (r *SessionRepository) List(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Order("id ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
