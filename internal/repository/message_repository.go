package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"supportchat/internal/model"
)

type MessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db, now: utcNow}
}

// Append stores a message and bumps the owning session's updated_at in the
// same transaction. Neither created_at nor updated_at moves backwards, so
// (created_at, id) order always equals insertion order.
func (r *MessageRepository) Append(ctx context.Context, sessionID, role, content string) (uint, error) {
	if !model.ValidRole(role) {
		return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, role)
	}
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}

	message := &model.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: r.now(),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup session failed: %w", err)
		}
		if count == 0 {
			return ErrSessionNotFound
		}

		var latest []model.Message
		err := tx.Select("created_at").
			Where("session_id = ?", sessionID).
			Order("created_at DESC").Order("id DESC").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return fmt.Errorf("lookup latest message failed: %w", err)
		}
		if len(latest) == 1 && message.CreatedAt.Before(latest[0].CreatedAt) {
			message.CreatedAt = latest[0].CreatedAt
		}

		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("create message failed: %w", err)
		}
		err = tx.Model(&model.Session{}).
			Where("id = ? AND updated_at < ?", sessionID, message.CreatedAt).
			UpdateColumn("updated_at", message.CreatedAt).Error
		if err != nil {
			return fmt.Errorf("touch session failed: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return 0, fmt.Errorf("append message to %q: %w", sessionID, err)
		}
		return 0, fmt.Errorf("append message failed: %w", err)
	}
	return message.ID, nil
}

// RecentWindow returns the newest limit messages of the session, oldest first.
func (r *MessageRepository) RecentWindow(ctx context.Context, sessionID string, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}

	turns := make([]model.Turn, len(messages))
	for i, m := range messages {
		turns[len(messages)-1-i] = model.Turn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

// FullHistory returns the whole conversation, oldest first. An unknown session
// yields an empty slice.
func (r *MessageRepository) FullHistory(ctx context.Context, sessionID string) ([]model.Turn, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}

	turns := make([]model.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, model.Turn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

// Count returns how many messages the session holds.
func (r *MessageRepository) Count(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Message{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return count, nil
}
