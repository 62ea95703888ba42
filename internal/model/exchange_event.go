package model

import "time"

const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// ExchangeEvent is published once a user message and its reply are both stored.
type ExchangeEvent struct {
	SessionID          string    `json:"session_id"`
	UserMessageID      uint      `json:"user_message_id"`
	AssistantMessageID uint      `json:"assistant_message_id"`
	Source             string    `json:"source"`
	CompletedAt        time.Time `json:"completed_at"`
}
