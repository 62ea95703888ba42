package repository

import "errors"

var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrSessionNotFound = errors.New("session not found")
)
