package app

import (
	"errors"
	"fmt"

	"supportchat/internal/repository"
)

var (
	// ErrValidation marks bad request shape or content. It never reaches the
	// AI or storage.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a storage failure. Part of the exchange may already
	// be written.
	ErrPersistence = errors.New("persistence failed")
	// ErrAIUnavailable is absorbed by the fallback answer and only logged.
	ErrAIUnavailable = errors.New("ai unavailable")
)

func classifyStoreErr(err error) error {
	if errors.Is(err, repository.ErrInvalidMessage) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
