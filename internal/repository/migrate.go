package repository

import (
	"fmt"

	"gorm.io/gorm"

	"supportchat/internal/model"
)

// Migrate creates the sessions and messages tables when they do not exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Session{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}
