package database

import (
	"fmt"

	"github.com/launchkit/identity/internal/model"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema for the persisted state:
// users (unique email) and refresh tokens (unique token value, user FK).
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
	); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}

	// Email uniqueness is case-insensitive: the unique index is on
	// lower(email), which gorm tags cannot express
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email))",
	).Error; err != nil {
		return fmt.Errorf("failed to create email index: %w", err)
	}

	return nil
}
