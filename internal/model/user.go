package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role values carried in the access token claims
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is an account holder. Emails are stored lower-cased and their
// uniqueness is enforced case-insensitively by a unique index on
// lower(email), created in the migration; that index is what actually
// guarantees uniqueness under concurrent registration, the service-level
// pre-check only improves the error path.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FirstName string    `gorm:"column:first_name;not null"`
	LastName  string    `gorm:"column:last_name;not null"`
	Email     string    `gorm:"column:email;not null"`
	Password  string    `gorm:"column:password;not null"`
	Role      string    `gorm:"column:role;not null;default:USER"`
	Enabled   bool      `gorm:"column:enabled;not null;default:true"`
	LastLogin time.Time `gorm:"column:last_login"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
