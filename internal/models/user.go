package models

import (
	"time"
)

// Auth sources
const (
	AuthSourceLocal  = "local"
	AuthSourceGoogle = "google"
)

type User struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string // Google-only users have empty password
	FullName     string `gorm:"not null"`
	AvatarURL    string
	Role         string `gorm:"not null;default:'user'"` // "admin" or "user"

	// Federated login support
	GoogleID      string `gorm:"index"`
	AuthSource    string `gorm:"default:'local'"` // "local" or "google"
	EmailVerified bool

	IsActive bool `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// HasPassword returns true if the user can authenticate with a local password
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
