package models

import (
	"time"
)

// AuthorizationCode is a single-use credential issued during the
// authorization code flow. The plain code never touches the database:
// only its SHA-256 hash is stored, with a short prefix kept as an index
// to keep lookups cheap.
type AuthorizationCode struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	CodeHash   string `gorm:"uniqueIndex;type:varchar(64);not null"`
	CodePrefix string `gorm:"index;type:varchar(8);not null"`

	ClientID    string `gorm:"index;type:varchar(64);not null"`
	UserID      string `gorm:"type:varchar(36);not null"`
	RedirectURI string `gorm:"not null"`
	Scope       string

	ExpiresAt time.Time `gorm:"index;not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}

// IsExpired returns true if the code is past its expiry time.
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// IsUsed returns true if the code has already been redeemed.
func (a *AuthorizationCode) IsUsed() bool {
	return a.UsedAt != nil
}
