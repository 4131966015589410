package models

import (
	"time"
)

// OTP purposes
const (
	OTPPurposePasswordReset = "password_reset"
)

// Otp is a short-lived one-time code delivered by email. Codes are stored
// hashed and burn after a limited number of failed verification attempts.
type Otp struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Email    string `gorm:"index;not null"`
	CodeHash string `gorm:"type:varchar(64);not null"`
	Purpose  string `gorm:"type:varchar(32);not null"`

	Attempts   int `gorm:"default:0"`
	ExpiresAt  time.Time `gorm:"index;not null"`
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (Otp) TableName() string {
	return "otps"
}

// IsExpired returns true if the code is past its expiry time.
func (o *Otp) IsExpired() bool {
	return time.Now().After(o.ExpiresAt)
}

// IsConsumed returns true if the code was already verified or invalidated.
func (o *Otp) IsConsumed() bool {
	return o.ConsumedAt != nil
}
