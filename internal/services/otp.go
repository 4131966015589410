package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"
	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/google/uuid"
)

const otpLength = 6

// OTPService issues and verifies short-lived numeric codes. Codes are
// stored hashed, expire after a few minutes, and burn after a limited
// number of failed attempts.
type OTPService struct {
	store *store.Store
	cfg   *config.Config
}

func NewOTPService(s *store.Store, cfg *config.Config) *OTPService {
	return &OTPService{store: s, cfg: cfg}
}

// Generate creates a new OTP for an email and purpose. A second request
// within the cooldown window returns ErrOTPCooldown instead of a code;
// outside it, any outstanding code is invalidated first so only the
// newest code is ever valid.
func (s *OTPService) Generate(ctx context.Context, email, purpose string) (string, error) {
	latest, err := s.store.GetLatestOtp(email, purpose)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to check outstanding OTP: %w", err)
	}
	if latest != nil && time.Since(latest.CreatedAt) < s.cfg.OTPCooldown {
		return "", ErrOTPCooldown
	}

	if err := s.store.InvalidateOtps(email, purpose); err != nil {
		return "", fmt.Errorf("failed to invalidate previous OTPs: %w", err)
	}

	code, err := util.CryptoRandomDigits(otpLength)
	if err != nil {
		return "", err
	}

	otp := &models.Otp{
		ID:        uuid.New().String(),
		Email:     email,
		CodeHash:  util.SHA256Hex(code),
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(s.cfg.OTPExpiration),
	}
	if err := s.store.CreateOtp(otp); err != nil {
		return "", fmt.Errorf("failed to store OTP: %w", err)
	}
	return code, nil
}

// Verify checks a submitted code. All failure modes -- no outstanding
// code, expired, attempt limit reached, wrong code -- return ErrInvalidOTP.
// A successful verification consumes the code.
func (s *OTPService) Verify(ctx context.Context, email, purpose, code string) error {
	otp, err := s.store.GetLatestOtp(email, purpose)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrInvalidOTP
		}
		return fmt.Errorf("failed to look up OTP: %w", err)
	}

	if otp.IsExpired() {
		return ErrInvalidOTP
	}
	if otp.Attempts >= s.cfg.OTPMaxAttempts {
		return ErrInvalidOTP
	}

	submitted := util.SHA256Hex(code)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(otp.CodeHash)) != 1 {
		otp.Attempts++
		if otp.Attempts >= s.cfg.OTPMaxAttempts {
			// Burn the code once the attempt budget is spent.
			now := time.Now()
			otp.ConsumedAt = &now
		}
		if err := s.store.UpdateOtp(otp); err != nil {
			return fmt.Errorf("failed to record OTP attempt: %w", err)
		}
		return ErrInvalidOTP
	}

	now := time.Now()
	otp.ConsumedAt = &now
	if err := s.store.UpdateOtp(otp); err != nil {
		return fmt.Errorf("failed to consume OTP: %w", err)
	}
	return nil
}

// Cleanup removes expired codes.
func (s *OTPService) Cleanup(ctx context.Context) error {
	_, err := s.store.DeleteExpiredOtps()
	return err
}
