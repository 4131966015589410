package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"
	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOTPService(t *testing.T) (*OTPService, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	return NewOTPService(s, newTestConfig()), s
}

// newTestOTPServiceNoCooldown allows back-to-back Generate calls.
func newTestOTPServiceNoCooldown(t *testing.T) (*OTPService, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	cfg := newTestConfig()
	cfg.OTPCooldown = 0
	return NewOTPService(s, cfg), s
}

func TestGenerateAndVerifyOTP(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	code, err := svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	assert.NoError(t, svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, code))
}

func TestOTPCooldown(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)

	_, err = svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	assert.ErrorIs(t, err, ErrOTPCooldown)

	// Other addresses are not affected.
	_, err = svc.Generate(ctx, "john@example.com", models.OTPPurposePasswordReset)
	assert.NoError(t, err)
}

func TestOTPOnlyNewestCodeIsValid(t *testing.T) {
	svc, _ := newTestOTPServiceNoCooldown(t)
	ctx := context.Background()

	first, err := svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)
	second, err := svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)

	err = svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, first)
	if first == second {
		// One-in-a-million collision; the old code is then the new one too.
		assert.NoError(t, err)
		return
	}
	assert.ErrorIs(t, err, ErrInvalidOTP)
	assert.NoError(t, svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, second))
}

func TestOTPExpired(t *testing.T) {
	svc, s := newTestOTPService(t)
	ctx := context.Background()

	expired := &models.Otp{
		ID:        uuid.New().String(),
		Email:     "jane@example.com",
		CodeHash:  util.SHA256Hex("123456"),
		Purpose:   models.OTPPurposePasswordReset,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.CreateOtp(expired))

	err := svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, "123456")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOTPBurnsAfterMaxAttempts(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	code, err := svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		err = svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, wrong)
		assert.ErrorIs(t, err, ErrInvalidOTP)
	}

	// The correct code no longer works once the attempt budget is spent.
	err = svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOTPVerifyIsSingleUse(t *testing.T) {
	svc, _ := newTestOTPService(t)
	ctx := context.Background()

	code, err := svc.Generate(ctx, "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, code))
	err = svc.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOTPCleanup(t *testing.T) {
	svc, s := newTestOTPService(t)
	ctx := context.Background()

	expired := &models.Otp{
		ID:        uuid.New().String(),
		Email:     "jane@example.com",
		CodeHash:  util.SHA256Hex("123456"),
		Purpose:   models.OTPPurposePasswordReset,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.CreateOtp(expired))

	require.NoError(t, svc.Cleanup(ctx))

	_, err := s.GetLatestOtp("jane@example.com", models.OTPPurposePasswordReset)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}
