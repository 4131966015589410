package services

import (
	"context"
	"testing"

	"github.com/SAOSTAR1501/sso-backend/internal/mail"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T) (*AuthService, *OTPService, *store.Store) {
	t.Helper()
	cfg := newTestConfig()
	s := setupTestStore(t)
	otp := NewOTPService(s, cfg)
	svc := NewAuthService(s, cfg, otp, mail.New(cfg), nil, nil)
	svc.bcryptCost = bcrypt.MinCost
	return svc, otp, s
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	user, err := svc.Register(context.Background(), "Jane Doe", "Jane@Example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "Jane Doe", user.FullName)
	assert.Equal(t, models.AuthSourceLocal, user.AuthSource)
	assert.Equal(t, "user", user.Role)
	assert.True(t, user.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Jane Doe", "jane@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other Jane", "JANE@example.com", "password456")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "  ", "jane@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Register(ctx, "Jane Doe", "jane@example.com", "short")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLogin(t *testing.T) {
	svc, _, s := newTestAuthService(t)
	createTestUser(t, s, "jane@example.com", "password123")

	user, err := svc.Login(context.Background(), "JANE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, s := newTestAuthService(t)
	createTestUser(t, s, "jane@example.com", "password123")
	ctx := context.Background()

	// Wrong password and unknown email yield the same error.
	_, wrongPassword := svc.Login(ctx, "jane@example.com", "not-the-password")
	_, unknownEmail := svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginGoogleOnlyAccountHasNoPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.GoogleLogin(ctx, GoogleProfile{
		ID:    "google-123",
		Email: "jane@example.com",
		Name:  "Jane Doe",
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "jane@example.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveUser(t *testing.T) {
	svc, _, s := newTestAuthService(t)
	user := createTestUser(t, s, "jane@example.com", "password123")
	user.IsActive = false
	require.NoError(t, s.UpdateUser(user))

	_, err := svc.Login(context.Background(), "jane@example.com", "password123")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestGoogleLoginCreatesUser(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	user, err := svc.GoogleLogin(context.Background(), GoogleProfile{
		ID:            "google-123",
		Email:         "Jane@Example.com",
		VerifiedEmail: true,
		Name:          "Jane Doe",
		Picture:       "https://lh3.example.com/photo.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "google-123", user.GoogleID)
	assert.Equal(t, models.AuthSourceGoogle, user.AuthSource)
	assert.True(t, user.EmailVerified)
	assert.False(t, user.HasPassword())

	// Second login finds the same account.
	again, err := svc.GoogleLogin(context.Background(), GoogleProfile{
		ID:    "google-123",
		Email: "jane@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestGoogleLoginLinksExistingLocalAccount(t *testing.T) {
	svc, _, s := newTestAuthService(t)
	local := createTestUser(t, s, "jane@example.com", "password123")

	user, err := svc.GoogleLogin(context.Background(), GoogleProfile{
		ID:            "google-123",
		Email:         "jane@example.com",
		VerifiedEmail: true,
		Name:          "Jane Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, local.ID, user.ID)
	assert.Equal(t, "google-123", user.GoogleID)

	// The local password still works after linking.
	_, err = svc.Login(context.Background(), "jane@example.com", "password123")
	assert.NoError(t, err)
}

func TestGoogleLoginRejectsIncompleteProfile(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.GoogleLogin(context.Background(), GoogleProfile{Email: "jane@example.com"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.GoogleLogin(context.Background(), GoogleProfile{ID: "google-123"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestForgotPasswordNeverLeaksAccountExistence(t *testing.T) {
	svc, _, s := newTestAuthService(t)
	createTestUser(t, s, "jane@example.com", "password123")
	ctx := context.Background()

	assert.NoError(t, svc.ForgotPassword(ctx, "jane@example.com"))
	assert.NoError(t, svc.ForgotPassword(ctx, "nobody@example.com"))
	// A second request inside the cooldown window is swallowed too.
	assert.NoError(t, svc.ForgotPassword(ctx, "jane@example.com"))
}

func TestForgotPasswordSkipsGoogleOnlyAccount(t *testing.T) {
	svc, otp, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.GoogleLogin(ctx, GoogleProfile{ID: "google-123", Email: "jane@example.com"})
	require.NoError(t, err)

	assert.NoError(t, svc.ForgotPassword(ctx, "jane@example.com"))

	// No code was issued, so nothing verifies.
	err = otp.Verify(ctx, "jane@example.com", models.OTPPurposePasswordReset, "123456")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestResetPassword(t *testing.T) {
	svc, otp, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Jane Doe", "jane@example.com", "password123")
	require.NoError(t, err)

	code, err := otp.Generate(ctx, user.Email, models.OTPPurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, "jane@example.com", code, "new-password-1"))

	_, err = svc.Login(ctx, "jane@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "jane@example.com", "new-password-1")
	assert.NoError(t, err)
}

func TestResetPasswordRejectsBadOTP(t *testing.T) {
	svc, otp, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Jane Doe", "jane@example.com", "password123")
	require.NoError(t, err)

	_, err = otp.Generate(ctx, user.Email, models.OTPPurposePasswordReset)
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, "jane@example.com", "000000", "new-password-1")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// Unknown email behaves like a bad code.
	err = svc.ResetPassword(ctx, "nobody@example.com", "123456", "new-password-1")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// Weak replacement password is rejected before the OTP is spent.
	err = svc.ResetPassword(ctx, "jane@example.com", "123456", "short")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// The old password still works.
	_, err = svc.Login(ctx, "jane@example.com", "password123")
	assert.NoError(t, err)
}

func TestResetPasswordOTPIsSingleUse(t *testing.T) {
	svc, otp, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Jane Doe", "jane@example.com", "password123")
	require.NoError(t, err)

	code, err := otp.Generate(ctx, user.Email, models.OTPPurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, "jane@example.com", code, "new-password-1"))
	err = svc.ResetPassword(ctx, "jane@example.com", code, "new-password-2")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}
