package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/mail"
	"github.com/SAOSTAR1501/sso-backend/internal/metrics"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// dummyPasswordHash is compared against when the email is unknown, so a
// failed login costs one bcrypt comparison whether or not the account
// exists.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService implements first-party authentication: registration, login,
// federated Google login, and the OTP-based password reset flow.
type AuthService struct {
	store   *store.Store
	cfg     *config.Config
	otp     *OTPService
	mailer  mail.Mailer
	audit   *AuditService
	metrics metrics.Recorder

	// bcryptCost is lowered in tests.
	bcryptCost int
}

func NewAuthService(
	s *store.Store,
	cfg *config.Config,
	otp *OTPService,
	mailer mail.Mailer,
	audit *AuditService,
	recorder metrics.Recorder,
) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AuthService{
		store:      s,
		cfg:        cfg,
		otp:        otp,
		mailer:     mailer,
		audit:      audit,
		metrics:    recorder,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates a local account. The email must not be registered yet.
func (s *AuthService) Register(
	ctx context.Context,
	fullName, email, password string,
) (*models.User, error) {
	email = normalizeEmail(email)
	if fullName = strings.TrimSpace(fullName); fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidRequest)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Role:         "user",
		AuthSource:   models.AuthSourceLocal,
		IsActive:     true,
	}
	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrEmailConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditUser(ctx, models.EventUserRegistered, user, true, "")
	go s.sendWelcomeMail(user)
	return user, nil
}

// Login verifies an email/password pair. Unknown email and wrong password
// return the same error after the same amount of work, so the response
// cannot be used to probe which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// Equalize timing with the found-user path.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
			s.metrics.RecordLogin(models.AuthSourceLocal, false)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.HasPassword() {
		// Google-only account; still burn a bcrypt comparison.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
		s.recordLoginFailure(ctx, user, "no local password")
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordLoginFailure(ctx, user, "wrong password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.recordLoginFailure(ctx, user, "account disabled")
		return nil, ErrUserInactive
	}

	s.metrics.RecordLogin(models.AuthSourceLocal, true)
	s.auditUser(ctx, models.EventLoginSuccess, user, true, "")
	return user, nil
}

// GoogleProfile is the subset of the Google userinfo response the server
// cares about.
type GoogleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleLogin signs a user in from a verified Google profile, creating the
// account on first login and linking the Google identity to an existing
// local account with the same email.
func (s *AuthService) GoogleLogin(
	ctx context.Context,
	profile GoogleProfile,
) (*models.User, error) {
	if profile.ID == "" || profile.Email == "" {
		return nil, fmt.Errorf("%w: incomplete google profile", ErrInvalidRequest)
	}
	email := normalizeEmail(profile.Email)

	user, err := s.store.GetUserByGoogleID(profile.ID)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up google user: %w", err)
	}

	if user == nil {
		// Link by email if a local account already exists.
		user, err = s.store.GetUserByEmail(email)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		if user != nil {
			user.GoogleID = profile.ID
			user.EmailVerified = user.EmailVerified || profile.VerifiedEmail
			if user.AvatarURL == "" {
				user.AvatarURL = profile.Picture
			}
			if err := s.store.UpdateUser(user); err != nil {
				return nil, fmt.Errorf("failed to link google account: %w", err)
			}
		} else {
			user = &models.User{
				ID:            uuid.New().String(),
				Email:         email,
				FullName:      profile.Name,
				AvatarURL:     profile.Picture,
				Role:          "user",
				GoogleID:      profile.ID,
				AuthSource:    models.AuthSourceGoogle,
				EmailVerified: profile.VerifiedEmail,
				IsActive:      true,
			}
			if err := s.store.CreateUser(user); err != nil {
				return nil, fmt.Errorf("failed to create google user: %w", err)
			}
			go s.sendWelcomeMail(user)
		}
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, user, "account disabled")
		return nil, ErrUserInactive
	}

	s.metrics.RecordLogin(models.AuthSourceGoogle, true)
	s.auditUser(ctx, models.EventGoogleLogin, user, true, "")
	return user, nil
}

// ForgotPassword starts the OTP reset flow. It never returns an error for
// an unknown email, an account without a local password, or a cooldown
// hit: the caller's response is identical in every case.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordOTPRequest("skipped")
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.HasPassword() || !user.IsActive {
		s.metrics.RecordOTPRequest("skipped")
		return nil
	}

	code, err := s.otp.Generate(ctx, email, models.OTPPurposePasswordReset)
	if err != nil {
		if errors.Is(err, ErrOTPCooldown) {
			s.metrics.RecordOTPRequest("cooldown")
			s.auditUser(ctx, models.EventOTPCooldownHit, user, false, "reset requested during cooldown")
			return nil
		}
		s.metrics.RecordOTPRequest("error")
		return err
	}

	s.metrics.RecordOTPRequest("sent")
	s.auditUser(ctx, models.EventPasswordResetOTP, user, true, "")

	// Mail delivery is fire-and-forget so the response time never depends
	// on the SMTP server.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mailer.SendPasswordResetOTP(ctx, email, code, s.cfg.OTPExpiration); err != nil {
			log.Printf("[Auth] failed to send reset OTP to %s: %v", email, err)
		}
	}()
	return nil
}

// ResetPassword completes the OTP reset flow. Existing refresh tokens stay
// valid until they expire; the reset is audit-logged instead.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidRequest)
	}

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordPasswordReset(false)
			return ErrInvalidOTP
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.otp.Verify(ctx, email, models.OTPPurposePasswordReset, code); err != nil {
		s.metrics.RecordPasswordReset(false)
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	if err := s.store.UpdateUser(user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.metrics.RecordPasswordReset(true)
	s.auditUser(ctx, models.EventPasswordReset, user, true, "")
	return nil
}

// GetUserByID loads a user for token-derived identities.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetUserByID(id)
}

func (s *AuthService) sendWelcomeMail(user *models.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.mailer.SendWelcome(ctx, user.Email, user.FullName); err != nil {
		log.Printf("[Auth] failed to send welcome mail to %s: %v", user.Email, err)
	}
}

func (s *AuthService) recordLoginFailure(ctx context.Context, user *models.User, reason string) {
	s.metrics.RecordLogin(user.AuthSource, false)
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventLoginFailure,
		Severity:     models.SeverityWarning,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		Action:       "login failed",
		Details:      models.AuditDetails{"reason": reason},
		Success:      false,
	})
}

func (s *AuthService) auditUser(
	ctx context.Context,
	eventType models.EventType,
	user *models.User,
	success bool,
	errMsg string,
) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    eventType,
		Severity:     models.SeverityInfo,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		Action:       string(eventType),
		Success:      success,
		ErrorMessage: errMsg,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
