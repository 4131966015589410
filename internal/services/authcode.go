package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/metrics"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"
	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/google/uuid"
)

const codePrefixLength = 8

// AuthorizationCodeService issues and redeems single-use authorization
// codes. Codes are 32 random bytes, stored only as a SHA-256 hash.
type AuthorizationCodeService struct {
	store   *store.Store
	cfg     *config.Config
	audit   *AuditService
	metrics metrics.Recorder
}

func NewAuthorizationCodeService(
	s *store.Store,
	cfg *config.Config,
	audit *AuditService,
	recorder metrics.Recorder,
) *AuthorizationCodeService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AuthorizationCodeService{
		store:   s,
		cfg:     cfg,
		audit:   audit,
		metrics: recorder,
	}
}

// Create mints a new authorization code bound to a user, client, redirect
// URI and scope. It returns the plain code for the redirect; only the hash
// is persisted.
func (s *AuthorizationCodeService) Create(
	ctx context.Context,
	userID, clientID, redirectURI, scope string,
) (string, error) {
	raw, err := util.CryptoRandomBytes(32)
	if err != nil {
		s.metrics.RecordCodeIssued(false)
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	plainCode := hex.EncodeToString(raw)

	code := &models.AuthorizationCode{
		ID:          uuid.New().String(),
		CodeHash:    util.SHA256Hex(plainCode),
		CodePrefix:  plainCode[:codePrefixLength],
		ClientID:    clientID,
		UserID:      userID,
		RedirectURI: redirectURI,
		Scope:       scope,
		ExpiresAt:   time.Now().Add(s.cfg.AuthCodeExpiration),
	}

	if err := s.store.CreateAuthorizationCode(code); err != nil {
		s.metrics.RecordCodeIssued(false)
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}

	s.metrics.RecordCodeIssued(true)
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventAuthorizationCodeIssued,
			Severity:     models.SeverityInfo,
			ActorUserID:  userID,
			ResourceType: models.ResourceAuthorization,
			ResourceID:   clientID,
			Action:       "authorization code issued",
			Details:      models.AuditDetails{"scope": scope},
			Success:      true,
		})
	}
	return plainCode, nil
}

// ValidateAndConsume redeems an authorization code. Every failure mode --
// unknown code, expired code, reused code, client mismatch, redirect URI
// mismatch -- collapses into ErrInvalidGrant so the response never reveals
// which check failed. Consumption is atomic: of two racing exchanges at
// most one succeeds.
func (s *AuthorizationCodeService) ValidateAndConsume(
	ctx context.Context,
	plainCode, clientID, redirectURI string,
) (*models.AuthorizationCode, error) {
	if len(plainCode) < codePrefixLength {
		s.metrics.RecordCodeExchange("invalid_grant")
		return nil, ErrInvalidGrant
	}

	code, err := s.store.GetAuthorizationCodeByHash(
		plainCode[:codePrefixLength],
		util.SHA256Hex(plainCode),
	)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordCodeExchange("invalid_grant")
			return nil, ErrInvalidGrant
		}
		s.metrics.RecordCodeExchange("error")
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}

	if code.IsExpired() {
		s.denied(ctx, code, "code expired")
		return nil, ErrInvalidGrant
	}
	if code.IsUsed() {
		// Reuse of a spent code is a strong signal of a leaked code.
		s.deniedWithSeverity(ctx, code, "code reuse detected", models.SeverityWarning)
		return nil, ErrInvalidGrant
	}
	if code.ClientID != clientID {
		s.denied(ctx, code, "client mismatch")
		return nil, ErrInvalidGrant
	}
	if code.RedirectURI != redirectURI {
		s.denied(ctx, code, "redirect URI mismatch")
		return nil, ErrInvalidGrant
	}

	if err := s.store.ConsumeAuthorizationCode(code.ID); err != nil {
		if errors.Is(err, store.ErrAuthCodeAlreadyUsed) {
			s.deniedWithSeverity(ctx, code, "concurrent code redemption", models.SeverityWarning)
			return nil, ErrInvalidGrant
		}
		s.metrics.RecordCodeExchange("error")
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	s.metrics.RecordCodeExchange("success")
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventAuthorizationCodeExchanged,
			Severity:     models.SeverityInfo,
			ActorUserID:  code.UserID,
			ResourceType: models.ResourceAuthorization,
			ResourceID:   code.ClientID,
			Action:       "authorization code exchanged",
			Success:      true,
		})
	}
	return code, nil
}

// Cleanup removes expired codes. Expiry is enforced at redemption time
// regardless; this only keeps the table small.
func (s *AuthorizationCodeService) Cleanup(ctx context.Context) {
	deleted, err := s.store.DeleteExpiredAuthorizationCodes()
	if err != nil {
		log.Printf("[AuthCode] failed to delete expired codes: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[AuthCode] deleted %d expired authorization codes", deleted)
	}
}

func (s *AuthorizationCodeService) denied(
	ctx context.Context,
	code *models.AuthorizationCode,
	reason string,
) {
	s.deniedWithSeverity(ctx, code, reason, models.SeverityInfo)
}

func (s *AuthorizationCodeService) deniedWithSeverity(
	ctx context.Context,
	code *models.AuthorizationCode,
	reason string,
	severity models.EventSeverity,
) {
	s.metrics.RecordCodeExchange("invalid_grant")
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAuthorizationCodeDenied,
		Severity:     severity,
		ActorUserID:  code.UserID,
		ResourceType: models.ResourceAuthorization,
		ResourceID:   code.ClientID,
		Action:       "authorization code exchange denied",
		Details:      models.AuditDetails{"reason": reason},
		Success:      false,
	})
}
