package store

import (
	"testing"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("sqlite", ":memory:", &config.Config{
		FrontendURL:          "http://localhost:3000",
		DefaultAdminPassword: "test-admin-password",
	})
	require.NoError(t, err)
	return s
}

func TestSeedData(t *testing.T) {
	s := newTestStore(t)

	admin, err := s.GetUserByEmail("admin@localhost")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.IsActive)

	clients, err := s.ListActiveClientApps()
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "SSO Portal", clients[0].Name)
	assert.True(t, clients[0].Trusted)
	assert.Equal(t, models.StringArray{"http://localhost:3000/"}, clients[0].RedirectURIs)
}

func TestCreateUserEmailConflict(t *testing.T) {
	s := newTestStore(t)

	user := &models.User{
		ID:       uuid.New().String(),
		Email:    "jane@example.com",
		FullName: "Jane Doe",
		IsActive: true,
	}
	require.NoError(t, s.CreateUser(user))

	dup := &models.User{
		ID:       uuid.New().String(),
		Email:    "jane@example.com",
		FullName: "Other Jane",
	}
	assert.ErrorIs(t, s.CreateUser(dup), ErrEmailConflict)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUserByID("missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = s.GetUserByEmail("missing@example.com")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = s.GetUserByGoogleID("missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestConsumeAuthorizationCodeSingleWinner(t *testing.T) {
	s := newTestStore(t)

	code := &models.AuthorizationCode{
		ID:          uuid.New().String(),
		CodeHash:    "hash",
		CodePrefix:  "hash",
		ClientID:    "client_x",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/cb",
		ExpiresAt:   time.Now().Add(time.Minute),
	}
	require.NoError(t, s.CreateAuthorizationCode(code))

	require.NoError(t, s.ConsumeAuthorizationCode(code.ID))
	assert.ErrorIs(t, s.ConsumeAuthorizationCode(code.ID), ErrAuthCodeAlreadyUsed)

	stored, err := s.GetAuthorizationCodeByHash("hash", "hash")
	require.NoError(t, err)
	assert.True(t, stored.IsUsed())
}

func TestGetLatestOtpReturnsNewestUnconsumed(t *testing.T) {
	s := newTestStore(t)

	older := &models.Otp{
		ID:        uuid.New().String(),
		Email:     "jane@example.com",
		CodeHash:  "old",
		Purpose:   models.OTPPurposePasswordReset,
		ExpiresAt: time.Now().Add(time.Minute),
		CreatedAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.CreateOtp(older))

	newer := &models.Otp{
		ID:        uuid.New().String(),
		Email:     "jane@example.com",
		CodeHash:  "new",
		Purpose:   models.OTPPurposePasswordReset,
		ExpiresAt: time.Now().Add(time.Minute),
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateOtp(newer))

	latest, err := s.GetLatestOtp("jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.CodeHash)

	require.NoError(t, s.InvalidateOtps("jane@example.com", models.OTPPurposePasswordReset))
	_, err = s.GetLatestOtp("jane@example.com", models.OTPPurposePasswordReset)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPaginationCalculation(t *testing.T) {
	result := CalculatePagination(25, 2, 10)
	assert.Equal(t, int64(25), result.Total)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 2, result.CurrentPage)
	assert.True(t, result.HasPrev)
	assert.True(t, result.HasNext)

	result = CalculatePagination(0, 1, 10)
	assert.Equal(t, 0, result.TotalPages)
	assert.False(t, result.HasPrev)
	assert.False(t, result.HasNext)
}

func TestPaginationParamsDefaults(t *testing.T) {
	params := NewPaginationParams(0, 0, " search ")
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, 10, params.PageSize)

	params = NewPaginationParams(2, 500, "")
	assert.Equal(t, 50, params.PageSize)
}

func TestAuditLogFilters(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	entries := []*models.AuditLog{
		{
			ID:        uuid.New().String(),
			EventType: models.EventLoginSuccess,
			EventTime: now,
			Severity:  models.SeverityInfo,
			Action:    "login",
			Success:   true,
			CreatedAt: now,
		},
		{
			ID:        uuid.New().String(),
			EventType: models.EventLoginFailure,
			EventTime: now,
			Severity:  models.SeverityWarning,
			Action:    "login failed",
			Success:   false,
			CreatedAt: now,
		},
	}
	require.NoError(t, s.CreateAuditLogBatch(entries))

	logs, page, err := s.GetAuditLogsPaginated(
		NewPaginationParams(1, 10, ""),
		AuditLogFilters{EventType: models.EventLoginFailure},
	)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, models.EventLoginFailure, logs[0].EventType)

	success := true
	logs, _, err = s.GetAuditLogsPaginated(
		NewPaginationParams(1, 10, ""),
		AuditLogFilters{Success: &success},
	)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}
