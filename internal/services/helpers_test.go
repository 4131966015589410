package services

import (
	"testing"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testClientSecret = "test-client-secret"

func newTestConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:8080",
		FrontendURL:            "http://localhost:3000",
		AccessTokenSecret:      "test-access-secret",
		RefreshTokenSecret:     "test-refresh-secret",
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		AuthCodeExpiration:     10 * time.Minute,
		OTPExpiration:          5 * time.Minute,
		OTPCooldown:            5 * time.Minute,
		OTPMaxAttempts:         3,
		ClientCacheTTL:         time.Minute,
		DefaultAdminPassword:   "test-admin-password",
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	// In-memory SQLite keeps tests hermetic and fast.
	s, err := store.New("sqlite", ":memory:", newTestConfig())
	require.NoError(t, err)
	return s
}

type clientOption func(*models.ClientApp)

func trusted() clientOption {
	return func(c *models.ClientApp) { c.Trusted = true }
}

func inactive() clientOption {
	return func(c *models.ClientApp) { c.IsActive = false }
}

func withRedirectURIs(uris ...string) clientOption {
	return func(c *models.ClientApp) { c.RedirectURIs = models.StringArray(uris) }
}

func withScopes(scopes ...string) clientOption {
	return func(c *models.ClientApp) { c.AllowedScopes = models.StringArray(scopes) }
}

func withOrigins(origins ...string) clientOption {
	return func(c *models.ClientApp) { c.AllowedOrigins = models.StringArray(origins) }
}

func createTestClient(t *testing.T, s *store.Store, opts ...clientOption) *models.ClientApp {
	t.Helper()
	// bcrypt.MinCost keeps the suite fast; production uses DefaultCost.
	hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	require.NoError(t, err)

	client := &models.ClientApp{
		ID:            uuid.New().String(),
		ClientID:      models.GenerateClientID(),
		ClientSecret:  string(hash),
		Name:          "Test App",
		RedirectURIs:  models.StringArray{"https://app.example.com/cb"},
		AllowedScopes: models.DefaultScopes,
		IsActive:      true,
	}
	for _, opt := range opts {
		opt(client)
	}
	require.NoError(t, s.CreateClientApp(client))

	if !client.IsActive {
		// Re-apply after create: gorm default tags win on insert.
		client.IsActive = false
		require.NoError(t, s.UpdateClientApp(client))
	}
	return client
}

func createTestUser(t *testing.T, s *store.Store, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     "Test User",
		PasswordHash: string(hash),
		Role:         "user",
		AuthSource:   models.AuthSourceLocal,
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(user))
	return user
}
