package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/SAOSTAR1501/sso-backend/internal/cache"
	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/store"

	"github.com/google/uuid"
)

// ClientAppService manages the registry of applications allowed to use
// this server for single sign-on.
type ClientAppService struct {
	store *store.Store
	cfg   *config.Config
	audit *AuditService

	// clientCache holds client lookups by client_id. Nil disables caching.
	clientCache cache.Cache[models.ClientApp]
}

func NewClientAppService(
	s *store.Store,
	cfg *config.Config,
	audit *AuditService,
	clientCache cache.Cache[models.ClientApp],
) *ClientAppService {
	return &ClientAppService{
		store:       s,
		cfg:         cfg,
		audit:       audit,
		clientCache: clientCache,
	}
}

// RegisterClientInput describes a new client application.
type RegisterClientInput struct {
	Name                 string   `json:"name"                 binding:"required"`
	Description          string   `json:"description"`
	RedirectURIs         []string `json:"redirectUris"         binding:"required,min=1"`
	AllowedScopes        []string `json:"allowedScopes"`
	AllowedOrigins       []string `json:"allowedOrigins"`
	Trusted              bool     `json:"trusted"`
	AccessTokenLifetime  int      `json:"accessTokenLifetime"`
	RefreshTokenLifetime int      `json:"refreshTokenLifetime"`
}

// UpdateClientInput carries a partial client update. Nil fields are left
// unchanged.
type UpdateClientInput struct {
	Name                 *string   `json:"name"`
	Description          *string   `json:"description"`
	RedirectURIs         *[]string `json:"redirectUris"`
	AllowedScopes        *[]string `json:"allowedScopes"`
	AllowedOrigins       *[]string `json:"allowedOrigins"`
	Trusted              *bool     `json:"trusted"`
	IsActive             *bool     `json:"isActive"`
	AccessTokenLifetime  *int      `json:"accessTokenLifetime"`
	RefreshTokenLifetime *int      `json:"refreshTokenLifetime"`
}

// Register creates a client application and returns it together with the
// plaintext secret, which is shown exactly once.
func (s *ClientAppService) Register(
	ctx context.Context,
	input RegisterClientInput,
	createdBy string,
) (*models.ClientApp, string, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if err := validateRedirectURIList(input.RedirectURIs); err != nil {
		return nil, "", err
	}
	if err := validateOriginList(input.AllowedOrigins); err != nil {
		return nil, "", err
	}

	scopes := models.StringArray(input.AllowedScopes)
	if len(scopes) == 0 {
		scopes = models.DefaultScopes
	}

	plainSecret, secretHash, err := models.GenerateClientSecret()
	if err != nil {
		return nil, "", err
	}

	client := &models.ClientApp{
		ID:                   uuid.New().String(),
		ClientID:             models.GenerateClientID(),
		ClientSecret:         secretHash,
		Name:                 strings.TrimSpace(input.Name),
		Description:          input.Description,
		RedirectURIs:         models.StringArray(input.RedirectURIs),
		AllowedScopes:        scopes,
		AllowedOrigins:       models.StringArray(input.AllowedOrigins),
		Trusted:              input.Trusted,
		IsActive:             true,
		AccessTokenLifetime:  input.AccessTokenLifetime,
		RefreshTokenLifetime: input.RefreshTokenLifetime,
		CreatedBy:            createdBy,
	}

	if err := s.store.CreateClientApp(client); err != nil {
		return nil, "", fmt.Errorf("failed to create client app: %w", err)
	}

	s.auditAdminAction(ctx, models.EventClientCreated, createdBy, client, true, "")
	return client, plainSecret, nil
}

// GetByClientID resolves a client by its public identifier. Lookups go
// through the client cache when one is configured.
func (s *ClientAppService) GetByClientID(
	ctx context.Context,
	clientID string,
) (*models.ClientApp, error) {
	if clientID == "" {
		return nil, ErrInvalidClient
	}

	if s.clientCache != nil {
		client, err := cache.GetWithFetch(ctx, s.clientCache, clientID, s.cfg.ClientCacheTTL,
			func(ctx context.Context, key string) (models.ClientApp, error) {
				c, err := s.store.GetClientApp(key)
				if err != nil {
					return models.ClientApp{}, err
				}
				return *c, nil
			})
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil, ErrInvalidClient
			}
			return nil, err
		}
		return &client, nil
	}

	client, err := s.store.GetClientApp(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	return client, nil
}

// List returns a page of registered clients.
func (s *ClientAppService) List(
	params store.PaginationParams,
) ([]models.ClientApp, store.PaginationResult, error) {
	return s.store.ListClientApps(params)
}

// Update applies a partial update to a client.
func (s *ClientAppService) Update(
	ctx context.Context,
	clientID string,
	input UpdateClientInput,
	actorID string,
) (*models.ClientApp, error) {
	client, err := s.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if input.RedirectURIs != nil {
		if err := validateRedirectURIList(*input.RedirectURIs); err != nil {
			return nil, err
		}
		client.RedirectURIs = models.StringArray(*input.RedirectURIs)
	}
	if input.AllowedOrigins != nil {
		if err := validateOriginList(*input.AllowedOrigins); err != nil {
			return nil, err
		}
		client.AllowedOrigins = models.StringArray(*input.AllowedOrigins)
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
		}
		client.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		client.Description = *input.Description
	}
	if input.AllowedScopes != nil {
		client.AllowedScopes = models.StringArray(*input.AllowedScopes)
	}
	if input.Trusted != nil {
		client.Trusted = *input.Trusted
	}
	if input.IsActive != nil {
		client.IsActive = *input.IsActive
	}
	if input.AccessTokenLifetime != nil {
		client.AccessTokenLifetime = *input.AccessTokenLifetime
	}
	if input.RefreshTokenLifetime != nil {
		client.RefreshTokenLifetime = *input.RefreshTokenLifetime
	}

	if err := s.store.UpdateClientApp(client); err != nil {
		return nil, fmt.Errorf("failed to update client app: %w", err)
	}
	s.invalidateCache(ctx, clientID)

	s.auditAdminAction(ctx, models.EventClientUpdated, actorID, client, true, "")
	return client, nil
}

// Delete deactivates a client registration. The record survives so codes
// and tokens issued to the client can fail cleanly within their TTL;
// Update with isActive=true reactivates it.
func (s *ClientAppService) Delete(ctx context.Context, clientID, actorID string) error {
	client, err := s.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateClientApp(clientID); err != nil {
		return fmt.Errorf("failed to deactivate client app: %w", err)
	}
	s.invalidateCache(ctx, clientID)

	s.auditAdminAction(ctx, models.EventClientDeleted, actorID, client, true, "")
	return nil
}

// RegenerateSecret replaces the client secret and returns the new plain
// value. Existing deployments of the client must be reconfigured.
func (s *ClientAppService) RegenerateSecret(
	ctx context.Context,
	clientID, actorID string,
) (string, error) {
	client, err := s.GetByClientID(ctx, clientID)
	if err != nil {
		return "", err
	}

	plainSecret, secretHash, err := models.GenerateClientSecret()
	if err != nil {
		return "", err
	}
	client.ClientSecret = secretHash
	if err := s.store.UpdateClientApp(client); err != nil {
		return "", fmt.Errorf("failed to update client secret: %w", err)
	}
	s.invalidateCache(ctx, clientID)

	s.auditAdminAction(ctx, models.EventClientSecretRegenerated, actorID, client, true, "")
	return plainSecret, nil
}

// VerifyCredentials authenticates a confidential client. Unknown client,
// wrong secret, and inactive registration all surface as protocol errors
// without revealing which check failed first to the caller's logs.
func (s *ClientAppService) VerifyCredentials(
	ctx context.Context,
	clientID, clientSecret string,
) (*models.ClientApp, error) {
	client, err := s.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, ErrInvalidClient
	}
	if !client.ValidateClientSecret(clientSecret) {
		return nil, ErrInvalidClient
	}
	if !client.IsActive {
		return nil, ErrClientInactive
	}
	return client, nil
}

// ValidateRedirectURI checks a requested redirect URI against the client's
// registered URIs: scheme and host must match exactly, the path must be a
// prefix match. A registered path of "/" (or empty) matches any path.
func (s *ClientAppService) ValidateRedirectURI(client *models.ClientApp, rawURI string) error {
	requested, err := url.Parse(rawURI)
	if err != nil || !requested.IsAbs() || requested.Fragment != "" {
		return ErrInvalidRedirectURI
	}
	if requested.Scheme != "http" && requested.Scheme != "https" {
		return ErrInvalidRedirectURI
	}

	for _, registered := range client.RedirectURIs {
		reg, err := url.Parse(registered)
		if err != nil {
			continue
		}
		if !strings.EqualFold(reg.Scheme, requested.Scheme) {
			continue
		}
		if !strings.EqualFold(reg.Host, requested.Host) {
			continue
		}
		if reg.Path == "" || reg.Path == "/" || strings.HasPrefix(requested.Path, reg.Path) {
			return nil
		}
	}
	return ErrInvalidRedirectURI
}

// ValidateScopes normalizes a requested scope string against the client's
// allow-list. An empty request yields the client's full allowed set; any
// scope outside the allow-list rejects the whole request.
func (s *ClientAppService) ValidateScopes(
	client *models.ClientApp,
	requested string,
) (string, error) {
	allowed := client.AllowedScopes
	if len(allowed) == 0 {
		allowed = models.DefaultScopes
	}

	fields := strings.Fields(requested)
	if len(fields) == 0 {
		return strings.Join(allowed, " "), nil
	}

	seen := make(map[string]bool, len(fields))
	normalized := make([]string, 0, len(fields))
	for _, scope := range fields {
		if !allowed.Contains(scope) {
			return "", ErrInvalidScope
		}
		if !seen[scope] {
			seen[scope] = true
			normalized = append(normalized, scope)
		}
	}
	return strings.Join(normalized, " "), nil
}

// IsOriginAllowed reports whether an Origin header value is acceptable for
// the given client. Entries match exactly, or by `*.domain` wildcard which
// covers any subdomain but not the bare domain.
func (s *ClientAppService) IsOriginAllowed(client *models.ClientApp, origin string) bool {
	for _, entry := range client.AllowedOrigins {
		if matchOrigin(entry, origin) {
			return true
		}
	}
	return false
}

// AnyClientAllowsOrigin checks an origin against every active client.
// Used by the CORS middleware; backed by the store, so callers should
// cache the verdict.
func (s *ClientAppService) AnyClientAllowsOrigin(ctx context.Context, origin string) (bool, error) {
	clients, err := s.store.ListActiveClientApps()
	if err != nil {
		return false, err
	}
	for i := range clients {
		if s.IsOriginAllowed(&clients[i], origin) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ClientAppService) invalidateCache(ctx context.Context, clientID string) {
	if s.clientCache != nil {
		_ = s.clientCache.Delete(ctx, clientID)
	}
}

func (s *ClientAppService) auditAdminAction(
	ctx context.Context,
	eventType models.EventType,
	actorID string,
	client *models.ClientApp,
	success bool,
	errMsg string,
) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    eventType,
		Severity:     models.SeverityInfo,
		ActorUserID:  actorID,
		ResourceType: models.ResourceClient,
		ResourceID:   client.ClientID,
		Action:       string(eventType),
		Details:      models.AuditDetails{"client_name": client.Name},
		Success:      success,
		ErrorMessage: errMsg,
	})
}

func validateRedirectURIList(uris []string) error {
	if len(uris) == 0 {
		return fmt.Errorf("%w: at least one redirect URI is required", ErrInvalidRequest)
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" || u.Fragment != "" {
			return fmt.Errorf("%w: invalid redirect URI %q", ErrInvalidRequest, raw)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: redirect URI %q must use http or https", ErrInvalidRequest, raw)
		}
	}
	return nil
}

func validateOriginList(origins []string) error {
	for _, entry := range origins {
		host := entry
		if i := strings.Index(entry, "://"); i >= 0 {
			host = entry[i+3:]
		}
		if host == "" || strings.Contains(host, "/") {
			return fmt.Errorf("%w: invalid origin %q", ErrInvalidRequest, entry)
		}
		// A wildcard is only valid as a leading "*." label.
		if strings.Contains(host, "*") && !strings.HasPrefix(host, "*.") {
			return fmt.Errorf("%w: invalid origin wildcard %q", ErrInvalidRequest, entry)
		}
	}
	return nil
}

func matchOrigin(entry, origin string) bool {
	entry = strings.ToLower(strings.TrimSuffix(entry, "/"))
	origin = strings.ToLower(strings.TrimSuffix(origin, "/"))
	if entry == "" || origin == "" {
		return false
	}
	if !strings.Contains(entry, "*") {
		return entry == origin
	}

	entryScheme, entryHost := splitOrigin(entry)
	originScheme, originHost := splitOrigin(origin)
	if entryScheme != "" && entryScheme != originScheme {
		return false
	}
	if !strings.HasPrefix(entryHost, "*.") {
		return false
	}
	// "*.example.com" matches "app.example.com" but not "example.com"
	// and not "evil-example.com".
	return strings.HasSuffix(originHost, entryHost[1:])
}

func splitOrigin(s string) (scheme, host string) {
	if i := strings.Index(s, "://"); i >= 0 {
		return s[:i], s[i+3:]
	}
	return "", s
}
