package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/metrics"
	"github.com/SAOSTAR1501/sso-backend/internal/middleware"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// https://datatracker.ietf.org/doc/html/rfc6749#section-4.1
	GrantTypeAuthorizationCode = "authorization_code"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-6
	GrantTypeRefreshToken = "refresh_token"

	maxStateLength = 1024

	sessionKeyUserID    = "user_id"
	sessionKeyAuthState = "auth_state"
)

// authState is the pending authorization request carried in the session
// between /oauth/authorize and the consent decision.
type authState struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
	State       string `json:"state"`
}

// OAuthHandler implements the authorization code flow endpoints.
type OAuthHandler struct {
	clients *services.ClientAppService
	codes   *services.AuthorizationCodeService
	auth    *services.AuthService
	issuer  *token.Issuer
	audit   *services.AuditService
	metrics metrics.Recorder
	config  *config.Config
}

func NewOAuthHandler(
	clients *services.ClientAppService,
	codes *services.AuthorizationCodeService,
	auth *services.AuthService,
	issuer *token.Issuer,
	audit *services.AuditService,
	recorder metrics.Recorder,
	cfg *config.Config,
) *OAuthHandler {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &OAuthHandler{
		clients: clients,
		codes:   codes,
		auth:    auth,
		issuer:  issuer,
		audit:   audit,
		metrics: recorder,
		config:  cfg,
	}
}

// Authorize starts the authorization code flow (GET /oauth/authorize).
//
// Client and redirect_uri problems are answered directly with a JSON error:
// redirecting to an unvalidated URI would make the server an open
// redirector. Every later failure is reported to the client via its
// validated redirect_uri.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")
	scope := c.Query("scope")
	state := c.Query("state")

	if len(state) > maxStateLength {
		h.metrics.RecordAuthorizeRequest("invalid_request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "state parameter exceeds maximum length",
		})
		return
	}

	client, err := h.clients.GetByClientID(c.Request.Context(), clientID)
	if err != nil {
		h.metrics.RecordAuthorizeRequest("invalid_client")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_client",
			"error_description": "Unknown or inactive client",
		})
		return
	}
	if !client.IsActive {
		h.metrics.RecordAuthorizeRequest("unauthorized_client")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unauthorized_client",
			"error_description": "Client is disabled",
		})
		return
	}

	if err := h.clients.ValidateRedirectURI(client, redirectURI); err != nil {
		h.metrics.RecordAuthorizeRequest("invalid_redirect_uri")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "redirect_uri is not registered for this client",
		})
		return
	}

	// The redirect target is trusted from here on.
	if responseType != "code" {
		h.metrics.RecordAuthorizeRequest("unsupported_response_type")
		h.redirectWithError(c, redirectURI, state,
			"unsupported_response_type", "Only response_type=code is supported")
		return
	}

	grantedScope, err := h.clients.ValidateScopes(client, scope)
	if err != nil {
		h.metrics.RecordAuthorizeRequest("invalid_scope")
		h.redirectWithError(c, redirectURI, state,
			"invalid_scope", "Requested scope is not allowed for this client")
		return
	}

	session := sessions.Default(c)
	userID, _ := session.Get(sessionKeyUserID).(string)
	if userID == "" {
		// Not signed in: stash the request and send the browser to the
		// login page. Login resumes the flow by reloading this URL.
		h.saveAuthState(session, authState{
			ClientID:    client.ClientID,
			RedirectURI: redirectURI,
			Scope:       grantedScope,
			State:       state,
		})
		loginURL := h.config.FrontendURL + "/login?redirect=" +
			url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, loginURL)
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.IsActive {
		session.Delete(sessionKeyUserID)
		_ = session.Save()
		c.Redirect(http.StatusFound, h.config.FrontendURL+"/login?redirect="+
			url.QueryEscape(c.Request.URL.RequestURI()))
		return
	}

	h.metrics.RecordAuthorizeRequest("ok")

	if client.Trusted {
		// First-party client: no consent screen.
		h.issueCodeAndRedirect(c, user, client, redirectURI, grantedScope, state)
		return
	}

	h.saveAuthState(session, authState{
		ClientID:    client.ClientID,
		RedirectURI: redirectURI,
		Scope:       grantedScope,
		State:       state,
	})

	consentURL, _ := url.Parse(h.config.FrontendURL + "/consent")
	q := consentURL.Query()
	q.Set("client_id", client.ClientID)
	q.Set("client_name", client.Name)
	q.Set("scope", grantedScope)
	consentURL.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, consentURL.String())
}

// Consent records the user's consent decision (POST /oauth/consent). The
// pending request is taken from the session and removed whether the user
// approves or denies, so a decision cannot be replayed.
func (h *OAuthHandler) Consent(c *gin.Context) {
	session := sessions.Default(c)
	userID, _ := session.Get(sessionKeyUserID).(string)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "access_denied",
			"error_description": "No active session",
		})
		return
	}

	pending, ok := h.takeAuthState(session)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "No pending authorization request",
		})
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "access_denied",
			"error_description": "No active session",
		})
		return
	}

	if c.PostForm("action") != "approve" {
		h.auditConsent(c, user, pending.ClientID, false)
		h.redirectWithError(c, pending.RedirectURI, pending.State,
			"access_denied", "User denied the authorization request")
		return
	}

	client, err := h.clients.GetByClientID(c.Request.Context(), pending.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_client",
			"error_description": "Unknown or inactive client",
		})
		return
	}
	if !client.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unauthorized_client",
			"error_description": "Client is disabled",
		})
		return
	}

	h.auditConsent(c, user, pending.ClientID, true)
	h.issueCodeAndRedirect(c, user, client, pending.RedirectURI, pending.Scope, pending.State)
}

// Token exchanges an authorization code or refresh token for a token pair
// (POST /oauth/token).
func (h *OAuthHandler) Token(c *gin.Context) {
	switch c.PostForm("grant_type") {
	case GrantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(c)
	case GrantTypeRefreshToken:
		h.handleRefreshTokenGrant(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, refresh_token",
		})
	}
}

// authenticateClient resolves client credentials from HTTP Basic Auth
// (preferred per RFC 6749 section 2.3.1) or the form body.
func (h *OAuthHandler) authenticateClient(c *gin.Context) (*models.ClientApp, bool) {
	clientID, clientSecret, ok := c.Request.BasicAuth()
	if !ok {
		clientID = c.PostForm("client_id")
		clientSecret = c.PostForm("client_secret")
	}

	if clientID == "" || clientSecret == "" {
		h.unauthorizedClient(c, "Client authentication required: use HTTP Basic Auth or provide client_id and client_secret in the request body")
		return nil, false
	}

	client, err := h.clients.VerifyCredentials(c.Request.Context(), clientID, clientSecret)
	if err != nil {
		h.unauthorizedClient(c, "Client authentication failed")
		return nil, false
	}
	return client, true
}

func (h *OAuthHandler) unauthorizedClient(c *gin.Context, description string) {
	// RFC 6749 section 5.2: invalid_client uses 401 with WWW-Authenticate.
	c.Header("WWW-Authenticate", `Basic realm="sso"`)
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_client",
		"error_description": description,
	})
}

func (h *OAuthHandler) handleAuthorizationCodeGrant(c *gin.Context) {
	code := c.PostForm("code")
	redirectURI := c.PostForm("redirect_uri")

	if code == "" || redirectURI == "" {
		h.metrics.RecordCodeExchange("invalid_request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code and redirect_uri are required",
		})
		return
	}

	client, ok := h.authenticateClient(c)
	if !ok {
		h.metrics.RecordCodeExchange("invalid_client")
		return
	}

	authCode, err := h.codes.ValidateAndConsume(c.Request.Context(), code, client.ClientID, redirectURI)
	if err != nil {
		h.metrics.RecordCodeExchange("invalid_grant")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "Authorization code is invalid, expired, or already used",
		})
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), authCode.UserID)
	if err != nil || !user.IsActive {
		h.metrics.RecordCodeExchange("invalid_grant")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "User account is no longer available",
		})
		return
	}

	pair, err := h.issuer.IssuePair(
		user,
		client.ClientID,
		authCode.Scope,
		client.AccessTokenTTL(h.config.AccessTokenExpiration),
		client.RefreshTokenTTL(h.config.RefreshTokenExpiration),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to issue tokens",
		})
		return
	}

	h.metrics.RecordCodeExchange("ok")
	h.metrics.RecordTokenIssued(token.TypeAccess, GrantTypeAuthorizationCode)
	h.auditTokenIssued(c, user, client.ClientID, models.EventTokenIssued)
	h.respondWithPair(c, pair)
}

func (h *OAuthHandler) handleRefreshTokenGrant(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	client, ok := h.authenticateClient(c)
	if !ok {
		h.metrics.RecordTokenRefresh(false)
		return
	}

	claims, err := h.issuer.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.metrics.RecordTokenRefresh(false)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "Refresh token is invalid or expired",
		})
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		h.metrics.RecordTokenRefresh(false)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "User account is no longer available",
		})
		return
	}

	pair, err := h.issuer.Rotate(
		user,
		claims,
		client.ClientID,
		client.AccessTokenTTL(h.config.AccessTokenExpiration),
		client.RefreshTokenTTL(h.config.RefreshTokenExpiration),
	)
	if err != nil {
		h.metrics.RecordTokenRefresh(false)
		if errors.Is(err, token.ErrClientMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_grant",
				"error_description": "Refresh token was issued to a different client",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Token refresh failed",
		})
		return
	}

	h.metrics.RecordTokenRefresh(true)
	h.metrics.RecordTokenIssued(token.TypeAccess, GrantTypeRefreshToken)
	h.auditTokenIssued(c, user, client.ClientID, models.EventTokenRefreshed)
	h.respondWithPair(c, pair)
}

// Account returns the token owner's profile (GET /oauth/account). Requires
// a valid access token.
func (h *OAuthHandler) Account(c *gin.Context) {
	user, err := h.auth.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "Token subject no longer exists",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sub":            user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"name":           user.FullName,
		"picture":        user.AvatarURL,
		"role":           user.Role,
	})
}

// CheckSession reports whether the browser holds an active SSO session
// (GET /oauth/check-session). Client apps poll this to implement
// single-logout.
func (h *OAuthHandler) CheckSession(c *gin.Context) {
	session := sessions.Default(c)
	userID, _ := session.Get(sessionKeyUserID).(string)
	if userID == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.IsActive {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"sub":           user.ID,
	})
}

func (h *OAuthHandler) issueCodeAndRedirect(
	c *gin.Context,
	user *models.User,
	client *models.ClientApp,
	redirectURI, scope, state string,
) {
	plainCode, err := h.codes.Create(c.Request.Context(), user.ID, client.ClientID, redirectURI, scope)
	if err != nil {
		h.metrics.RecordCodeIssued(false)
		h.redirectWithError(c, redirectURI, state,
			"server_error", "Failed to generate authorization code")
		return
	}
	h.metrics.RecordCodeIssued(true)

	u, err := url.Parse(redirectURI)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	q := u.Query()
	q.Set("code", plainCode)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// redirectWithError reports an OAuth error via the client's validated
// redirect_uri, echoing state when present.
func (h *OAuthHandler) redirectWithError(
	c *gin.Context,
	redirectURI, state, errorCode, description string,
) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errorCode,
			"error_description": description,
		})
		return
	}
	q := u.Query()
	q.Set("error", errorCode)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// respondWithPair writes a token response. Token responses are not
// cacheable (RFC 6749 section 5.1).
func (h *OAuthHandler) respondWithPair(c *gin.Context, pair *token.Pair) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, pair)
}

func (h *OAuthHandler) saveAuthState(session sessions.Session, state authState) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	session.Set(sessionKeyAuthState, string(raw))
	_ = session.Save()
}

// takeAuthState reads and removes the pending authorization request.
func (h *OAuthHandler) takeAuthState(session sessions.Session) (authState, bool) {
	raw, ok := session.Get(sessionKeyAuthState).(string)
	if !ok || raw == "" {
		return authState{}, false
	}
	session.Delete(sessionKeyAuthState)
	_ = session.Save()

	var state authState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return authState{}, false
	}
	return state, true
}

func (h *OAuthHandler) auditConsent(c *gin.Context, user *models.User, clientID string, granted bool) {
	if h.audit == nil {
		return
	}
	eventType := models.EventConsentGranted
	if !granted {
		eventType = models.EventConsentDenied
	}
	h.audit.Log(c.Request.Context(), services.AuditLogEntry{
		EventType:    eventType,
		Severity:     models.SeverityInfo,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ActorIP:      c.ClientIP(),
		ResourceType: models.ResourceAuthorization,
		ResourceID:   clientID,
		Action:       string(eventType),
		Success:      granted,
	})
}

func (h *OAuthHandler) auditTokenIssued(
	c *gin.Context,
	user *models.User,
	clientID string,
	eventType models.EventType,
) {
	if h.audit == nil {
		return
	}
	h.audit.Log(c.Request.Context(), services.AuditLogEntry{
		EventType:    eventType,
		Severity:     models.SeverityInfo,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ActorIP:      c.ClientIP(),
		ResourceType: models.ResourceToken,
		ResourceID:   clientID,
		Action:       string(eventType),
		Success:      true,
	})
}
