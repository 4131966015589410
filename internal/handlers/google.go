package handlers

import (
	"net/http"
	"net/url"

	"github.com/SAOSTAR1501/sso-backend/internal/auth"
	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/metrics"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/token"
	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionKeyGoogleState    = "google_state"
	sessionKeyGoogleRedirect = "google_redirect"
)

// GoogleHandler implements federated login via Google.
type GoogleHandler struct {
	provider *auth.GoogleProvider
	authSvc  *services.AuthService
	issuer   *token.Issuer
	metrics  metrics.Recorder
	config   *config.Config

	// sessionAndCookies is shared with the first-party login path.
	authHandler *AuthHandler
}

func NewGoogleHandler(
	provider *auth.GoogleProvider,
	authSvc *services.AuthService,
	issuer *token.Issuer,
	authHandler *AuthHandler,
	recorder metrics.Recorder,
	cfg *config.Config,
) *GoogleHandler {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &GoogleHandler{
		provider:    provider,
		authSvc:     authSvc,
		issuer:      issuer,
		authHandler: authHandler,
		metrics:     recorder,
		config:      cfg,
	}
}

// Login redirects the browser to Google's consent screen
// (GET /auth/google). An optional redirect query parameter names the
// local path to resume after login.
func (h *GoogleHandler) Login(c *gin.Context) {
	state, err := util.CryptoRandomHex(16)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to start Google login",
		})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionKeyGoogleState, state)
	if redirect := c.Query("redirect"); util.IsRedirectSafe(redirect) {
		session.Set(sessionKeyGoogleRedirect, redirect)
	} else {
		session.Delete(sessionKeyGoogleRedirect)
	}
	_ = session.Save()

	c.Redirect(http.StatusFound, h.provider.AuthURL(state))
}

// Callback completes the Google login (GET /auth/google/callback).
func (h *GoogleHandler) Callback(c *gin.Context) {
	session := sessions.Default(c)
	expectedState, _ := session.Get(sessionKeyGoogleState).(string)
	redirect, _ := session.Get(sessionKeyGoogleRedirect).(string)
	session.Delete(sessionKeyGoogleState)
	session.Delete(sessionKeyGoogleRedirect)
	_ = session.Save()

	if expectedState == "" || c.Query("state") != expectedState {
		h.failLogin(c, "State mismatch, please try again")
		return
	}
	if errCode := c.Query("error"); errCode != "" {
		h.failLogin(c, "Google sign-in was cancelled")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.failLogin(c, "Missing authorization code")
		return
	}

	googleToken, err := h.provider.Exchange(c.Request.Context(), code)
	if err != nil {
		h.failLogin(c, "Failed to verify Google sign-in")
		return
	}

	info, err := h.provider.FetchUserInfo(c.Request.Context(), googleToken)
	if err != nil {
		h.failLogin(c, "Failed to fetch Google profile")
		return
	}

	user, err := h.authSvc.GoogleLogin(c.Request.Context(), services.GoogleProfile{
		ID:            info.ID,
		Email:         info.Email,
		VerifiedEmail: info.VerifiedEmail,
		Name:          info.Name,
		Picture:       info.Picture,
	})
	if err != nil {
		h.failLogin(c, "This account cannot sign in")
		return
	}

	pair, err := h.issuer.IssuePair(user, "", "profile email", 0, 0)
	if err != nil {
		h.failLogin(c, "Failed to issue tokens")
		return
	}

	h.authHandler.openSession(c, user)
	h.authHandler.setAuthCookies(c, pair)

	target := h.config.FrontendURL
	if redirect != "" {
		target = h.config.BaseURL + redirect
	}
	c.Redirect(http.StatusFound, target)
}

// failLogin sends the browser back to the login page with an error hint.
// Google login errors are browser-facing, so they redirect instead of
// returning JSON.
func (h *GoogleHandler) failLogin(c *gin.Context, message string) {
	h.metrics.RecordLogin(models.AuthSourceGoogle, false)
	u, err := url.Parse(h.config.FrontendURL + "/login")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":             "server_error",
			"error_description": message,
		})
		return
	}
	q := u.Query()
	q.Set("error", message)
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}
