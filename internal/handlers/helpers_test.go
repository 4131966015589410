package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/mail"
	"github.com/SAOSTAR1501/sso-backend/internal/middleware"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/store"
	"github.com/SAOSTAR1501/sso-backend/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router  *gin.Engine
	store   *store.Store
	cfg     *config.Config
	issuer  *token.Issuer
	clients *services.ClientAppService
	codes   *services.AuthorizationCodeService
	auth    *services.AuthService
	otp     *services.OTPService
}

func newTestConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:8080",
		FrontendURL:            "http://localhost:3000",
		AccessTokenSecret:      "test-access-secret",
		RefreshTokenSecret:     "test-refresh-secret",
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		AuthCodeExpiration:     10 * time.Minute,
		SessionSecret:          "test-session-secret",
		SessionMaxAge:          600,
		AccessCookieMaxAge:     15 * time.Minute,
		RefreshCookieMaxAge:    720 * time.Hour,
		OTPExpiration:          5 * time.Minute,
		OTPCooldown:            5 * time.Minute,
		OTPMaxAttempts:         3,
		ClientCacheTTL:         time.Minute,
		DefaultAdminPassword:   "test-admin-password",
	}
}

// newTestServer wires the handlers against an in-memory store the same way
// main does, minus metrics, audit, and rate limiting.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := newTestConfig()
	s, err := store.New("sqlite", ":memory:", cfg)
	require.NoError(t, err)

	issuer := token.NewIssuer(cfg)
	mailer := mail.New(cfg)
	otpSvc := services.NewOTPService(s, cfg)
	authSvc := services.NewAuthService(s, cfg, otpSvc, mailer, nil, nil)
	clientSvc := services.NewClientAppService(s, cfg, nil, nil)
	codeSvc := services.NewAuthorizationCodeService(s, cfg, nil, nil)

	oauthHandler := NewOAuthHandler(clientSvc, codeSvc, authSvc, issuer, nil, nil, cfg)
	authHandler := NewAuthHandler(authSvc, issuer, nil, nil, cfg)
	clientHandler := NewClientAppHandler(clientSvc)
	healthHandler := NewHealthHandler(s)

	router := gin.New()
	router.Use(sessions.Sessions("sso_session", cookie.NewStore([]byte(cfg.SessionSecret))))

	router.GET("/health", healthHandler.Check)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.GET("/me", middleware.RequireAuth(issuer), authHandler.Me)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
	}

	oauthGroup := router.Group("/oauth")
	{
		oauthGroup.GET("/authorize", oauthHandler.Authorize)
		oauthGroup.POST("/consent", oauthHandler.Consent)
		oauthGroup.POST("/token", oauthHandler.Token)
		oauthGroup.GET("/account", middleware.RequireAuth(issuer), oauthHandler.Account)
		oauthGroup.GET("/check-session", oauthHandler.CheckSession)
	}

	adminGroup := router.Group("/admin",
		middleware.RequireAuth(issuer), middleware.RequireAdmin(authSvc))
	{
		adminGroup.POST("/client-apps", clientHandler.Create)
		adminGroup.GET("/client-apps", clientHandler.List)
		adminGroup.GET("/client-apps/:clientID", clientHandler.Get)
		adminGroup.PUT("/client-apps/:clientID", clientHandler.Update)
		adminGroup.DELETE("/client-apps/:clientID", clientHandler.Delete)
		adminGroup.POST("/client-apps/:clientID/regenerate-secret", clientHandler.RegenerateSecret)
	}

	return &testServer{
		router:  router,
		store:   s,
		cfg:     cfg,
		issuer:  issuer,
		clients: clientSvc,
		codes:   codeSvc,
		auth:    authSvc,
		otp:     otpSvc,
	}
}

// do executes a request with optional cookies carried over from earlier
// responses.
func (ts *testServer) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, form map[string]string) *http.Request {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// mergeCookies overlays updated cookies (for example a rewritten session)
// on top of an existing jar.
func mergeCookies(base, updates []*http.Cookie) []*http.Cookie {
	byName := make(map[string]int, len(base))
	merged := make([]*http.Cookie, 0, len(base)+len(updates))
	for _, c := range base {
		byName[c.Name] = len(merged)
		merged = append(merged, c)
	}
	for _, c := range updates {
		if i, ok := byName[c.Name]; ok {
			merged[i] = c
			continue
		}
		byName[c.Name] = len(merged)
		merged = append(merged, c)
	}
	return merged
}

// registerUser creates an account directly through the service layer.
func (ts *testServer) registerUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	user, err := ts.auth.Register(context.Background(), "Test User", email, password)
	require.NoError(t, err)
	return user
}

// login performs an HTTP login and returns the response cookies (session
// plus token cookies).
func (ts *testServer) login(t *testing.T, email, password string) []*http.Cookie {
	t.Helper()
	w := ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Result().Cookies()
}

// registerClient creates a client app and returns it with the plaintext
// secret.
func (ts *testServer) registerClient(
	t *testing.T,
	input services.RegisterClientInput,
) (*models.ClientApp, string) {
	t.Helper()
	client, secret, err := ts.clients.Register(context.Background(), input, "admin-test")
	require.NoError(t, err)
	return client, secret
}
