package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAOSTAR1501/sso-backend/internal/middleware"
	"github.com/SAOSTAR1501/sso-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"full_name":"Jane Doe","email":"jane@example.com","password":"password123"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"email":"jane@example.com"`)
	assert.Contains(t, w.Body.String(), `"tokens"`)
	assert.NotContains(t, w.Body.String(), "password")

	// Registration signs the user in: token cookies are set and the SSO
	// session is open, same as login.
	byName := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		byName[c.Name] = c
	}
	access := byName[middleware.CookieAccessToken]
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	_, err := ts.issuer.ValidateAccessToken(access.Value)
	assert.NoError(t, err)
	require.NotNil(t, byName[middleware.CookieRefreshToken])

	session := ts.do(httptest.NewRequest(http.MethodGet, "/oauth/check-session", nil),
		w.Result().Cookies())
	assert.Contains(t, session.Body.String(), `"authenticated":true`)

	// Duplicate email conflicts.
	w = ts.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"full_name":"Jane Doe","email":"jane@example.com","password":"password123"}`), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Short password fails binding.
	w = ts.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"full_name":"Jane Doe","email":"other@example.com","password":"short"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginEndpointSetsCookies(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")

	w := ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"jane@example.com","password":"password123"}`), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var byName = map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		byName[c.Name] = c
	}

	access := byName[middleware.CookieAccessToken]
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, int(ts.cfg.AccessCookieMaxAge.Seconds()), access.MaxAge)

	refresh := byName[middleware.CookieRefreshToken]
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, int(ts.cfg.RefreshCookieMaxAge.Seconds()), refresh.MaxAge)

	// The access cookie works against protected endpoints.
	_, err := ts.issuer.ValidateAccessToken(access.Value)
	assert.NoError(t, err)
}

func TestLoginRedirectTarget(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")

	// A same-site path is echoed back for the frontend to follow.
	w := ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"jane@example.com","password":"password123","redirect_uri":"/dashboard"}`), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"redirect_to":"/dashboard"`)

	// Absolute and protocol-relative targets are open redirects.
	w = ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"jane@example.com","password":"password123","redirect_uri":"https://evil.example.com/"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")

	w = ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"jane@example.com","password":"password123","redirect_uri":"//evil.example.com"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Register validates the same way.
	w = ts.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"full_name":"Eve","email":"eve@example.com","password":"password123","redirect_uri":"https://evil.example.com/"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"full_name":"Eve","email":"eve@example.com","password":"password123","redirect_uri":"/welcome"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"redirect_to":"/welcome"`)
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")

	w := ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"jane@example.com","password":"wrong"}`), nil)
	wrongPassword := w.Body.String()
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"password123"}`), nil)
	unknownEmail := w.Body.String()
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Responses must not reveal whether the account exists.
	assert.Equal(t, wrongPassword, unknownEmail)
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	user := ts.registerUser(t, "jane@example.com", "password123")
	cookies := ts.login(t, "jane@example.com", "password123")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.ID)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")
	cookies := ts.login(t, "jane@example.com", "password123")

	w := ts.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)

	// Token cookies are expired.
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.CookieAccessToken || c.Name == middleware.CookieRefreshToken {
			assert.Less(t, c.MaxAge, 0)
		}
	}

	// The SSO session is gone.
	cookies = mergeCookies(cookies, w.Result().Cookies())
	w = ts.do(httptest.NewRequest(http.MethodGet, "/oauth/check-session", nil), cookies)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")
	cookies := ts.login(t, "jane@example.com", "password123")

	w := ts.do(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil), cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var oldRefresh string
	for _, c := range cookies {
		if c.Name == middleware.CookieRefreshToken {
			oldRefresh = c.Value
		}
	}
	require.NotEmpty(t, oldRefresh)

	var newRefresh string
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.CookieRefreshToken {
			newRefresh = c.Value
		}
	}
	require.NotEmpty(t, newRefresh)

	oldClaims, err := ts.issuer.ValidateRefreshToken(oldRefresh)
	require.NoError(t, err)
	newClaims, err := ts.issuer.ValidateRefreshToken(newRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, oldClaims.TokenID, newClaims.TokenID)
}

func TestRefreshEndpointInvalidToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(jsonRequest(http.MethodPost, "/auth/refresh",
		`{"refresh_token":"garbage"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_grant")
}

func TestForgotPasswordResponsesAreIdentical(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")

	known := ts.do(jsonRequest(http.MethodPost, "/auth/forgot-password",
		`{"email":"jane@example.com"}`), nil)
	unknown := ts.do(jsonRequest(http.MethodPost, "/auth/forgot-password",
		`{"email":"nobody@example.com"}`), nil)

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	// Byte-identical bodies: the endpoint must not leak account existence.
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}

func TestResetPasswordEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")

	code, err := ts.otp.Generate(context.Background(), "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{
		"email":        "jane@example.com",
		"code":         code,
		"new_password": "new-password-1",
	})
	w := ts.do(jsonRequest(http.MethodPost, "/auth/reset-password", string(body)), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Old password is gone, new one works.
	w = ts.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"jane@example.com","password":"password123"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	ts.login(t, "jane@example.com", "new-password-1")
}

func TestResetPasswordEndpointBadCode(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")

	_, err := ts.otp.Generate(context.Background(), "jane@example.com", models.OTPPurposePasswordReset)
	require.NoError(t, err)

	w := ts.do(jsonRequest(http.MethodPost, "/auth/reset-password",
		`{"email":"jane@example.com","code":"000000","new_password":"new-password-1"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_otp")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
