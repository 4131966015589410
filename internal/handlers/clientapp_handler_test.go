package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adminLogin signs in as the seeded administrator.
func (ts *testServer) adminLogin(t *testing.T) []*http.Cookie {
	t.Helper()
	return ts.login(t, "admin@localhost", "test-admin-password")
}

func TestAdminCreateClientApp(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.adminLogin(t)

	w := ts.do(jsonRequest(http.MethodPost, "/admin/client-apps",
		`{"name":"Billing Portal","redirectUris":["https://billing.example.com/cb"]}`), cookies)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Client struct {
			ClientID string `json:"clientId"`
			Name     string `json:"name"`
		} `json:"client"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Billing Portal", resp.Client.Name)
	assert.Len(t, resp.ClientSecret, 64)

	// The secret hash never leaves the server again.
	w = ts.do(httptest.NewRequest(http.MethodGet,
		"/admin/client-apps/"+resp.Client.ClientID, nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), resp.ClientSecret)
	assert.NotContains(t, w.Body.String(), "clientSecret")
}

func TestAdminEndpointsRejectNonAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "jane@example.com", "password123")
	cookies := ts.login(t, "jane@example.com", "password123")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/admin/client-apps", nil), cookies)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/admin/client-apps", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminListClientApps(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.adminLogin(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/admin/client-apps", nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)
	// The seeded portal client is always present.
	assert.Contains(t, w.Body.String(), "SSO Portal")
	assert.Contains(t, w.Body.String(), `"pagination"`)
}

func TestAdminUpdateClientApp(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.adminLogin(t)
	client, _ := ts.registerClient(t, untrustedClientInput())

	w := ts.do(jsonRequest(http.MethodPut, "/admin/client-apps/"+client.ClientID,
		`{"trusted":true,"accessTokenLifetime":120}`), cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"trusted":true`)
	assert.Contains(t, w.Body.String(), `"accessTokenLifetime":120`)
}

func TestAdminRegenerateSecret(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.adminLogin(t)
	client, oldSecret := ts.registerClient(t, untrustedClientInput())

	w := ts.do(httptest.NewRequest(http.MethodPost,
		"/admin/client-apps/"+client.ClientID+"/regenerate-secret", nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.ClientSecret, 64)
	assert.NotEqual(t, oldSecret, resp.ClientSecret)
}

func TestAdminDeleteClientApp(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.adminLogin(t)
	client, _ := ts.registerClient(t, untrustedClientInput())

	w := ts.do(httptest.NewRequest(http.MethodDelete,
		"/admin/client-apps/"+client.ClientID, nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)

	// Soft delete: the record survives with active flipped off.
	w = ts.do(httptest.NewRequest(http.MethodGet,
		"/admin/client-apps/"+client.ClientID, nil), cookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isActive":false`)

	// The deactivated client can no longer enter the authorize flow.
	w = ts.do(httptest.NewRequest(http.MethodGet,
		authorizeURL(client.ClientID, "profile", ""), nil), cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized_client")
}
