package middleware

import (
	"net/http"
	"strings"

	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/token"

	"github.com/gin-gonic/gin"
)

// extractAccessToken pulls the access token from the Authorization header,
// falling back to the first-party cookie set by the auth endpoints.
func extractAccessToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
			return raw
		}
		return ""
	}
	raw, err := c.Cookie(CookieAccessToken)
	if err != nil {
		return ""
	}
	return raw
}

func abortUnauthorized(c *gin.Context, description string) {
	c.Header("WWW-Authenticate", `Bearer realm="sso", error="invalid_token"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_token",
		"error_description": description,
	})
}

// RequireAuth validates the access token on the request and stores the
// token identity in the request context.
func RequireAuth(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractAccessToken(c)
		if raw == "" {
			abortUnauthorized(c, "access token required")
			return
		}

		claims, err := issuer.ValidateAccessToken(raw)
		if err != nil {
			abortUnauthorized(c, "access token is expired or invalid")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextScope, claims.Scope)
		c.Set(ContextClientID, claims.ClientID)
		c.Next()
	}
}

// RequireAdmin allows only users with the admin role. It must run after
// RequireAuth, and re-checks the role against the database so a demoted
// admin loses access before the token expires.
func RequireAdmin(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "access_denied",
				"error_description": "admin access required",
			})
			return
		}

		user, err := authService.GetUserByID(c.Request.Context(), userID)
		if err != nil || !user.IsAdmin() || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "access_denied",
				"error_description": "admin access required",
			})
			return
		}

		c.Next()
	}
}
