package middleware

import (
	"github.com/gin-gonic/gin"
)

// Context keys set by RequireAuth for downstream handlers.
const (
	ContextUserID   = "user_id"
	ContextEmail    = "email"
	ContextRole     = "role"
	ContextScope    = "scope"
	ContextClientID = "client_id"
)

// Cookie names used by the first-party auth endpoints.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
)

// GetUserID returns the authenticated user ID, or "" when the request is
// anonymous.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

func GetScope(c *gin.Context) string {
	return c.GetString(ContextScope)
}

func GetClientID(c *gin.Context) string {
	return c.GetString(ContextClientID)
}
