package handlers

import (
	"net/http"

	"github.com/SAOSTAR1501/sso-backend/internal/store"
	"github.com/SAOSTAR1501/sso-backend/internal/version"

	"github.com/gin-gonic/gin"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	store *store.Store
}

func NewHealthHandler(s *store.Store) *HealthHandler {
	return &HealthHandler{store: s}
}

// Check reports server and database health (GET /health).
func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "ok",
		"version":  version.Version,
	})
}
