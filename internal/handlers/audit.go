package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/services"
	"github.com/SAOSTAR1501/sso-backend/internal/store"

	"github.com/gin-gonic/gin"
)

// AuditHandler exposes the admin audit log API.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List returns a filtered page of audit events (GET /admin/audit-logs).
// Filters: event_type, severity, actor_user_id, resource_id, success,
// from, to (RFC 3339).
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	params := store.NewPaginationParams(page, pageSize, "")

	filters := store.AuditLogFilters{
		EventType:   models.EventType(c.Query("event_type")),
		Severity:    models.EventSeverity(c.Query("severity")),
		ActorUserID: c.Query("actor_user_id"),
		ResourceID:  c.Query("resource_id"),
	}
	if raw := c.Query("success"); raw != "" {
		success := raw == "true"
		filters.Success = &success
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "from must be an RFC 3339 timestamp",
			})
			return
		}
		filters.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "to must be an RFC 3339 timestamp",
			})
			return
		}
		filters.To = to
	}

	logs, pagination, err := h.audit.GetAuditLogs(params, filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to query audit logs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":       logs,
		"pagination": pagination,
	})
}
