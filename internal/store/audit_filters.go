package store

import (
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/models"

	"gorm.io/gorm"
)

// AuditLogFilters narrows audit log queries.
type AuditLogFilters struct {
	EventType   models.EventType
	Severity    models.EventSeverity
	ActorUserID string
	ResourceID  string
	Success     *bool
	From        time.Time
	To          time.Time
}

func (f AuditLogFilters) apply(query *gorm.DB) *gorm.DB {
	if f.EventType != "" {
		query = query.Where("event_type = ?", f.EventType)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", f.ActorUserID)
	}
	if f.ResourceID != "" {
		query = query.Where("resource_id = ?", f.ResourceID)
	}
	if f.Success != nil {
		query = query.Where("success = ?", *f.Success)
	}
	if !f.From.IsZero() {
		query = query.Where("event_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("event_time <= ?", f.To)
	}
	return query
}
