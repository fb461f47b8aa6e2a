// Package audit records an append-only trail of admin mutations. Entries are
// written to the store and mirrored as structured log events; they are never
// updated or deleted.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"saylau.org/internal/ids"
	"saylau.org/internal/obs"
)

// Actions written by the admin handlers.
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionResetPassword = "reset_password"
	ActionBulkCreate    = "bulk_create"
	ActionSetMembers    = "set_members"
	ActionSetAllowed    = "set_allowed_groups"
)

// Entry is one immutable audit row.
type Entry struct {
	ID         int            `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     *int           `json:"userId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Storage is the persistence contract for the trail.
type Storage interface {
	AppendAudit(ctx context.Context, e Entry) (Entry, error)
	ListAudit(ctx context.Context, limit int) ([]Entry, error)
}

// ListLimitMax caps how many entries a single read may return.
const ListLimitMax = 500

// Recorder appends entries and mirrors them to the structured log.
type Recorder struct {
	store Storage
}

// NewRecorder wires a recorder over the given storage.
func NewRecorder(store Storage) *Recorder {
	return &Recorder{store: store}
}

// Record appends one entry. A storage failure is logged but not propagated:
// the admin mutation already happened and must not be rolled back or retried
// because the trail write failed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	traceID := ids.New()
	if _, err := r.store.AppendAudit(ctx, e); err != nil {
		obs.LogRequest(map[string]any{
			"ts":       time.Now().UTC().Format(time.RFC3339Nano),
			"level":    "error",
			"msg":      "audit_append_failed",
			"trace_id": traceID,
			"action":   e.Action,
			"error":    err.Error(),
		})
		return
	}
	event := map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"level":       "info",
		"msg":         "audit_event",
		"trace_id":    traceID,
		"action":      e.Action,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
	}
	if e.UserID != nil {
		event["user_id"] = *e.UserID
	}
	if len(e.Payload) > 0 {
		if raw, err := json.Marshal(e.Payload); err == nil {
			event["payload"] = json.RawMessage(raw)
		}
	}
	obs.LogRequest(event)
}

// List returns the newest entries first, clamped to ListLimitMax.
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > ListLimitMax {
		limit = ListLimitMax
	}
	return r.store.ListAudit(ctx, limit)
}
