// Package compliance records an immutable audit trail of surface activity.
// Telehealth booking actions are clinical scheduling events and need a
// durable who-did-what record independent of the live surface state.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/therapyflow/agent-surface/internal/action"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// AuditEventType classifies an audit record.
type AuditEventType string

const (
	// EventActionDispatched is logged when a user action is forwarded upstream.
	EventActionDispatched AuditEventType = "action.dispatched"
	// EventActionRejected is logged when an action is rejected before or by upstream.
	EventActionRejected AuditEventType = "action.rejected"
	// EventSurfaceHydrated is logged when a reconciler seeds from a snapshot.
	EventSurfaceHydrated AuditEventType = "surface.hydrated"
	// EventSurfaceStale is logged when an out-of-order update is dropped.
	EventSurfaceStale AuditEventType = "surface.stale_update"
)

// AuditEvent is one immutable row in the surface audit trail.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	UserID    string          `json:"user_id"`
	SurfaceID string          `json:"surface_id,omitempty"`
	Action    string          `json:"action,omitempty"`
	Outcome   string          `json:"outcome,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditService writes and queries the audit trail.
type AuditService struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAuditService creates an audit service over a standard SQL handle.
func NewAuditService(db *sql.DB, logger *logging.Logger) *AuditService {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditService{db: db, logger: logger}
}

// LogEvent records one audit event. ID and CreatedAt are filled when empty.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO surface_audit_events (
			id, event_type, user_id, surface_id, action, outcome, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.UserID,
		nullString(event.SurfaceID),
		nullString(event.Action),
		nullString(event.Outcome),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// RecordAction implements action.Recorder. Audit failures never block the
// dispatch path; they are logged and dropped.
func (s *AuditService) RecordAction(ctx context.Context, a action.Action, outcome string) {
	eventType := EventActionDispatched
	if outcome != "accepted" {
		eventType = EventActionRejected
	}

	details, _ := json.Marshal(map[string]any{"payload_fields": fieldNames(a.Payload)})

	err := s.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		UserID:    a.UserID,
		SurfaceID: a.SurfaceID,
		Action:    a.Name,
		Outcome:   outcome,
		Details:   details,
	})
	if err != nil {
		s.logger.Error("audit write failed",
			"action", a.Name, "user_id", a.UserID, "error", err)
	}
}

// LogSurfaceHydrated records a snapshot seed.
func (s *AuditService) LogSurfaceHydrated(ctx context.Context, userID, surfaceID string, version int64) error {
	details, _ := json.Marshal(map[string]any{"version": version})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventSurfaceHydrated,
		UserID:    userID,
		SurfaceID: surfaceID,
		Details:   details,
	})
}

// LogStaleUpdate records a dropped out-of-order update.
func (s *AuditService) LogStaleUpdate(ctx context.Context, userID, surfaceID string, eventVersion, currentVersion int64) error {
	details, _ := json.Marshal(map[string]any{
		"event_version":   eventVersion,
		"current_version": currentVersion,
	})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventSurfaceStale,
		UserID:    userID,
		SurfaceID: surfaceID,
		Details:   details,
	})
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	UserID    string
	SurfaceID string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// QueryEvents retrieves audit events for a user, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, surface_id, action, outcome, details, created_at
		FROM surface_audit_events
		WHERE user_id = $1
	`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.SurfaceID != "" {
		query += fmt.Sprintf(" AND surface_id = $%d", argIdx)
		args = append(args, filter.SurfaceID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var surfaceID, actionName, outcome sql.NullString
		err := rows.Scan(
			&e.ID, &e.EventType, &e.UserID, &surfaceID, &actionName,
			&outcome, &e.Details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.SurfaceID = surfaceID.String
		e.Action = actionName.String
		e.Outcome = outcome.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// fieldNames keeps payload values out of the audit log. Booking payloads can
// carry free-text notes; only the shape is recorded.
func fieldNames(payload map[string]any) []string {
	if len(payload) == 0 {
		return nil
	}
	names := make([]string, 0, len(payload))
	for k := range payload {
		names = append(names, k)
	}
	return names
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
