// Package action validates user-initiated intents locally and forwards the
// ones that pass to the upstream agent. Structurally invalid actions never
// reach the network.
package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Action is a user-originated intent aimed at the upstream agent.
type Action struct {
	Name      string         `json:"action"`
	SurfaceID string         `json:"surface_id"`
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// Reason classifies why an action was rejected.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnknownAction   Reason = "unknown_action"
	ReasonMissingField    Reason = "missing_field"
	ReasonPayloadTooLarge Reason = "payload_too_large"
	ReasonSuspiciousData  Reason = "suspicious_payload"
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonUpstream        Reason = "upstream_rejected"
	ReasonTransport       Reason = "transport_error"
	ReasonOutOfOrder      Reason = "out_of_order"
)

// maxPayloadBytes caps the serialized payload size.
const maxPayloadBytes = 10 * 1024

// requiredFields is the closed validation table: action name to the payload
// fields that must be present and non-empty. Unknown actions are rejected.
var requiredFields = map[string][]string{
	"select_therapist": {"therapistId"},
	"select_date":      {"therapistId", "date"},
	"select_time_slot": {"therapistId", "date", "time"},
	"confirm_booking":  {"therapistId", "date", "time"},
	"cancel_booking":   {},
}

var suspiciousPayload = regexp.MustCompile(`(?i)<script|javascript:|data:`)

// ValidationError carries the rejection reason and a human-readable detail.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("action: %s: %s", e.Reason, e.Detail)
}

// Validate checks an action against the table. A payload passes iff every
// required field is present and non-empty; extra fields are always allowed.
func Validate(a Action) *ValidationError {
	fields, known := requiredFields[a.Name]
	if !known {
		return &ValidationError{
			Reason: ReasonUnknownAction,
			Detail: fmt.Sprintf("action %q is not allowed", a.Name),
		}
	}

	for _, field := range fields {
		value, ok := a.Payload[field]
		if !ok || value == nil {
			return &ValidationError{
				Reason: ReasonMissingField,
				Detail: fmt.Sprintf("payload field %q is required for %s", field, a.Name),
			}
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return &ValidationError{
				Reason: ReasonMissingField,
				Detail: fmt.Sprintf("payload field %q must be non-empty for %s", field, a.Name),
			}
		}
	}

	if len(a.Payload) > 0 {
		raw, err := json.Marshal(a.Payload)
		if err != nil {
			return &ValidationError{Reason: ReasonSuspiciousData, Detail: "payload is not serializable"}
		}
		if len(raw) > maxPayloadBytes {
			return &ValidationError{
				Reason: ReasonPayloadTooLarge,
				Detail: fmt.Sprintf("payload is %d bytes, limit is %d", len(raw), maxPayloadBytes),
			}
		}
		if suspiciousPayload.Match(raw) {
			return &ValidationError{Reason: ReasonSuspiciousData, Detail: "payload contains blocked content"}
		}
	}

	return nil
}

// KnownActions returns the closed set of allowed action names.
func KnownActions() []string {
	out := make([]string, 0, len(requiredFields))
	for name := range requiredFields {
		out = append(out, name)
	}
	return out
}
