// Package surface holds the client-side representation of agent-produced
// UI surfaces and the stores that persist and reconcile them.
package surface

import (
	"fmt"
	"strings"
	"time"
)

// Operation identifies how an update event mutates a surface.
type Operation string

const (
	OpReplace Operation = "replace"
	OpAppend  Operation = "append"
	OpPatch   Operation = "patch"
	OpClear   Operation = "clear"
)

// EventTypeSurfaceUpdate is the fixed type tag carried by update events.
const EventTypeSurfaceUpdate = "surface_update"

// Component is a polymorphic UI descriptor produced by the upstream agent.
// Props is an open bag whose shape depends on Type; unrecognized types are
// tolerated and rendered as a fallback, never treated as fatal.
type Component struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Props map[string]any `json:"props,omitempty"`
}

// Surface is a named, versioned container of UI state for one (user, agent)
// pair. Component order is render order. Version never decreases.
type Surface struct {
	SurfaceID  string         `json:"surface_id"`
	UserID     string         `json:"user_id"`
	AgentID    string         `json:"agent_id"`
	Version    int64          `json:"version"`
	Components []Component    `json:"components"`
	DataModel  map[string]any `json:"data_model,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// UpdateEvent is an inbound message on the realtime channel. Timestamp is
// for display ordering only; Version governs conflict resolution.
type UpdateEvent struct {
	Type       string         `json:"type"`
	Operation  Operation      `json:"operation"`
	SurfaceID  string         `json:"surface_id"`
	UserID     string         `json:"user_id"`
	AgentID    string         `json:"agent_id"`
	Version    int64          `json:"version"`
	Components []Component    `json:"components,omitempty"`
	DataModel  map[string]any `json:"data_model,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SurfaceID builds the canonical surface ID for a session and purpose tag,
// e.g. "session-copilot:<appointmentID>".
func SurfaceID(purpose, sessionID string) string {
	return fmt.Sprintf("%s:%s", purpose, sessionID)
}

// ValidateEvent checks the structural invariants of an inbound event before
// it may be applied: a known operation, routing identity fields, well-formed
// components, and no duplicate component IDs in a replace payload.
func ValidateEvent(ev UpdateEvent) error {
	if ev.Type != EventTypeSurfaceUpdate {
		return fmt.Errorf("surface: unexpected event type %q", ev.Type)
	}
	switch ev.Operation {
	case OpReplace, OpAppend, OpPatch, OpClear:
	default:
		return fmt.Errorf("surface: unknown operation %q", ev.Operation)
	}
	if strings.TrimSpace(ev.SurfaceID) == "" {
		return fmt.Errorf("surface: event missing surface_id")
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return fmt.Errorf("surface: event missing user_id")
	}
	if ev.Version <= 0 {
		return fmt.Errorf("surface: event version must be positive, got %d", ev.Version)
	}
	seen := make(map[string]struct{}, len(ev.Components))
	for i, c := range ev.Components {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("surface: component %d missing id", i)
		}
		if strings.TrimSpace(c.Type) == "" && ev.Operation != OpPatch {
			return fmt.Errorf("surface: component %q missing type", c.ID)
		}
		if ev.Operation == OpReplace {
			if _, dup := seen[c.ID]; dup {
				return fmt.Errorf("surface: duplicate component id %q in replace payload", c.ID)
			}
			seen[c.ID] = struct{}{}
		}
	}
	return nil
}

// clone returns a copy of the component safe to hand to callers.
func (c Component) clone() Component {
	out := Component{ID: c.ID, Type: c.Type}
	if c.Props != nil {
		out.Props = make(map[string]any, len(c.Props))
		for k, v := range c.Props {
			out.Props[k] = v
		}
	}
	return out
}

func cloneComponents(in []Component) []Component {
	if in == nil {
		return nil
	}
	out := make([]Component, len(in))
	for i, c := range in {
		out[i] = c.clone()
	}
	return out
}

func cloneDataModel(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
