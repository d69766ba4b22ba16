package surface

import (
	"sync"
	"time"
)

// Store holds the canonical client-side view of one surface. All mutation
// goes through the Apply* methods, which enforce version monotonicity
// internally so no call site can bypass the stale-event guard.
//
// A Store is owned by exactly one Reconciler per mounted surface; the mutex
// exists because readers (the feed, tests) may snapshot concurrently.
type Store struct {
	mu     sync.RWMutex
	surf   Surface
	seeded bool
}

// ApplyOutcome reports what an event application did to the store.
type ApplyOutcome struct {
	Applied bool
	// Stale is set when the event version was <= the current version.
	// Expected under at-least-once delivery; not an error.
	Stale bool
	// IgnoredPatchIDs lists patch targets that did not exist in the store.
	IgnoredPatchIDs []string
}

// NewStore creates an empty store for the given surface identity.
func NewStore(surfaceID, userID, agentID string) *Store {
	return &Store{
		surf: Surface{
			SurfaceID: surfaceID,
			UserID:    userID,
			AgentID:   agentID,
		},
	}
}

// Initialize seeds the store wholesale from the authoritative snapshot.
// A second call is a no-op so duplicate mount effects stay harmless.
func (s *Store) Initialize(snapshot Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return
	}
	s.surf.Version = snapshot.Version
	s.surf.Components = cloneComponents(snapshot.Components)
	s.surf.DataModel = cloneDataModel(snapshot.DataModel)
	if snapshot.AgentID != "" {
		s.surf.AgentID = snapshot.AgentID
	}
	s.surf.UpdatedAt = time.Now().UTC()
	s.seeded = true
}

// Apply routes an update event to the matching mutation. The caller has
// already validated routing fields; receivedAt becomes updatedAt on success
// (the event's own timestamp may be skewed).
func (s *Store) Apply(ev UpdateEvent, receivedAt time.Time) ApplyOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Version <= s.surf.Version {
		return ApplyOutcome{Stale: true}
	}

	out := ApplyOutcome{Applied: true}
	switch ev.Operation {
	case OpReplace:
		s.surf.Components = cloneComponents(ev.Components)
		if ev.DataModel != nil {
			s.surf.DataModel = cloneDataModel(ev.DataModel)
		}
	case OpAppend:
		s.appendLocked(ev.Components)
		if ev.DataModel != nil {
			s.mergeDataModelLocked(ev.DataModel)
		}
	case OpPatch:
		out.IgnoredPatchIDs = s.patchLocked(ev.Components)
		if ev.DataModel != nil {
			s.mergeDataModelLocked(ev.DataModel)
		}
	case OpClear:
		s.surf.Components = nil
		if ev.DataModel != nil {
			s.surf.DataModel = cloneDataModel(ev.DataModel)
		}
	default:
		return ApplyOutcome{}
	}

	s.surf.Version = ev.Version
	s.surf.UpdatedAt = receivedAt.UTC()
	s.seeded = true
	return out
}

// ApplyReplace replaces the entire component list under the monotonicity
// rule. Returns false for stale versions.
func (s *Store) ApplyReplace(components []Component, version int64) bool {
	return s.Apply(UpdateEvent{
		Type:       EventTypeSurfaceUpdate,
		Operation:  OpReplace,
		Version:    version,
		Components: components,
	}, time.Now()).Applied
}

// ApplyAppend appends components whose IDs are not already present.
// Duplicates are skipped, not overwritten; the version still advances.
func (s *Store) ApplyAppend(components []Component, version int64) bool {
	return s.Apply(UpdateEvent{
		Type:       EventTypeSurfaceUpdate,
		Operation:  OpAppend,
		Version:    version,
		Components: components,
	}, time.Now()).Applied
}

// ApplyPatch shallow-merges each partial's props into the component with the
// same ID. Partials referencing unknown IDs are ignored and returned for
// observability; they are never inserted.
func (s *Store) ApplyPatch(partials []Component, version int64) (bool, []string) {
	out := s.Apply(UpdateEvent{
		Type:       EventTypeSurfaceUpdate,
		Operation:  OpPatch,
		Version:    version,
		Components: partials,
	}, time.Now())
	return out.Applied, out.IgnoredPatchIDs
}

// Clear empties the component list, leaving the data model untouched.
func (s *Store) Clear(version int64) bool {
	return s.Apply(UpdateEvent{
		Type:      EventTypeSurfaceUpdate,
		Operation: OpClear,
		Version:   version,
	}, time.Now()).Applied
}

// Snapshot returns a copy of the current surface safe for callers to hold.
func (s *Store) Snapshot() Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.surf
	out.Components = cloneComponents(s.surf.Components)
	out.DataModel = cloneDataModel(s.surf.DataModel)
	return out
}

// Version returns the current surface version.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surf.Version
}

func (s *Store) appendLocked(components []Component) {
	existing := make(map[string]struct{}, len(s.surf.Components))
	for _, c := range s.surf.Components {
		existing[c.ID] = struct{}{}
	}
	for _, c := range components {
		if _, dup := existing[c.ID]; dup {
			continue
		}
		existing[c.ID] = struct{}{}
		s.surf.Components = append(s.surf.Components, c.clone())
	}
}

func (s *Store) patchLocked(partials []Component) []string {
	index := make(map[string]int, len(s.surf.Components))
	for i, c := range s.surf.Components {
		index[c.ID] = i
	}
	var ignored []string
	for _, p := range partials {
		i, ok := index[p.ID]
		if !ok {
			ignored = append(ignored, p.ID)
			continue
		}
		target := &s.surf.Components[i]
		if target.Props == nil && len(p.Props) > 0 {
			target.Props = make(map[string]any, len(p.Props))
		}
		for k, v := range p.Props {
			target.Props[k] = v
		}
	}
	return ignored
}

func (s *Store) mergeDataModelLocked(updates map[string]any) {
	if s.surf.DataModel == nil {
		s.surf.DataModel = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		s.surf.DataModel[k] = v
	}
}
