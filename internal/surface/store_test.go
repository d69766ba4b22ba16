package surface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comp(id, typ string, props map[string]any) Component {
	return Component{ID: id, Type: typ, Props: props}
}

func TestInitializeSeedsOnce(t *testing.T) {
	store := NewStore("session-copilot:appt-1", "user-1", "booking-agent")

	store.Initialize(Surface{
		Version:    1,
		Components: []Component{comp("a", "Text", nil)},
		DataModel:  map[string]any{"step": "THERAPIST_SELECTION"},
	})

	snap := store.Snapshot()
	require.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Components, 1)

	// Duplicate mount effect: second initialize is a no-op.
	store.Initialize(Surface{Version: 9, Components: nil})
	snap = store.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Components, 1)
}

func TestAppendAfterSnapshot(t *testing.T) {
	store := NewStore("s", "u", "a")
	store.Initialize(Surface{Version: 1, Components: []Component{comp("A", "Text", nil)}})

	applied := store.ApplyAppend([]Component{comp("B", "Button", nil)}, 2)
	require.True(t, applied)

	snap := store.Snapshot()
	assert.Equal(t, int64(2), snap.Version)
	require.Len(t, snap.Components, 2)
	assert.Equal(t, "A", snap.Components[0].ID)
	assert.Equal(t, "B", snap.Components[1].ID)
}

func TestVersionMonotonicity(t *testing.T) {
	store := NewStore("s", "u", "a")
	store.Initialize(Surface{Version: 5, Components: []Component{comp("A", "Text", map[string]any{"value": "hello"})}})

	// Redelivered older event must leave everything unchanged.
	applied := store.ApplyReplace([]Component{comp("X", "Text", nil)}, 3)
	assert.False(t, applied)

	snap := store.Snapshot()
	assert.Equal(t, int64(5), snap.Version)
	require.Len(t, snap.Components, 1)
	assert.Equal(t, "A", snap.Components[0].ID)
	assert.Equal(t, "hello", snap.Components[0].Props["value"])

	// Equal version is also stale.
	assert.False(t, store.Clear(5))
	assert.Equal(t, int64(5), store.Version())
}

func TestVersionTracksMaxApplied(t *testing.T) {
	store := NewStore("s", "u", "a")
	versions := []int64{1, 3, 2, 7, 7, 4, 9}
	var wantMax int64
	for _, v := range versions {
		applied := store.ApplyAppend(nil, v)
		if v > wantMax {
			wantMax = v
			assert.True(t, applied, "version %d should apply", v)
		} else {
			assert.False(t, applied, "version %d should be stale", v)
		}
	}
	assert.Equal(t, wantMax, store.Version())
}

func TestAppendIdempotence(t *testing.T) {
	store := NewStore("s", "u", "a")
	store.Initialize(Surface{Version: 1, Components: []Component{
		comp("A", "TherapistCard", map[string]any{"fullName": "Dr. Chen"}),
	}})

	// Same ID with different props: skipped, not overwritten.
	applied := store.ApplyAppend([]Component{
		comp("A", "TherapistCard", map[string]any{"fullName": "Dr. Who"}),
		comp("B", "Button", nil),
	}, 2)
	require.True(t, applied)

	snap := store.Snapshot()
	require.Len(t, snap.Components, 2)
	assert.Equal(t, "Dr. Chen", snap.Components[0].Props["fullName"])
	// Version still advances even for a pure-duplicate append.
	assert.True(t, store.ApplyAppend([]Component{comp("B", "Button", nil)}, 3))
	assert.Equal(t, int64(3), store.Version())
	assert.Len(t, store.Snapshot().Components, 2)
}

func TestPatchMergesAndNeverInserts(t *testing.T) {
	store := NewStore("s", "u", "a")
	store.Initialize(Surface{Version: 5, Components: []Component{
		comp("slot-1", "TimeSlotButton", map[string]any{"time": "10:00", "available": true}),
	}})

	applied, ignored := store.ApplyPatch([]Component{
		{ID: "slot-1", Props: map[string]any{"available": false}},
		{ID: "missing-id", Props: map[string]any{"foo": 1}},
	}, 6)
	require.True(t, applied)
	assert.Equal(t, []string{"missing-id"}, ignored)

	snap := store.Snapshot()
	// Unknown patch target never increases the component count.
	require.Len(t, snap.Components, 1)
	assert.Equal(t, int64(6), snap.Version)
	assert.Equal(t, false, snap.Components[0].Props["available"])
	assert.Equal(t, "10:00", snap.Components[0].Props["time"])
}

func TestClearKeepsDataModel(t *testing.T) {
	store := NewStore("s", "u", "a")
	store.Initialize(Surface{
		Version:    1,
		Components: []Component{comp("A", "Text", nil)},
		DataModel:  map[string]any{"step": "CONFIRMATION"},
	})

	require.True(t, store.Clear(2))
	snap := store.Snapshot()
	assert.Empty(t, snap.Components)
	assert.Equal(t, "CONFIRMATION", snap.DataModel["step"])

	// Clear with an explicit data model replaces it.
	res := store.Apply(UpdateEvent{
		Type:      EventTypeSurfaceUpdate,
		Operation: OpClear,
		Version:   3,
		DataModel: map[string]any{"step": "THERAPIST_SELECTION"},
	}, time.Now())
	require.True(t, res.Applied)
	assert.Equal(t, "THERAPIST_SELECTION", store.Snapshot().DataModel["step"])
}

func TestApplySetsUpdatedAtFromReceiptTime(t *testing.T) {
	store := NewStore("s", "u", "a")
	receivedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := store.Apply(UpdateEvent{
		Type:      EventTypeSurfaceUpdate,
		Operation: OpReplace,
		Version:   1,
		// Skewed publisher clock must not win.
		Timestamp:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Components: []Component{comp("A", "Text", nil)},
	}, receivedAt)
	require.True(t, res.Applied)
	assert.Equal(t, receivedAt, store.Snapshot().UpdatedAt)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore("s", "u", "a")
	store.Initialize(Surface{Version: 1, Components: []Component{
		comp("A", "Text", map[string]any{"value": "original"}),
	}})

	snap := store.Snapshot()
	snap.Components[0].Props["value"] = "mutated"
	snap.Components = append(snap.Components, comp("B", "Text", nil))

	fresh := store.Snapshot()
	require.Len(t, fresh.Components, 1)
	assert.Equal(t, "original", fresh.Components[0].Props["value"])
}
