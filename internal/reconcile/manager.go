package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/therapyflow/agent-surface/internal/observability/metrics"
	"github.com/therapyflow/agent-surface/internal/realtime"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// Manager shares one Reconciler per (user, surface) pair across consumers,
// so concurrent feed connections to the same surface do not open duplicate
// subscriptions. Reference counted: the reconciler closes when the last
// consumer releases it.
type Manager struct {
	source  SnapshotSource
	broker  realtime.Broker
	logger  *logging.Logger
	metrics *metrics.SurfaceMetrics

	mu      sync.Mutex
	entries map[string]*managedEntry
}

type managedEntry struct {
	rec  *Reconciler
	refs int
}

// NewManager builds a reconciler manager.
func NewManager(source SnapshotSource, broker realtime.Broker, logger *logging.Logger, m *metrics.SurfaceMetrics) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		source:  source,
		broker:  broker,
		logger:  logger,
		metrics: m,
		entries: make(map[string]*managedEntry),
	}
}

// Acquire returns the shared reconciler for the pair, starting one on first
// use. Callers must Release with the same identity when done.
func (m *Manager) Acquire(ctx context.Context, surfaceID, userID, agentID string) (*Reconciler, error) {
	key := entryKey(surfaceID, userID)

	m.mu.Lock()
	if entry, ok := m.entries[key]; ok {
		entry.refs++
		m.mu.Unlock()
		return entry.rec, nil
	}
	m.mu.Unlock()

	rec, err := New(Options{
		SurfaceID: surfaceID,
		UserID:    userID,
		AgentID:   agentID,
		Source:    m.source,
		Broker:    m.broker,
		Logger:    m.logger,
		Metrics:   m.metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := rec.Start(ctx); err != nil {
		rec.Close()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Lost a race with another acquirer: keep theirs, fold into it.
	if entry, ok := m.entries[key]; ok {
		entry.refs++
		go rec.Close()
		return entry.rec, nil
	}
	m.entries[key] = &managedEntry{rec: rec, refs: 1}
	return rec, nil
}

// Release drops one reference; the reconciler tears down at zero.
func (m *Manager) Release(surfaceID, userID string) {
	key := entryKey(surfaceID, userID)

	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.refs--
	var toClose *Reconciler
	if entry.refs <= 0 {
		delete(m.entries, key)
		toClose = entry.rec
	}
	m.mu.Unlock()

	if toClose != nil {
		toClose.Close()
	}
}

// CloseAll tears down every managed reconciler. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := make([]*managedEntry, 0, len(m.entries))
	for k, e := range m.entries {
		entries = append(entries, e)
		delete(m.entries, k)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.rec.Close()
	}
}

func entryKey(surfaceID, userID string) string {
	return fmt.Sprintf("%s|%s", userID, surfaceID)
}
