// Package reconcile bridges the realtime transport and the surface store:
// it hydrates from the authoritative snapshot, then applies live events in
// arrival order, with version monotonicity as the defense against
// at-least-once redelivery.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/therapyflow/agent-surface/internal/observability/metrics"
	"github.com/therapyflow/agent-surface/internal/realtime"
	"github.com/therapyflow/agent-surface/internal/surface"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// State is the reconciler lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateHydrated     State = "hydrated"
	StateLive         State = "live"
	// StateError is terminal for this instance; recovery is a new
	// reconciler (manual retry), never an automatic one.
	StateError  State = "error"
	StateClosed State = "closed"
)

const defaultQueueDepth = 256

// SnapshotSource fetches the authoritative persisted snapshot.
type SnapshotSource interface {
	Fetch(ctx context.Context, surfaceID string) (*surface.Surface, error)
}

// Options configure a Reconciler.
type Options struct {
	SurfaceID string
	UserID    string
	AgentID   string

	Source SnapshotSource
	Broker realtime.Broker

	Logger  *logging.Logger
	Metrics *metrics.SurfaceMetrics

	// QueueDepth bounds the FIFO between the transport callback and the
	// apply loop. Zero uses the default.
	QueueDepth int
}

// View is the render-facing snapshot of reconciler state.
type View struct {
	Surface surface.Surface
	State   State
	Err     error
}

// Reconciler owns one surface store and its subscription lifecycle.
// Events are serialized into a FIFO and applied by a single goroutine;
// the store's patch/append read-then-write is never interleaved.
type Reconciler struct {
	opts    Options
	store   *surface.Store
	logger  *logging.Logger
	metrics *metrics.SurfaceMetrics

	mu    sync.RWMutex
	state State
	err   error

	queue       chan []byte
	done        chan struct{}
	unsubscribe realtime.UnsubscribeFunc
	closeOnce   sync.Once

	watchMu  sync.Mutex
	watchers map[int]chan struct{}
	watchSeq int
}

// New creates a reconciler in the Disconnected state. Call Start to fetch
// the snapshot and go live.
func New(opts Options) (*Reconciler, error) {
	if opts.SurfaceID == "" || opts.UserID == "" {
		return nil, errors.New("reconcile: surface id and user id are required")
	}
	if opts.Source == nil {
		return nil, errors.New("reconcile: snapshot source is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("reconcile: broker is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	return &Reconciler{
		opts:     opts,
		store:    surface.NewStore(opts.SurfaceID, opts.UserID, opts.AgentID),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		state:    StateDisconnected,
		queue:    make(chan []byte, opts.QueueDepth),
		done:     make(chan struct{}),
		watchers: make(map[int]chan struct{}),
	}, nil
}

// Start fetches the authoritative snapshot, seeds the store, then opens the
// live subscription. A fetch or subscribe failure leaves the reconciler in
// the Error state with whatever surface it has; it does not retry.
func (r *Reconciler) Start(ctx context.Context) error {
	fetchStart := time.Now()
	snap, err := r.opts.Source.Fetch(ctx, r.opts.SurfaceID)
	if err != nil {
		r.metrics.ObserveSnapshotFetch("error", time.Since(fetchStart).Seconds())
		r.fail(fmt.Errorf("reconcile: snapshot fetch: %w", err))
		return r.Err()
	}
	r.metrics.ObserveSnapshotFetch("ok", time.Since(fetchStart).Seconds())

	// The fetch may outlive a teardown that happened while it was in
	// flight; a late response must be discarded, not applied.
	select {
	case <-r.done:
		return errors.New("reconcile: closed during hydration")
	default:
	}

	if snap != nil {
		r.store.Initialize(*snap)
	}
	r.setState(StateHydrated)

	unsubscribe, err := r.opts.Broker.Subscribe(ctx, realtime.ChannelKey(r.opts.UserID), r.enqueue)
	if err != nil {
		r.fail(fmt.Errorf("reconcile: subscribe: %w", err))
		return r.Err()
	}

	// Close may have run while the subscribe was in flight; it saw a nil
	// unsubscribe then, so this side must tear the fresh one down itself
	// or the subscription leaks.
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		unsubscribe()
		return errors.New("reconcile: closed during subscribe")
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	go r.applyLoop()

	r.setState(StateLive)
	r.metrics.ReconcilerStarted()
	r.logger.Info("reconcile: live",
		"surface_id", r.opts.SurfaceID,
		"user_id", r.opts.UserID,
		"version", r.store.Version(),
	)
	return nil
}

// Close synchronously tears down the subscription. Events already delivered
// to the transport callback after Close are dropped, never applied.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		unsubscribe := r.unsubscribe
		wasLive := r.state == StateLive
		r.state = StateClosed
		r.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		close(r.done)
		if wasLive {
			r.metrics.ReconcilerStopped()
		}
		r.logger.Debug("reconcile: closed", "surface_id", r.opts.SurfaceID)
	})
}

// View returns the current surface plus connection state for rendering.
func (r *Reconciler) View() View {
	r.mu.RLock()
	state, err := r.state, r.err
	r.mu.RUnlock()
	return View{Surface: r.store.Snapshot(), State: state, Err: err}
}

// State returns the lifecycle state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the terminal error, if any.
func (r *Reconciler) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Watch returns a channel that ticks after each applied event, plus a
// cancel func. Ticks coalesce; consumers read View() for current state.
func (r *Reconciler) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	r.watchMu.Lock()
	r.watchSeq++
	id := r.watchSeq
	r.watchers[id] = ch
	r.watchMu.Unlock()

	cancel := func() {
		r.watchMu.Lock()
		delete(r.watchers, id)
		r.watchMu.Unlock()
	}
	return ch, cancel
}

// enqueue is the transport callback. It never blocks the transport: a full
// queue drops the event and relies on the next remount's snapshot fetch.
func (r *Reconciler) enqueue(payload []byte) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.queue <- payload:
	default:
		r.metrics.ObserveEvent("unknown", "queue_full")
		r.logger.Warn("reconcile: event queue full, dropping event",
			"surface_id", r.opts.SurfaceID)
	}
}

// applyLoop is the single consumer of the FIFO queue.
func (r *Reconciler) applyLoop() {
	for {
		select {
		case <-r.done:
			return
		case payload := <-r.queue:
			// Teardown wins over queued backlog.
			select {
			case <-r.done:
				return
			default:
			}
			r.apply(payload)
		}
	}
}

func (r *Reconciler) apply(payload []byte) {
	var ev surface.UpdateEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.metrics.ObserveEvent("unknown", "undecodable")
		r.logger.Warn("reconcile: undecodable event", "surface_id", r.opts.SurfaceID, "error", err)
		return
	}
	if err := surface.ValidateEvent(ev); err != nil {
		r.metrics.ObserveEvent(string(ev.Operation), "invalid")
		r.logger.Warn("reconcile: invalid event", "surface_id", r.opts.SurfaceID, "error", err)
		return
	}
	// Routing fields must match the tracked pair; the channel is shared by
	// all of the user's surfaces.
	if ev.SurfaceID != r.opts.SurfaceID || ev.UserID != r.opts.UserID {
		r.metrics.ObserveEvent(string(ev.Operation), "mismatched")
		return
	}

	outcome := r.store.Apply(ev, time.Now())
	switch {
	case outcome.Stale:
		// Expected under at-least-once delivery; counted, not logged.
		r.metrics.ObserveEvent(string(ev.Operation), "stale")
		return
	case !outcome.Applied:
		r.metrics.ObserveEvent(string(ev.Operation), "invalid")
		return
	}

	r.metrics.ObserveEvent(string(ev.Operation), "applied")
	if len(outcome.IgnoredPatchIDs) > 0 {
		r.logger.Warn("reconcile: patch targets not found",
			"surface_id", r.opts.SurfaceID,
			"ignored_ids", outcome.IgnoredPatchIDs,
		)
	}
	r.notifyWatchers()
}

func (r *Reconciler) notifyWatchers() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	for _, ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed || r.state == StateError {
		return
	}
	r.state = s
}

func (r *Reconciler) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.state = StateError
	r.err = err
}
