package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/therapyflow/agent-surface/internal/http/middleware"
	"github.com/therapyflow/agent-surface/internal/observability/metrics"
	"github.com/therapyflow/agent-surface/internal/reconcile"
	"github.com/therapyflow/agent-surface/internal/surface"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

const defaultPingInterval = 30 * time.Second

// FeedHandler streams reconciled surface state over a websocket. Each
// connection shares the per-(user, surface) reconciler through the manager,
// so a user with two tabs open holds one subscription.
type FeedHandler struct {
	manager      *reconcile.Manager
	logger       *logging.Logger
	metrics      *metrics.SurfaceMetrics
	pingInterval time.Duration
}

// FeedMessage is one frame on the feed.
type FeedMessage struct {
	Type    string           `json:"type"` // "surface", "ping", "error"
	Surface *surface.Surface `json:"surface,omitempty"`
	State   string           `json:"state,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// NewFeedHandler builds the feed handler.
func NewFeedHandler(manager *reconcile.Manager, m *metrics.SurfaceMetrics, pingInterval time.Duration, logger *logging.Logger) *FeedHandler {
	if manager == nil {
		panic("handlers: reconcile manager required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &FeedHandler{manager: manager, logger: logger, metrics: m, pingInterval: pingInterval}
}

// Feed upgrades to a websocket and streams surface views until the client
// disconnects.
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, r)
	}).ServeHTTP(w, r)
}

func (h *FeedHandler) serve(conn *websocket.Conn, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	surfaceID := chi.URLParam(r, "surfaceID")
	agentID := r.URL.Query().Get("agent")

	rec, err := h.manager.Acquire(r.Context(), surfaceID, userID, agentID)
	if err != nil {
		_ = websocket.JSON.Send(conn, FeedMessage{Type: "error", Error: "surface unavailable"})
		h.logger.Error("feed: acquire failed", "surface_id", surfaceID, "user_id", userID, "error", err)
		return
	}
	defer h.manager.Release(surfaceID, userID)

	h.metrics.FeedOpened()
	defer h.metrics.FeedClosed()
	h.logger.Info("feed: connection opened", "surface_id", surfaceID, "user_id", userID)

	ticks, cancel := rec.Watch()
	defer cancel()

	// Reader goroutine: its only jobs are detecting disconnect and draining
	// client frames. The feed is one-directional; actions go over HTTP.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			var discard json.RawMessage
			if err := websocket.JSON.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	if !h.sendView(conn, rec) {
		return
	}

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			h.logger.Debug("feed: client disconnected", "surface_id", surfaceID)
			return
		case <-r.Context().Done():
			return
		case <-ticks:
			if !h.sendView(conn, rec) {
				return
			}
		case <-ping.C:
			if websocket.JSON.Send(conn, FeedMessage{Type: "ping"}) != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) sendView(conn *websocket.Conn, rec *reconcile.Reconciler) bool {
	view := rec.View()
	msg := FeedMessage{
		Type:    "surface",
		Surface: &view.Surface,
		State:   string(view.State),
	}
	if view.Err != nil {
		msg.Error = view.Err.Error()
	}
	return websocket.JSON.Send(conn, msg) == nil
}
