// Package handlers exposes the surface gateway over HTTP: snapshot reads,
// action dispatch, and the websocket feed that streams reconciled surface
// state to clients.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/therapyflow/agent-surface/internal/action"
	"github.com/therapyflow/agent-surface/internal/http/middleware"
	"github.com/therapyflow/agent-surface/internal/surface"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// SnapshotReader resolves persisted surface state.
type SnapshotReader interface {
	Fetch(ctx context.Context, surfaceID string) (*surface.Surface, error)
	Owner(ctx context.Context, surfaceID string) (string, error)
}

// SurfaceLister enumerates a user's surfaces.
type SurfaceLister interface {
	ListForUser(ctx context.Context, userID string) ([]surface.Surface, error)
}

// ActionDispatcher runs the validation-and-forward pipeline.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, a action.Action) action.Result
}

// SurfaceHandler serves snapshot and action endpoints.
type SurfaceHandler struct {
	reader     SnapshotReader
	lister     SurfaceLister
	dispatcher ActionDispatcher
	logger     *logging.Logger
}

// NewSurfaceHandler builds the handler; lister may be nil to disable listing.
func NewSurfaceHandler(reader SnapshotReader, lister SurfaceLister, dispatcher ActionDispatcher, logger *logging.Logger) *SurfaceHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SurfaceHandler{
		reader:     reader,
		lister:     lister,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// GetSurface returns the persisted snapshot for one surface. A surface that
// has never been written returns 404; the feed endpoint still serves it live
// (hydrating empty is a valid start).
func (h *SurfaceHandler) GetSurface(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	surfaceID := chi.URLParam(r, "surfaceID")

	owner, err := h.reader.Owner(r.Context(), surfaceID)
	if err != nil {
		h.logger.Error("surface owner lookup failed", "surface_id", surfaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	if owner != "" && owner != userID {
		writeError(w, http.StatusForbidden, "not your surface")
		return
	}

	surf, err := h.reader.Fetch(r.Context(), surfaceID)
	if err != nil {
		h.logger.Error("surface fetch failed", "surface_id", surfaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	if surf == nil {
		writeError(w, http.StatusNotFound, "surface not found")
		return
	}

	writeJSON(w, http.StatusOK, surf)
}

// ListSurfaces returns the caller's surfaces, newest first.
func (h *SurfaceHandler) ListSurfaces(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		writeError(w, http.StatusNotFound, "listing disabled")
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())

	surfaces, err := h.lister.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("surface list failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "listing unavailable")
		return
	}
	if surfaces == nil {
		surfaces = []surface.Surface{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"surfaces": surfaces})
}

// DispatchAction validates and forwards a user action. The acting identity
// always comes from the verified token, never the request body.
func (h *SurfaceHandler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var a action.Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.UserID = userID

	res := h.dispatcher.Dispatch(r.Context(), a)
	writeJSON(w, statusForResult(res), map[string]any{
		"accepted": res.Accepted,
		"reason":   string(res.Reason),
		"detail":   res.Detail,
	})
}

func statusForResult(res action.Result) int {
	if res.Accepted {
		return http.StatusAccepted
	}
	switch res.Reason {
	case action.ReasonUnauthorized:
		return http.StatusForbidden
	case action.ReasonRateLimited:
		return http.StatusTooManyRequests
	case action.ReasonUpstream:
		return http.StatusConflict
	case action.ReasonTransport:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
