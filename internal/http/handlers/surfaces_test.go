package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapyflow/agent-surface/internal/action"
	"github.com/therapyflow/agent-surface/internal/http/middleware"
	"github.com/therapyflow/agent-surface/internal/surface"
)

type fakeReader struct {
	surf  *surface.Surface
	owner string
	err   error
}

func (f *fakeReader) Fetch(context.Context, string) (*surface.Surface, error) {
	return f.surf, f.err
}

func (f *fakeReader) Owner(context.Context, string) (string, error) {
	return f.owner, f.err
}

type fakeLister struct {
	surfaces []surface.Surface
	err      error
}

func (f *fakeLister) ListForUser(context.Context, string) ([]surface.Surface, error) {
	return f.surfaces, f.err
}

type fakeDispatcher struct {
	last   action.Action
	result action.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, a action.Action) action.Result {
	f.last = a
	return f.result
}

// asUser simulates the auth middleware for handler-level tests.
func asUser(userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestRouter(h *SurfaceHandler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Get("/surfaces", h.ListSurfaces)
	r.Get("/surfaces/{surfaceID}", h.GetSurface)
	r.Post("/actions", h.DispatchAction)
	return asUser(userID, r)
}

func testSurface() *surface.Surface {
	return &surface.Surface{
		SurfaceID: "session-copilot:appt-1",
		UserID:    "user-1",
		Version:   3,
		Components: []surface.Component{
			{ID: "c1", Type: string(surface.KindTherapistCard), Props: map[string]any{"name": "Dr. Reyes"}},
		},
		UpdatedAt: time.Now().UTC(),
	}
}

func TestGetSurfaceReturnsSnapshot(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{surf: testSurface(), owner: "user-1"}, nil, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/surfaces/session-copilot:appt-1", nil)

	newTestRouter(h, "user-1").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got surface.Surface
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.Version)
	assert.Len(t, got.Components, 1)
}

func TestGetSurfaceForeignOwnerForbidden(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{surf: testSurface(), owner: "someone-else"}, nil, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/surfaces/session-copilot:appt-1", nil)

	newTestRouter(h, "user-1").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetSurfaceMissingIs404(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{}, nil, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/surfaces/never-written", nil)

	newTestRouter(h, "user-1").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSurfaceFetchErrorIs500(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{err: errors.New("db down")}, nil, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/surfaces/x", nil)

	newTestRouter(h, "user-1").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListSurfaces(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{}, &fakeLister{surfaces: []surface.Surface{*testSurface()}}, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/surfaces", nil)

	newTestRouter(h, "user-1").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Surfaces []surface.Surface `json:"surfaces"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Surfaces, 1)
}

func TestListSurfacesEmptyIsArray(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{}, &fakeLister{}, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/surfaces", nil)

	newTestRouter(h, "user-1").ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"surfaces": []}`, rec.Body.String())
}

func TestDispatchActionOverridesBodyIdentity(t *testing.T) {
	d := &fakeDispatcher{result: action.Result{Accepted: true}}
	h := NewSurfaceHandler(&fakeReader{}, nil, d, nil)

	body, _ := json.Marshal(action.Action{
		Name:      "select_therapist",
		SurfaceID: "session-copilot:appt-1",
		UserID:    "spoofed-user",
		Payload:   map[string]any{"therapistId": "t1"},
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", bytes.NewReader(body))

	newTestRouter(h, "user-1").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "user-1", d.last.UserID, "identity must come from the token")
}

func TestDispatchActionStatusMapping(t *testing.T) {
	tests := []struct {
		reason action.Reason
		status int
	}{
		{action.ReasonUnauthorized, http.StatusForbidden},
		{action.ReasonRateLimited, http.StatusTooManyRequests},
		{action.ReasonUpstream, http.StatusConflict},
		{action.ReasonTransport, http.StatusBadGateway},
		{action.ReasonMissingField, http.StatusUnprocessableEntity},
		{action.ReasonUnknownAction, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			d := &fakeDispatcher{result: action.Result{Reason: tt.reason}}
			h := NewSurfaceHandler(&fakeReader{}, nil, d, nil)

			body, _ := json.Marshal(action.Action{Name: "cancel_booking"})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/actions", bytes.NewReader(body))

			newTestRouter(h, "user-1").ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestDispatchActionBadBody(t *testing.T) {
	h := NewSurfaceHandler(&fakeReader{}, nil, &fakeDispatcher{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", bytes.NewReader([]byte("{not json")))

	newTestRouter(h, "user-1").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
