package action

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAgentClientSubmit(t *testing.T) {
	var received Action
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(SubmitResult{Accepted: true})
	}))
	defer server.Close()

	client := NewHTTPAgentClient(server.URL, 5*time.Second, nil)
	res, err := client.Submit(context.Background(), Action{
		Name:      "select_date",
		SurfaceID: "session-copilot:appt-1",
		UserID:    "user-1",
		Payload:   map[string]any{"therapistId": "t1", "date": "2026-03-01"},
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "select_date", received.Name)
	assert.Equal(t, "t1", received.Payload["therapistId"])
}

func TestHTTPAgentClientUpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(SubmitResult{Accepted: false, Reason: "slot taken"})
	}))
	defer server.Close()

	client := NewHTTPAgentClient(server.URL, 5*time.Second, nil)
	res, err := client.Submit(context.Background(), Action{Name: "confirm_booking"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "slot taken", res.Reason)
}

func TestHTTPAgentClientNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPAgentClient(server.URL, 5*time.Second, nil)
	_, err := client.Submit(context.Background(), Action{Name: "select_therapist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPAgentClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and cancels
		// r.Context() when the client disconnects; otherwise Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewHTTPAgentClient(server.URL, time.Minute, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Submit(ctx, Action{Name: "cancel_booking"})
	require.Error(t, err)
}
