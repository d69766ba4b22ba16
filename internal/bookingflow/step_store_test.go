package bookingflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStepStore(t *testing.T, ttl time.Duration) (*StepStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStepStore(client, ttl), mr
}

func TestStepStoreRoundTrip(t *testing.T) {
	store, _ := newTestStepStore(t, time.Hour)
	ctx := context.Background()

	step, err := store.LoadStep(ctx, "session-copilot:appt-1")
	require.NoError(t, err)
	assert.Equal(t, Step(""), step, "missing key loads as empty")

	require.NoError(t, store.SaveStep(ctx, "session-copilot:appt-1", StepConfirmation))

	step, err = store.LoadStep(ctx, "session-copilot:appt-1")
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)
}

func TestStepStoreExpiry(t *testing.T) {
	store, mr := newTestStepStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveStep(ctx, "session-copilot:appt-1", StepDateTimeSelection))
	mr.FastForward(2 * time.Minute)

	step, err := store.LoadStep(ctx, "session-copilot:appt-1")
	require.NoError(t, err)
	assert.Equal(t, Step(""), step)
}

func TestStepStoreClear(t *testing.T) {
	store, _ := newTestStepStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveStep(ctx, "session-copilot:appt-1", StepCompleted))
	require.NoError(t, store.ClearStep(ctx, "session-copilot:appt-1"))

	step, err := store.LoadStep(ctx, "session-copilot:appt-1")
	require.NoError(t, err)
	assert.Equal(t, Step(""), step)
}
