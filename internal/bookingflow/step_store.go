package bookingflow

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StepStore keeps the booking step in Redis so a remounted client resumes
// where it left off. Entries expire with the session.
type StepStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStepStore panics on a nil client; TTL <= 0 defaults to 24h.
func NewStepStore(client *redis.Client, ttl time.Duration) *StepStore {
	if client == nil {
		panic("bookingflow: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StepStore{client: client, ttl: ttl}
}

func stepKey(surfaceID string) string {
	return "booking-step:" + surfaceID
}

// SaveStep implements StepSaver.
func (s *StepStore) SaveStep(ctx context.Context, surfaceID string, step Step) error {
	if err := s.client.Set(ctx, stepKey(surfaceID), string(step), s.ttl).Err(); err != nil {
		return fmt.Errorf("saving booking step: %w", err)
	}
	return nil
}

// LoadStep returns the persisted step, or ("", nil) when none is stored.
func (s *StepStore) LoadStep(ctx context.Context, surfaceID string) (Step, error) {
	val, err := s.client.Get(ctx, stepKey(surfaceID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading booking step: %w", err)
	}
	return Step(val), nil
}

// ClearStep removes the persisted step, e.g. after cancellation.
func (s *StepStore) ClearStep(ctx context.Context, surfaceID string) error {
	if err := s.client.Del(ctx, stepKey(surfaceID)).Err(); err != nil {
		return fmt.Errorf("clearing booking step: %w", err)
	}
	return nil
}
