package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSnapshotTTL = 24 * time.Hour

// Cache keeps recently fetched snapshots in Redis so re-mounting a surface
// does not always hit PostgreSQL.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewCache creates a snapshot cache. A zero ttl uses the default.
func NewCache(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *Cache {
	if client == nil {
		panic("surface: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("agentsurface.internal.surface.cache")
	}
	return &Cache{redis: client, ttl: ttl, tracer: tracer}
}

// Save stores the snapshot under its surface ID.
func (c *Cache) Save(ctx context.Context, surf *Surface) error {
	ctx, span := c.tracer.Start(ctx, "surface.cache_save")
	defer span.End()

	data, err := json.Marshal(surf)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("surface: marshal snapshot: %w", err)
	}
	if err := c.redis.Set(ctx, snapshotKey(surf.SurfaceID), data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("surface: cache snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot, or (nil, nil) on a cache miss.
func (c *Cache) Load(ctx context.Context, surfaceID string) (*Surface, error) {
	ctx, span := c.tracer.Start(ctx, "surface.cache_load")
	defer span.End()

	data, err := c.redis.Get(ctx, snapshotKey(surfaceID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("surface: load cached snapshot: %w", err)
	}

	var surf Surface
	if err := json.Unmarshal(data, &surf); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("surface: decode cached snapshot: %w", err)
	}
	return &surf, nil
}

// Invalidate drops the cached snapshot so the next fetch goes to Postgres.
func (c *Cache) Invalidate(ctx context.Context, surfaceID string) error {
	ctx, span := c.tracer.Start(ctx, "surface.cache_invalidate")
	defer span.End()

	if err := c.redis.Del(ctx, snapshotKey(surfaceID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("surface: invalidate snapshot: %w", err)
	}
	return nil
}

func snapshotKey(surfaceID string) string {
	return fmt.Sprintf("surface:%s", surfaceID)
}
