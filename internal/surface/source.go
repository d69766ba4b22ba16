package surface

import (
	"context"

	"github.com/therapyflow/agent-surface/pkg/logging"
)

// Source resolves the authoritative snapshot for a surface: Redis cache
// first, PostgreSQL on a miss, backfilling the cache on the way out. A nil
// cache degrades to repository-only.
type Source struct {
	repo   *Repository
	cache  *Cache
	logger *logging.Logger
}

// NewSource builds a snapshot source.
func NewSource(repo *Repository, cache *Cache, logger *logging.Logger) *Source {
	if repo == nil {
		panic("surface: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Source{repo: repo, cache: cache, logger: logger}
}

// Fetch returns the latest persisted snapshot, or (nil, nil) for a surface
// that has never been written.
func (s *Source) Fetch(ctx context.Context, surfaceID string) (*Surface, error) {
	if s.cache != nil {
		cached, err := s.cache.Load(ctx, surfaceID)
		if err != nil {
			// Cache trouble is not fatal; fall through to Postgres.
			s.logger.Warn("surface: snapshot cache load failed", "surface_id", surfaceID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	surf, err := s.repo.Get(ctx, surfaceID)
	if err != nil {
		return nil, err
	}
	if surf != nil && s.cache != nil {
		if err := s.cache.Save(ctx, surf); err != nil {
			s.logger.Warn("surface: snapshot cache backfill failed", "surface_id", surfaceID, "error", err)
		}
	}
	return surf, nil
}

// Owner resolves the owning user of a surface, "" when the surface has
// never been persisted.
func (s *Source) Owner(ctx context.Context, surfaceID string) (string, error) {
	surf, err := s.Fetch(ctx, surfaceID)
	if err != nil {
		return "", err
	}
	if surf == nil {
		return "", nil
	}
	return surf.UserID, nil
}
