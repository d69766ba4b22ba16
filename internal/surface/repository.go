package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the repository uses; it allows injecting
// mocks for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists surface snapshots to PostgreSQL. The persisted row is
// the authoritative baseline a reconciler hydrates from.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("surface: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// Get returns the latest persisted snapshot, or (nil, nil) when the surface
// has never been written. "Not found" is a valid initial state, not an error.
func (r *Repository) Get(ctx context.Context, surfaceID string) (*Surface, error) {
	var (
		surf       Surface
		components []byte
		dataModel  []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT surface_id, user_id, agent_id, version, components, data_model, created_at, updated_at
		FROM surfaces
		WHERE surface_id = $1
	`, surfaceID).Scan(
		&surf.SurfaceID, &surf.UserID, &surf.AgentID, &surf.Version,
		&components, &dataModel, &surf.CreatedAt, &surf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("surface: load snapshot: %w", err)
	}
	if err := decodeJSONColumn(components, &surf.Components); err != nil {
		return nil, fmt.Errorf("surface: decode components: %w", err)
	}
	if err := decodeJSONColumn(dataModel, &surf.DataModel); err != nil {
		return nil, fmt.Errorf("surface: decode data model: %w", err)
	}
	return &surf, nil
}

// ListForUser returns all persisted surfaces owned by the user, most
// recently updated first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Surface, error) {
	rows, err := r.db.Query(ctx, `
		SELECT surface_id, user_id, agent_id, version, components, data_model, created_at, updated_at
		FROM surfaces
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("surface: list for user: %w", err)
	}
	defer rows.Close()

	var out []Surface
	for rows.Next() {
		var (
			surf       Surface
			components []byte
			dataModel  []byte
		)
		if err := rows.Scan(
			&surf.SurfaceID, &surf.UserID, &surf.AgentID, &surf.Version,
			&components, &dataModel, &surf.CreatedAt, &surf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("surface: scan row: %w", err)
		}
		if err := decodeJSONColumn(components, &surf.Components); err != nil {
			return nil, fmt.Errorf("surface: decode components: %w", err)
		}
		if err := decodeJSONColumn(dataModel, &surf.DataModel); err != nil {
			return nil, fmt.Errorf("surface: decode data model: %w", err)
		}
		out = append(out, surf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("surface: iterate rows: %w", err)
	}
	return out, nil
}

// Upsert writes the snapshot, keeping the persisted version monotonic: a
// concurrent writer with a newer version wins and the stale write is a
// no-op.
func (r *Repository) Upsert(ctx context.Context, surf *Surface) error {
	components, err := json.Marshal(surf.Components)
	if err != nil {
		return fmt.Errorf("surface: marshal components: %w", err)
	}
	dataModel, err := json.Marshal(surf.DataModel)
	if err != nil {
		return fmt.Errorf("surface: marshal data model: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(ctx, `
		INSERT INTO surfaces (surface_id, user_id, agent_id, version, components, data_model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (surface_id) DO UPDATE SET
			version = EXCLUDED.version,
			components = EXCLUDED.components,
			data_model = EXCLUDED.data_model,
			updated_at = EXCLUDED.updated_at
		WHERE surfaces.version < EXCLUDED.version
	`, surf.SurfaceID, surf.UserID, surf.AgentID, surf.Version, components, dataModel, now)
	if err != nil {
		return fmt.Errorf("surface: upsert snapshot: %w", err)
	}
	return nil
}

// Delete removes a persisted surface. Used when the agent retires a surface.
func (r *Repository) Delete(ctx context.Context, surfaceID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM surfaces WHERE surface_id = $1`, surfaceID); err != nil {
		return fmt.Errorf("surface: delete snapshot: %w", err)
	}
	return nil
}

func decodeJSONColumn(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
