package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// UniverseStore implements domain.UniverseStore. Each session keeps one
// snapshot; re-ranking a session overwrites it.
type UniverseStore struct {
	pool *pgxpool.Pool
}

// NewUniverseStore creates a new UniverseStore backed by the given pool.
func NewUniverseStore(pool *pgxpool.Pool) *UniverseStore {
	return &UniverseStore{pool: pool}
}

// Save upserts the ranked universe for its session date.
func (s *UniverseStore) Save(ctx context.Context, u domain.RankedUniverse) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("postgres: marshal universe: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO universe_snapshots (session, candidates, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (session) DO UPDATE
		SET candidates = EXCLUDED.candidates, payload = EXCLUDED.payload, created_at = NOW()`,
		u.Session.UTC().Format("2006-01-02"), u.Len(), payload,
	); err != nil {
		return fmt.Errorf("postgres: save universe: %w", err)
	}
	return nil
}

// Latest returns the most recent session's universe, or domain.ErrNotFound.
func (s *UniverseStore) Latest(ctx context.Context) (domain.RankedUniverse, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM universe_snapshots ORDER BY session DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RankedUniverse{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RankedUniverse{}, fmt.Errorf("postgres: latest universe: %w", err)
	}
	var u domain.RankedUniverse
	if err := json.Unmarshal(payload, &u); err != nil {
		return domain.RankedUniverse{}, fmt.Errorf("postgres: unmarshal universe: %w", err)
	}
	return u, nil
}
