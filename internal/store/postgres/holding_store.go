package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// HoldingStore implements domain.HoldingPeriodStore. holding_periods always
// holds exactly the counters of the last session update and holding_session
// the date of that session.
type HoldingStore struct {
	pool *pgxpool.Pool
}

// NewHoldingStore creates a new HoldingStore backed by the given pool.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Load returns every persisted counter and the session they belong to.
func (s *HoldingStore) Load(ctx context.Context) (domain.HoldingPeriods, error) {
	var out domain.HoldingPeriods

	err := s.pool.QueryRow(ctx, `SELECT session FROM holding_session WHERE id`).Scan(&out.Session)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("postgres: load holding session: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT instrument, days FROM holding_periods`)
	if err != nil {
		return out, fmt.Errorf("postgres: load holding periods: %w", err)
	}
	defer rows.Close()

	out.Days = make(map[domain.Instrument]int)
	for rows.Next() {
		var (
			inst string
			days int
		)
		if err := rows.Scan(&inst, &days); err != nil {
			return out, fmt.Errorf("postgres: scan holding period: %w", err)
		}
		out.Days[domain.Instrument(inst)] = days
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("postgres: load holding periods rows: %w", err)
	}
	return out, nil
}

// Save replaces the stored counters and session date in one transaction.
func (s *HoldingStore) Save(ctx context.Context, p domain.HoldingPeriods) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save holding periods: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM holding_periods`); err != nil {
		return fmt.Errorf("postgres: clear holding periods: %w", err)
	}

	rows := make([][]any, 0, len(p.Days))
	for inst, days := range p.Days {
		rows = append(rows, []any{inst.String(), days})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"holding_periods"},
			[]string{"instrument", "days"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("postgres: copy holding periods: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO holding_session (id, session, updated_at) VALUES (TRUE, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET session = EXCLUDED.session, updated_at = EXCLUDED.updated_at`,
		sessionDate(p.Session),
	); err != nil {
		return fmt.Errorf("postgres: save holding session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit holding periods: %w", err)
	}
	return nil
}

// sessionDate keeps the exchange-local calendar date of session when it is
// stored as a DATE.
func sessionDate(session time.Time) time.Time {
	return time.Date(session.Year(), session.Month(), session.Day(), 0, 0, 0, 0, time.UTC)
}
