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

// IntentStore implements domain.IntentStore using PostgreSQL.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates a new IntentStore backed by the given pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

// Create inserts a new intent in pending status. Re-inserting an existing id
// returns domain.ErrAlreadyExists.
func (s *IntentStore) Create(ctx context.Context, in domain.OrderIntent) error {
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal intent metadata: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO order_intents (id, instrument, kind, target, reason, metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		in.ID, in.Instrument.String(), string(in.Kind), in.Target, string(in.Reason),
		meta, string(domain.OrderStatusPending), in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create intent %s: %w", in.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// UpdateResult records the broker outcome of an intent.
func (s *IntentStore) UpdateResult(ctx context.Context, id string, res domain.OrderResult) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE order_intents
		SET status = $1, order_id = $2, message = $3, updated_at = NOW()
		WHERE id = $4`,
		string(res.Status), res.OrderID, res.Message, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update intent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const intentSelectCols = `id, instrument, kind, target, reason, metadata,
	status, order_id, message, created_at, updated_at`

func scanIntent(row pgx.Row) (domain.IntentRecord, error) {
	var (
		rec                        domain.IntentRecord
		inst, kind, reason, status string
		meta                       []byte
	)
	if err := row.Scan(
		&rec.Intent.ID, &inst, &kind, &rec.Intent.Target, &reason, &meta,
		&status, &rec.OrderID, &rec.Message, &rec.Intent.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return domain.IntentRecord{}, err
	}
	rec.Intent.Instrument = domain.Instrument(inst)
	rec.Intent.Kind = domain.TargetKind(kind)
	rec.Intent.Reason = domain.IntentReason(reason)
	rec.Status = domain.OrderStatus(status)
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &rec.Intent.Metadata); err != nil {
			return domain.IntentRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}

// GetByID returns one intent record.
func (s *IntentStore) GetByID(ctx context.Context, id string) (domain.IntentRecord, error) {
	rec, err := scanIntent(s.pool.QueryRow(ctx,
		`SELECT `+intentSelectCols+` FROM order_intents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IntentRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.IntentRecord{}, fmt.Errorf("postgres: get intent %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns intent records newest first.
func (s *IntentStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.IntentRecord, error) {
	q := newListQuery(`SELECT ` + intentSelectCols + ` FROM order_intents WHERE TRUE`)
	q.apply(opts, "created_at")

	rows, err := s.pool.Query(ctx, q.String(), q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents: %w", err)
	}
	defer rows.Close()

	var out []domain.IntentRecord
	for rows.Next() {
		rec, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan intent: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list intents rows: %w", err)
	}
	return out, nil
}
