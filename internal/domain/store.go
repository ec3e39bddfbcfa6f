package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// HoldingPeriods is the persisted counter state. Session is the trading day
// the counters were last advanced for; zero when they never were.
type HoldingPeriods struct {
	Session time.Time
	Days    map[Instrument]int
}

// HoldingPeriodStore persists the per-instrument holding-period counters so
// they survive a process restart.
type HoldingPeriodStore interface {
	Load(ctx context.Context) (HoldingPeriods, error)
	Save(ctx context.Context, periods HoldingPeriods) error
}

// IntentStore persists emitted intents and their execution outcome.
type IntentStore interface {
	Create(ctx context.Context, intent OrderIntent) error
	UpdateResult(ctx context.Context, id string, res OrderResult) error
	GetByID(ctx context.Context, id string) (IntentRecord, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]IntentRecord, error)
}

// UniverseStore persists the ranked universe for each session.
type UniverseStore interface {
	Save(ctx context.Context, u RankedUniverse) error
	Latest(ctx context.Context) (RankedUniverse, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
