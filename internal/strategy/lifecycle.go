package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// LifecycleConfig holds the holding-period and protective-exit parameters.
type LifecycleConfig struct {
	// MaxHoldingDays is the counter value above which it resets to zero.
	MaxHoldingDays int
	// HoldingExitDays is the counter value above which a position is closed.
	HoldingExitDays int
	// StopLoss and TakeProfit are fractional moves against the cost basis.
	StopLoss   float64
	TakeProfit float64
	// MinPositionQuantity is the absolute share count a position must exceed
	// to be treated as long or short by the protective exits.
	MinPositionQuantity float64
}

// DefaultLifecycleConfig returns the production exit parameters.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MaxHoldingDays:      14,
		HoldingExitDays:     10,
		StopLoss:            0.03,
		TakeProfit:          0.10,
		MinPositionQuantity: 10,
	}
}

// Tracker owns the per-instrument holding-period counters and evaluates the
// exit rules. Instruments not currently held are absent from the counter map.
// All methods are safe for concurrent use; mutations are serialized.
type Tracker struct {
	cfg     LifecycleConfig
	store   domain.HoldingPeriodStore
	logger  *slog.Logger
	mu      sync.Mutex
	periods map[domain.Instrument]int
	session time.Time
	loaded  bool
}

// NewTracker creates a Tracker. store may be nil, in which case counters live
// only in memory.
func NewTracker(cfg LifecycleConfig, store domain.HoldingPeriodStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		cfg:     cfg,
		store:   store,
		logger:  logger.With(slog.String("component", "lifecycle_tracker")),
		periods: make(map[domain.Instrument]int),
	}
}

// Restore loads persisted counters once. Later calls are no-ops.
func (t *Tracker) Restore(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded || t.store == nil {
		t.loaded = true
		return nil
	}
	p, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: restore holding periods: %w", err)
	}
	for inst, d := range p.Days {
		t.periods[inst] = d
	}
	t.session = p.Session
	t.loaded = true
	t.logger.InfoContext(ctx, "holding periods restored",
		slog.Int("count", len(p.Days)),
		slog.String("session", sessionKey(p.Session)),
	)
	return nil
}

// UpdateHoldingPeriods advances the counters once per session. Newly held
// instruments start at 1, held instruments increment by one, and a counter
// that already exceeds MaxHoldingDays resets to 0. Instruments no longer held
// are dropped. A session on or before the last advanced one leaves the
// counters unchanged, so a restart mid-session does not count the day twice.
// The resulting counters are persisted when a store is set.
func (t *Tracker) UpdateHoldingPeriods(ctx context.Context, session time.Time, held []domain.Instrument) map[domain.Instrument]int {
	t.mu.Lock()
	if !t.session.IsZero() && sessionKey(session) <= sessionKey(t.session) {
		snapshot := t.copyLocked()
		last := t.session
		t.mu.Unlock()
		t.logger.InfoContext(ctx, "holding periods already advanced for session",
			slog.String("session", sessionKey(session)),
			slog.String("last", sessionKey(last)),
		)
		return snapshot
	}
	next := make(map[domain.Instrument]int, len(held))
	for _, inst := range held {
		d, ok := t.periods[inst]
		switch {
		case !ok:
			next[inst] = 1
		case d > t.cfg.MaxHoldingDays:
			next[inst] = 0
		default:
			next[inst] = d + 1
		}
	}
	t.periods = next
	t.session = session
	snapshot := t.copyLocked()
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Save(ctx, domain.HoldingPeriods{Session: session, Days: snapshot}); err != nil {
			t.logger.WarnContext(ctx, "persist holding periods failed",
				slog.String("error", err.Error()),
			)
		}
	}
	t.logger.InfoContext(ctx, "holding periods updated",
		slog.String("session", sessionKey(session)),
		slog.Int("held", len(snapshot)),
	)
	return snapshot
}

// sessionKey is the calendar date of a session in its own time zone.
// YYYY-MM-DD keys compare in date order.
func sessionKey(session time.Time) string {
	if session.IsZero() {
		return ""
	}
	return session.Format(time.DateOnly)
}

// HoldingPeriod returns the counter for inst and whether it is tracked.
func (t *Tracker) HoldingPeriod(inst domain.Instrument) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.periods[inst]
	return d, ok
}

// Snapshot returns a copy of all counters.
func (t *Tracker) Snapshot() map[domain.Instrument]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

func (t *Tracker) copyLocked() map[domain.Instrument]int {
	out := make(map[domain.Instrument]int, len(t.periods))
	for k, v := range t.periods {
		out[k] = v
	}
	return out
}

// MaxHoldingExits emits a close intent for every held instrument whose counter
// exceeds HoldingExitDays and has no open order. It never changes counters.
// Held instruments without a counter are skipped.
func (t *Tracker) MaxHoldingExits(ctx context.Context, snap domain.PortfolioSnapshot, orders domain.OpenOrderChecker) []domain.OrderIntent {
	periods := t.Snapshot()
	var intents []domain.OrderIntent
	for _, inst := range sortedHeld(snap) {
		d, ok := periods[inst]
		if !ok || d <= t.cfg.HoldingExitDays {
			continue
		}
		if pending(ctx, orders, inst, t.logger) {
			continue
		}
		t.logger.InfoContext(ctx, "closing position after max holding period",
			slog.String("instrument", inst.String()),
			slog.Int("holding_days", d),
		)
		intents = append(intents, newIntent(inst, domain.TargetPercent, 0, domain.ReasonMaxHolding, map[string]string{
			"holding_days": strconv.Itoa(d),
		}))
	}
	return intents
}

// ProtectiveExits applies the stop-loss and take-profit rules to every held
// position using its live cost basis and the current price. At most one
// intent is emitted per instrument and never while an order is pending.
func (t *Tracker) ProtectiveExits(ctx context.Context, snap domain.PortfolioSnapshot, market domain.MarketData, orders domain.OpenOrderChecker) []domain.OrderIntent {
	var intents []domain.OrderIntent
	for _, inst := range sortedHeld(snap) {
		pos := snap.Position(inst)
		if pos.Quantity <= t.cfg.MinPositionQuantity && pos.Quantity >= -t.cfg.MinPositionQuantity {
			continue
		}
		price, err := market.CurrentPrice(ctx, inst)
		if err != nil {
			t.logger.WarnContext(ctx, "skip exit check: no current price",
				slog.String("instrument", inst.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		reason, ok := t.ExitReason(pos, price)
		if !ok {
			continue
		}
		if pending(ctx, orders, inst, t.logger) {
			continue
		}
		t.logger.InfoContext(ctx, "protective exit",
			slog.String("instrument", inst.String()),
			slog.String("reason", string(reason)),
			slog.Float64("price", price),
			slog.Float64("cost_basis", pos.CostBasis),
			slog.Float64("quantity", pos.Quantity),
		)
		intents = append(intents, newIntent(inst, domain.TargetValue, 0, reason, map[string]string{
			"price":      strconv.FormatFloat(price, 'f', -1, 64),
			"cost_basis": strconv.FormatFloat(pos.CostBasis, 'f', -1, 64),
		}))
	}
	return intents
}

// ExitReason evaluates the stop-loss / take-profit rule for one position.
// Long positions lose when price falls; short positions lose when it rises.
func (t *Tracker) ExitReason(pos domain.Position, price float64) (domain.IntentReason, bool) {
	var ret float64
	switch {
	case pos.Quantity > t.cfg.MinPositionQuantity:
		ret = pos.Return(price)
	case pos.Quantity < -t.cfg.MinPositionQuantity:
		ret = -pos.Return(price)
	default:
		return "", false
	}
	switch {
	case ret < -t.cfg.StopLoss:
		return domain.ReasonStopLoss, true
	case ret > t.cfg.TakeProfit:
		return domain.ReasonTakeProfit, true
	default:
		return "", false
	}
}

// pending reports whether inst has an open order. A failed lookup counts as
// pending so that no duplicate order can slip through.
func pending(ctx context.Context, orders domain.OpenOrderChecker, inst domain.Instrument, logger *slog.Logger) bool {
	open, err := orders.HasOpenOrder(ctx, inst)
	if err != nil {
		logger.WarnContext(ctx, "open order lookup failed, treating as pending",
			slog.String("instrument", inst.String()),
			slog.String("error", err.Error()),
		)
		return true
	}
	return open
}

func sortedHeld(snap domain.PortfolioSnapshot) []domain.Instrument {
	held := snap.Held()
	sort.Slice(held, func(i, j int) bool { return held[i] < held[j] })
	return held
}
