package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// cycleLockKey names the distributed lock that keeps two replicas from
// running a scheduled callback at once.
const cycleLockKey = "strategy-cycle"

// UniverseBuilder produces the ranked universe for a session.
type UniverseBuilder interface {
	BuildUniverse(ctx context.Context, session time.Time) (domain.RankedUniverse, error)
}

// Engine owns the scheduled callbacks of the strategy. Callbacks never
// overlap: each takes the cycle mutex, and when a LockManager is set also a
// distributed lock. Emitted intents are sent to the intent channel consumed
// by the executor layer.
type Engine struct {
	tracker   *Tracker
	decider   *Decider
	universe  UniverseBuilder
	portfolio domain.PortfolioSource
	market    domain.MarketData
	orders    domain.OpenOrderChecker
	intentCh  chan<- domain.OrderIntent
	logger    *slog.Logger

	locks   domain.LockManager
	lockTTL time.Duration

	cycleMu sync.Mutex

	mu            sync.Mutex
	current       domain.RankedUniverse
	hasUniverse   bool
	lastReport    CycleReport
	recentIntents []domain.OrderIntent
	recentLimit   int
}

// EngineDeps groups the collaborators of an Engine.
type EngineDeps struct {
	Tracker   *Tracker
	Decider   *Decider
	Universe  UniverseBuilder
	Portfolio domain.PortfolioSource
	Market    domain.MarketData
	Orders    domain.OpenOrderChecker
}

// NewEngine creates an Engine that emits on intentCh.
func NewEngine(deps EngineDeps, intentCh chan<- domain.OrderIntent, logger *slog.Logger) *Engine {
	return &Engine{
		tracker:     deps.Tracker,
		decider:     deps.Decider,
		universe:    deps.Universe,
		portfolio:   deps.Portfolio,
		market:      deps.Market,
		orders:      deps.Orders,
		intentCh:    intentCh,
		logger:      logger.With(slog.String("component", "strategy_engine")),
		recentLimit: 500,
	}
}

// SetLockManager enables the distributed cycle lock.
func (e *Engine) SetLockManager(locks domain.LockManager, ttl time.Duration) {
	e.locks = locks
	e.lockTTL = ttl
}

// SetUniverse installs a previously ranked universe, for example the latest
// snapshot restored from the store after a restart.
func (e *Engine) SetUniverse(u domain.RankedUniverse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = u
	e.hasUniverse = true
}

// Universe returns the current session's ranked universe.
func (e *Engine) Universe() (domain.RankedUniverse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.hasUniverse
}

// HoldingPeriods returns a copy of the tracked holding-period counters.
func (e *Engine) HoldingPeriods() map[domain.Instrument]int {
	return e.tracker.Snapshot()
}

// LastReport returns the summary of the most recent decision cycle.
func (e *Engine) LastReport() CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// RecentIntents returns up to limit most recent emitted intents, newest first.
func (e *Engine) RecentIntents(limit int) []domain.OrderIntent {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recentIntents)
	if n == 0 {
		return []domain.OrderIntent{}
	}
	if limit > n {
		limit = n
	}
	out := make([]domain.OrderIntent, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		in := e.recentIntents[i]
		if in.Metadata != nil {
			meta := make(map[string]string, len(in.Metadata))
			for k, v := range in.Metadata {
				meta[k] = v
			}
			in.Metadata = meta
		}
		out = append(out, in)
	}
	return out
}

// OnSessionStart runs before market data is used for decisions: it advances
// the holding-period counters from the live positions and then ranks the
// session's universe.
func (e *Engine) OnSessionStart(ctx context.Context, session time.Time) error {
	return e.serialize(ctx, "session_start", func(ctx context.Context) error {
		positions, err := e.portfolio.Positions(ctx)
		if err != nil {
			return fmt.Errorf("session start: load positions: %w", err)
		}
		snap := domain.PortfolioSnapshot{Positions: positions}
		e.tracker.UpdateHoldingPeriods(ctx, session, snap.Held())

		u, err := e.universe.BuildUniverse(ctx, session)
		if err != nil {
			return fmt.Errorf("session start: build universe: %w", err)
		}
		e.SetUniverse(u)
		e.logger.InfoContext(ctx, "session universe ready",
			slog.Time("session", session),
			slog.Int("candidates", u.Len()),
		)
		return nil
	})
}

// OnHoldingCheck closes positions held past the holding-exit threshold. It
// does not change the counters.
func (e *Engine) OnHoldingCheck(ctx context.Context) error {
	return e.serialize(ctx, "holding_check", func(ctx context.Context) error {
		positions, err := e.portfolio.Positions(ctx)
		if err != nil {
			return fmt.Errorf("holding check: load positions: %w", err)
		}
		snap := domain.PortfolioSnapshot{Positions: positions}
		e.emit(ctx, e.tracker.MaxHoldingExits(ctx, snap, e.orders))
		return nil
	})
}

// OnDecisionCycle runs the protective exits and then the entry decisions,
// both against one portfolio snapshot. An instrument exiting this cycle is not
// considered for entry.
func (e *Engine) OnDecisionCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	err := e.serialize(ctx, "decision_cycle", func(ctx context.Context) error {
		positions, err := e.portfolio.Positions(ctx)
		if err != nil {
			return fmt.Errorf("decision cycle: load positions: %w", err)
		}
		snap := domain.PortfolioSnapshot{Positions: positions}

		exits := e.tracker.ProtectiveExits(ctx, snap, e.market, e.orders)
		e.emit(ctx, exits)

		u, ok := e.Universe()
		if !ok {
			return domain.ErrNoUniverse
		}
		exiting := make(map[domain.Instrument]bool, len(exits))
		for _, in := range exits {
			exiting[in.Instrument] = true
		}
		entries, rep := e.decider.Decide(ctx, u.Instruments(), snap, exiting)
		e.emit(ctx, entries)

		report = rep
		e.mu.Lock()
		e.lastReport = rep
		e.mu.Unlock()

		e.logger.InfoContext(ctx, "decision cycle complete",
			slog.Int("exits", len(exits)),
			slog.Int("entries", len(entries)),
			slog.Int("evaluated", rep.Evaluated),
			slog.Float64("exposure", rep.Exposure),
			slog.Bool("halted", rep.Halted),
		)
		return nil
	})
	return report, err
}

// serialize runs fn under the cycle mutex and, if configured, the
// distributed lock. A lock held by another replica skips the callback.
func (e *Engine) serialize(ctx context.Context, name string, fn func(context.Context) error) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, cycleLockKey, e.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.InfoContext(ctx, "callback skipped, another replica holds the cycle lock",
				slog.String("callback", name),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: acquire cycle lock: %w", name, err)
		}
		defer unlock()
	}

	start := time.Now()
	err := fn(ctx)
	e.logger.DebugContext(ctx, "callback finished",
		slog.String("callback", name),
		slog.Duration("elapsed", time.Since(start)),
	)
	return err
}

// emit sends each intent to the intent channel. It respects context
// cancellation.
func (e *Engine) emit(ctx context.Context, intents []domain.OrderIntent) {
	for i := range intents {
		select {
		case <-ctx.Done():
			e.logger.Warn("context cancelled while emitting intents",
				slog.Int("remaining", len(intents)-i),
			)
			return
		case e.intentCh <- intents[i]:
			e.rememberIntent(intents[i])
			e.logger.Debug("intent emitted",
				slog.String("intent_id", intents[i].ID),
				slog.String("instrument", intents[i].Instrument.String()),
				slog.String("reason", string(intents[i].Reason)),
			)
		}
	}
}

func (e *Engine) rememberIntent(in domain.OrderIntent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recentIntents = append(e.recentIntents, in)
	if overflow := len(e.recentIntents) - e.recentLimit; overflow > 0 {
		e.recentIntents = append([]domain.OrderIntent(nil), e.recentIntents[overflow:]...)
	}
}
