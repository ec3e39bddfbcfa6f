package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/executor"
	"github.com/alanyoungcy/equitybot/internal/pipeline"
	"github.com/alanyoungcy/equitybot/internal/scheduler"
	"github.com/alanyoungcy/equitybot/internal/server"
	"github.com/alanyoungcy/equitybot/internal/server/handler"
	"github.com/alanyoungcy/equitybot/internal/service"
	"github.com/alanyoungcy/equitybot/internal/strategy"
)

// intentBuffer sizes the channel between the engine and the executor. One
// decision cycle emits at most one intent per candidate plus the exits.
const intentBuffer = 256

// strategyStack is the assembled strategy layer.
type strategyStack struct {
	engine   *strategy.Engine
	tracker  *strategy.Tracker
	universe *service.UniverseService
}

// buildStrategy assembles the ranker, tracker, decider and engine on top of
// deps. intentCh may be nil when only the universe is needed.
func (a *App) buildStrategy(ctx context.Context, deps *Dependencies, intentCh chan<- domain.OrderIntent) (*strategyStack, error) {
	sc := a.cfg.Strategy

	ranker, err := strategy.NewRanker(rankConfig(sc.Ranking))
	if err != nil {
		return nil, fmt.Errorf("app: ranker: %w", err)
	}
	decCfg := decisionConfig(sc.Signal)
	if err := decCfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: decision config: %w", err)
	}

	market := service.NewMarketDataService(deps.Broker, deps.PriceCache, a.cfg.Broker.PriceMaxAge.Duration, a.base)

	universe := service.NewUniverseService(deps.Broker, market, ranker, sc.Ranking.FetchConcurrency, a.base)
	if deps.UniverseStore != nil {
		universe.SetStore(deps.UniverseStore)
	}
	for _, p := range deps.Publishers {
		universe.AddPublisher(p)
	}
	if deps.Archiver != nil {
		universe.SetArchiver(deps.Archiver)
	}

	tracker := strategy.NewTracker(lifecycleConfig(sc.Lifecycle), deps.HoldingStore, a.base)
	if err := tracker.Restore(ctx); err != nil {
		a.logger.WarnContext(ctx, "holding periods not restored, starting from zero",
			slog.String("error", err.Error()),
		)
	}

	decider := strategy.NewDecider(decCfg, market, deps.Broker, a.base)
	engine := strategy.NewEngine(strategy.EngineDeps{
		Tracker:   tracker,
		Decider:   decider,
		Universe:  universe,
		Portfolio: deps.Broker,
		Market:    market,
		Orders:    deps.Broker,
	}, intentCh, a.base)
	if deps.LockManager != nil {
		engine.SetLockManager(deps.LockManager, sc.CycleLockTTL.Duration)
	}

	return &strategyStack{engine: engine, tracker: tracker, universe: universe}, nil
}

// TradingMode runs the scheduler, strategy engine and executor. With submit
// false intents are recorded and published but no orders are sent.
func (a *App) TradingMode(ctx context.Context, deps *Dependencies, submit bool) error {
	a.logger.InfoContext(ctx, "starting trading mode", slog.Bool("submit_orders", submit))

	intentCh := make(chan domain.OrderIntent, intentBuffer)
	stack, err := a.buildStrategy(ctx, deps, intentCh)
	if err != nil {
		return err
	}
	a.restoreUniverse(ctx, deps, stack.engine)

	exec := executor.NewExecutor(intentCh, deps.Broker, submit, a.base)
	if deps.IntentStore != nil {
		exec.SetStore(deps.IntentStore)
	}
	for _, p := range deps.Publishers {
		exec.AddPublisher(p)
	}
	exec.SetNotifier(deps.Notifier)

	sched := scheduler.New(deps.Calendar, a.schedulerFuncs(deps, stack.engine), a.base)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return exec.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	if deps.Stream != nil {
		if u, ok := stack.engine.Universe(); ok {
			a.followUniverse(ctx, deps.Stream, u)
		}
		g.Go(func() error { return deps.Stream.Run(ctx) })
	}

	if deps.Archiver != nil {
		job := pipeline.NewArchiveJob(deps.Archiver, deps.Calendar.Location(), a.base)
		g.Go(func() error { return job.RunCron(ctx, a.cfg.S3.ArchiveCron) })
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health:   a.healthHandler(deps),
			Universe: handler.NewUniverseHandler(stack.engine, deps.UniverseStore, a.base),
			Intents:  handler.NewIntentHandler(stack.engine, deps.IntentStore, a.base),
			Holdings: handler.NewHoldingHandler(stack.engine, deps.Broker, a.base),
			Cycle:    handler.NewCycleHandler(stack.engine, a.base),
		})
	}

	return g.Wait()
}

// ServerMode serves the API from the stores only. Manual cycles are refused.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	tracker := strategy.NewTracker(lifecycleConfig(a.cfg.Strategy.Lifecycle), deps.HoldingStore, a.base)
	if err := tracker.Restore(ctx); err != nil {
		a.logger.WarnContext(ctx, "holding periods unavailable", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, server.Handlers{
		Health:   a.healthHandler(deps),
		Universe: handler.NewUniverseHandler(nil, deps.UniverseStore, a.base),
		Intents:  handler.NewIntentHandler(nil, deps.IntentStore, a.base),
		Holdings: handler.NewHoldingHandler(trackerPeriods{tracker}, deps.Broker, a.base),
		Cycle:    handler.NewCycleHandler(nil, a.base),
	})
	return g.Wait()
}

// schedulerFuncs binds the engine callbacks to the scheduler. Failures are
// reported through the notifier; ranking results are announced and the price
// stream follows the new universe.
func (a *App) schedulerFuncs(deps *Dependencies, engine *strategy.Engine) scheduler.Funcs {
	return scheduler.Funcs{
		SessionStart: func(ctx context.Context, session time.Time) error {
			if err := engine.OnSessionStart(ctx, session); err != nil {
				return err
			}
			u, ok := engine.Universe()
			if !ok {
				return nil
			}
			if deps.Stream != nil {
				a.followUniverse(ctx, deps.Stream, u)
			}
			if err := deps.Notifier.NotifyRanking(ctx, u); err != nil {
				a.logger.WarnContext(ctx, "ranking notification failed", slog.String("error", err.Error()))
			}
			return nil
		},
		HoldingCheck: engine.OnHoldingCheck,
		DecisionCycle: func(ctx context.Context) error {
			_, err := engine.OnDecisionCycle(ctx)
			return err
		},
		OnError: func(ctx context.Context, kind scheduler.Kind, err error) {
			if errors.Is(err, domain.ErrNoUniverse) && kind == scheduler.DecisionCycle {
				// The session-start failure was already reported.
				return
			}
			if nerr := deps.Notifier.NotifyError(ctx, kind.String(), err); nerr != nil {
				a.logger.WarnContext(ctx, "error notification failed", slog.String("error", nerr.Error()))
			}
		},
	}
}

// restoreUniverse installs today's stored universe so the API and manual
// cycles have one before the first session start of this process.
func (a *App) restoreUniverse(ctx context.Context, deps *Dependencies, engine *strategy.Engine) {
	if deps.UniverseStore == nil {
		return
	}
	u, err := deps.UniverseStore.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "stored universe unavailable", slog.String("error", err.Error()))
		}
		return
	}
	today := deps.Calendar.SessionDate(time.Now())
	if !deps.Calendar.SessionDate(u.Session).Equal(today) {
		return
	}
	engine.SetUniverse(u)
	a.logger.InfoContext(ctx, "restored session universe", slog.Int("candidates", u.Len()))
}

func (a *App) healthHandler(deps *Dependencies) *handler.HealthHandler {
	h := handler.NewHealthHandler(a.cfg.Mode, a.base)
	for name, p := range deps.Health {
		h.AddDependency(name, p)
	}
	return h
}

// startHTTPServer runs the API in g and shuts it down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.base)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// instrumentSubscriber is the part of the price stream that follows the
// ranked universe.
type instrumentSubscriber interface {
	Subscribe(insts []domain.Instrument) error
}

// followUniverse points the price stream at u's candidates. Failures are
// logged; unstreamed instruments are priced over REST.
func (a *App) followUniverse(ctx context.Context, stream instrumentSubscriber, u domain.RankedUniverse) {
	if err := stream.Subscribe(u.Instruments()); err != nil {
		a.logger.WarnContext(ctx, "price stream subscribe failed",
			slog.Int("instruments", u.Len()),
			slog.String("error", err.Error()),
		)
	}
}

// trackerPeriods adapts a Tracker to the holdings handler.
type trackerPeriods struct{ t *strategy.Tracker }

func (p trackerPeriods) HoldingPeriods() map[domain.Instrument]int { return p.t.Snapshot() }

func rankConfig(c config.RankingConfig) strategy.RankConfig {
	return strategy.RankConfig{
		MarketCapTopN: c.MarketCapTopN,
		LiquidityTopN: c.LiquidityTopN,
		LongLegSize:   c.LongLegSize,
		ShortLegSize:  c.ShortLegSize,
	}
}

func decisionConfig(c config.SignalConfig) strategy.DecisionConfig {
	return strategy.DecisionConfig{
		TrendWindow:           c.TrendWindow,
		TrendThreshold:        c.TrendThreshold,
		PriorPriceLookback:    c.PriorPriceLookback,
		VWAPLookback:          c.VWAPLookback,
		ShortVWAPFactor:       c.ShortVWAPFactor,
		EntryNotional:         c.EntryNotional,
		MaxInstrumentNotional: c.MaxInstrumentNotional,
		MaxPortfolioNotional:  c.MaxPortfolioNotional,
		AbandonCycleOnFlat:    c.AbandonCycleOnFlat,
	}
}

func lifecycleConfig(c config.LifecycleConfig) strategy.LifecycleConfig {
	return strategy.LifecycleConfig{
		MaxHoldingDays:      c.MaxHoldingDays,
		HoldingExitDays:     c.HoldingExitDays,
		StopLoss:            c.StopLoss,
		TakeProfit:          c.TakeProfit,
		MinPositionQuantity: c.MinPositionQuantity,
	}
}
