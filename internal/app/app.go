// Package app provides the top-level lifecycle of the equity bot. It wires
// the stores, caches, broker, strategy and executor together and starts the
// goroutines of the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/domain"
)

// App is the root application object. It owns the configuration, logger and
// the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	base    *slog.Logger
	logger  *slog.Logger
	closers []func()
}

// New creates an App from cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		base:   logger,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies, starts the configured mode and blocks until
// ctx is cancelled or a mode goroutine fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	switch mode := strings.ToLower(a.cfg.Mode); mode {
	case "trade":
		return a.TradingMode(ctx, deps, true)
	case "signal":
		return a.TradingMode(ctx, deps, false)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Rank builds and returns the ranked universe for the current session
// without starting the scheduler. The snapshot is persisted, published and
// archived like a scheduled ranking.
func (a *App) Rank(ctx context.Context) (domain.RankedUniverse, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return domain.RankedUniverse{}, err
	}
	stack, err := a.buildStrategy(ctx, deps, nil)
	if err != nil {
		return domain.RankedUniverse{}, err
	}
	session := deps.Calendar.SessionDate(time.Now())
	return stack.universe.BuildUniverse(ctx, session)
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Close tears down all resources in reverse registration order. Later calls
// are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
