package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// DecisionConfig holds the entry-signal windows and the position-size caps.
type DecisionConfig struct {
	TrendWindow        int
	TrendThreshold     float64
	PriorPriceLookback int
	VWAPLookback       int
	ShortVWAPFactor    float64

	EntryNotional         float64
	MaxInstrumentNotional float64
	MaxPortfolioNotional  float64

	// AbandonCycleOnFlat reproduces the legacy behaviour of ending the whole
	// cycle at the first candidate without a trend estimate or VWAP. When
	// false such candidates are skipped individually.
	AbandonCycleOnFlat bool
}

// DefaultDecisionConfig returns the production signal parameters.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		TrendWindow:           1000,
		TrendThreshold:        0.5,
		PriorPriceLookback:    120,
		VWAPLookback:          15,
		ShortVWAPFactor:       DefaultShortVWAPFactor,
		EntryNotional:         500_000,
		MaxInstrumentNotional: 1_000_000,
		MaxPortfolioNotional:  2_500_000,
	}
}

// Validate rejects windows the estimators cannot work with and caps that
// would let a single entry breach the per-instrument limit.
func (c DecisionConfig) Validate() error {
	if c.TrendWindow < MinTrendWindow {
		return fmt.Errorf("%w: trend_window must be >= %d", domain.ErrInvalidConfig, MinTrendWindow)
	}
	if c.PriorPriceLookback < 1 {
		return fmt.Errorf("%w: prior_price_lookback must be >= 1", domain.ErrInvalidConfig)
	}
	if c.VWAPLookback < 2 {
		return fmt.Errorf("%w: vwap_lookback must be >= 2", domain.ErrInvalidConfig)
	}
	if !(c.ShortVWAPFactor > 0 && c.ShortVWAPFactor <= 1) {
		return fmt.Errorf("%w: short_vwap_factor must be in (0, 1]", domain.ErrInvalidConfig)
	}
	if c.EntryNotional <= 0 {
		return fmt.Errorf("%w: entry_notional must be > 0", domain.ErrInvalidConfig)
	}
	if c.EntryNotional > c.MaxInstrumentNotional {
		return fmt.Errorf("%w: entry_notional exceeds max_instrument_notional", domain.ErrInvalidConfig)
	}
	if c.MaxPortfolioNotional <= 0 {
		return fmt.Errorf("%w: max_portfolio_notional must be > 0", domain.ErrInvalidConfig)
	}
	return nil
}

// CycleReport summarizes one decision cycle.
type CycleReport struct {
	Exposure  float64
	Halted    bool
	Abandoned bool
	Evaluated int
	Skipped   int
	Intents   int
}

// Decider turns the candidate list into entry intents. It combines the trend
// gate, the VWAP crossover and the exposure caps, and never emits for an
// instrument with an open order.
type Decider struct {
	cfg    DecisionConfig
	market domain.MarketData
	orders domain.OpenOrderChecker
	logger *slog.Logger
}

// NewDecider creates a Decider.
func NewDecider(cfg DecisionConfig, market domain.MarketData, orders domain.OpenOrderChecker, logger *slog.Logger) *Decider {
	return &Decider{
		cfg:    cfg,
		market: market,
		orders: orders,
		logger: logger.With(slog.String("component", "decider")),
	}
}

// Exposure sums the absolute notional of every held candidate. When a price
// cannot be fetched the cost basis stands in for it.
func (d *Decider) Exposure(ctx context.Context, candidates []domain.Instrument, snap domain.PortfolioSnapshot) float64 {
	var total float64
	for _, inst := range candidates {
		pos := snap.Position(inst)
		if pos.Quantity == 0 {
			continue
		}
		price, err := d.market.CurrentPrice(ctx, inst)
		if err != nil {
			d.logger.WarnContext(ctx, "exposure: using cost basis, no current price",
				slog.String("instrument", inst.String()),
				slog.String("error", err.Error()),
			)
			price = pos.CostBasis
		}
		total += pos.Notional(price)
	}
	return total
}

// Decide evaluates every candidate once against snap. Instruments in exclude
// (for example those already exiting this cycle) are not considered.
func (d *Decider) Decide(ctx context.Context, candidates []domain.Instrument, snap domain.PortfolioSnapshot, exclude map[domain.Instrument]bool) ([]domain.OrderIntent, CycleReport) {
	var report CycleReport

	report.Exposure = d.Exposure(ctx, candidates, snap)
	if report.Exposure >= d.cfg.MaxPortfolioNotional {
		report.Halted = true
		d.logger.InfoContext(ctx, "portfolio exposure at cap, no entries this cycle",
			slog.Float64("exposure", report.Exposure),
			slog.Float64("cap", d.cfg.MaxPortfolioNotional),
		)
		return nil, report
	}

	var intents []domain.OrderIntent
	done := make(map[domain.Instrument]bool, len(candidates))
	for _, inst := range candidates {
		if ctx.Err() != nil {
			break
		}
		if done[inst] || exclude[inst] {
			continue
		}
		done[inst] = true
		report.Evaluated++

		intent, outcome := d.evaluate(ctx, inst, snap.Position(inst))
		switch outcome {
		case outcomeIntent:
			intents = append(intents, intent)
		case outcomeAbandon:
			report.Skipped++
			if d.cfg.AbandonCycleOnFlat {
				report.Abandoned = true
				d.logger.InfoContext(ctx, "cycle abandoned at non-trending candidate",
					slog.String("instrument", inst.String()),
				)
				report.Intents = len(intents)
				return intents, report
			}
		case outcomeSkip:
			report.Skipped++
		}
	}
	report.Intents = len(intents)
	return intents, report
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeIntent
	outcomeSkip
	// outcomeAbandon marks a missing or sub-threshold signal, the case the
	// legacy loop ended the cycle on.
	outcomeAbandon
)

func (d *Decider) evaluate(ctx context.Context, inst domain.Instrument, pos domain.Position) (domain.OrderIntent, outcome) {
	log := d.logger.With(slog.String("instrument", inst.String()))

	bars, err := d.market.History(ctx, inst, d.cfg.TrendWindow, domain.BarMinute)
	if err != nil {
		log.DebugContext(ctx, "skip: trend history unavailable", slog.String("error", err.Error()))
		return domain.OrderIntent{}, outcomeAbandon
	}
	h, ok := TrendPersistence(domain.Prices(bars))
	if !ok || h < d.cfg.TrendThreshold {
		return domain.OrderIntent{}, outcomeAbandon
	}

	daily, err := d.market.History(ctx, inst, d.cfg.VWAPLookback, domain.BarDaily)
	if err != nil {
		log.DebugContext(ctx, "skip: vwap history unavailable", slog.String("error", err.Error()))
		return domain.OrderIntent{}, outcomeAbandon
	}
	vwap, ok := VWAP(daily)
	if !ok {
		return domain.OrderIntent{}, outcomeAbandon
	}

	recent, err := d.market.History(ctx, inst, d.cfg.PriorPriceLookback, domain.BarMinute)
	if err != nil || len(recent) == 0 {
		log.WarnContext(ctx, "skip: prior price unavailable", slog.Any("error", err))
		return domain.OrderIntent{}, outcomeSkip
	}
	prior := recent[0].Price

	price, err := d.market.CurrentPrice(ctx, inst)
	if err != nil {
		log.WarnContext(ctx, "skip: current price unavailable", slog.String("error", err.Error()))
		return domain.OrderIntent{}, outcomeSkip
	}

	signal := DetectCrossover(price, prior, vwap, d.cfg.ShortVWAPFactor)
	if signal == NoCrossover {
		return domain.OrderIntent{}, outcomeNone
	}

	underLimit := math.Abs(pos.Quantity*price) < d.cfg.MaxInstrumentNotional
	log.InfoContext(ctx, "vwap crossover",
		slog.String("signal", signal.String()),
		slog.Float64("hurst", h),
		slog.Float64("vwap", vwap),
		slog.Float64("price", price),
		slog.Float64("prior_price", prior),
		slog.Bool("under_limit", underLimit),
	)
	if !underLimit {
		return domain.OrderIntent{}, outcomeSkip
	}
	if pending(ctx, d.orders, inst, d.logger) {
		return domain.OrderIntent{}, outcomeSkip
	}

	target, reason := d.cfg.EntryNotional, domain.ReasonLongEntry
	if signal == ShortCrossover {
		target, reason = -d.cfg.EntryNotional, domain.ReasonShortEntry
	}
	return newIntent(inst, domain.TargetValue, target, reason, map[string]string{
		"hurst":       strconv.FormatFloat(h, 'f', 6, 64),
		"vwap":        strconv.FormatFloat(vwap, 'f', 6, 64),
		"price":       strconv.FormatFloat(price, 'f', -1, 64),
		"prior_price": strconv.FormatFloat(prior, 'f', -1, 64),
	}), outcomeIntent
}
