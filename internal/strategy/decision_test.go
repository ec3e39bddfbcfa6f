package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func newTestDecider(cfg DecisionConfig, market *fakeMarket, orders *fakeOrders) *Decider {
	return NewDecider(cfg, market, orders, discardLogger())
}

func emptySnapshot() domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{Positions: map[domain.Instrument]domain.Position{}}
}

func TestDecideLongAndShortEntries(t *testing.T) {
	market := newFakeMarket()
	market.data["UP"] = crossing(99, 101)
	market.data["DOWN"] = crossing(92, 90)
	market.data["QUIET"] = crossing(101, 102)

	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), []domain.Instrument{"UP", "DOWN", "QUIET"}, emptySnapshot(), nil)

	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %+v", intents)
	}
	if intents[0].Instrument != "UP" || intents[0].Target != 500_000 || intents[0].Reason != domain.ReasonLongEntry {
		t.Errorf("long intent = %+v", intents[0])
	}
	if intents[1].Instrument != "DOWN" || intents[1].Target != -500_000 || intents[1].Reason != domain.ReasonShortEntry {
		t.Errorf("short intent = %+v", intents[1])
	}
	for _, in := range intents {
		if in.Kind != domain.TargetValue {
			t.Errorf("entry kind = %s, want value", in.Kind)
		}
	}
	if report.Evaluated != 3 || report.Intents != 2 || report.Halted {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestDecideHaltsAtPortfolioCap(t *testing.T) {
	market := newFakeMarket()
	snap := domain.PortfolioSnapshot{Positions: map[domain.Instrument]domain.Position{}}
	var candidates []domain.Instrument
	for _, id := range []domain.Instrument{"A", "B", "C"} {
		market.data[id] = crossing(99, 101)
		snap.Positions[id] = domain.Position{Instrument: id, Quantity: 9000, CostBasis: 95}
		candidates = append(candidates, id)
	}
	// 3 * 9000 * 101 = 2,727,000 >= 2,500,000

	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), candidates, snap, nil)
	if len(intents) != 0 {
		t.Fatalf("expected no intents at the cap, got %+v", intents)
	}
	if !report.Halted {
		t.Error("report should mark the cycle halted")
	}
	if report.Exposure != 3*9000*101 {
		t.Errorf("exposure = %v", report.Exposure)
	}
}

func TestDecideExposureCountsHeldCandidatesOnly(t *testing.T) {
	market := newFakeMarket()
	market.data["A"] = crossing(99, 101)
	market.data["OTHER"] = series{price: 100}
	snap := domain.PortfolioSnapshot{Positions: map[domain.Instrument]domain.Position{
		"OTHER": {Instrument: "OTHER", Quantity: 100_000, CostBasis: 100},
	}}
	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), []domain.Instrument{"A"}, snap, nil)
	if report.Halted || len(intents) != 1 {
		t.Fatalf("non-candidate holdings should not count: report=%+v intents=%d", report, len(intents))
	}
}

func TestDecideInstrumentCap(t *testing.T) {
	market := newFakeMarket()
	market.data["BIG"] = crossing(99, 101)
	snap := domain.PortfolioSnapshot{Positions: map[domain.Instrument]domain.Position{
		"BIG": {Instrument: "BIG", Quantity: 10_000, CostBasis: 90}, // 1,010,000 notional
	}}
	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), []domain.Instrument{"BIG"}, snap, nil)
	if len(intents) != 0 {
		t.Fatalf("expected no entry above the instrument cap, got %+v", intents)
	}
	if report.Halted {
		t.Error("instrument cap must not halt the cycle")
	}
}

func TestDecideOpenOrderGuard(t *testing.T) {
	market := newFakeMarket()
	market.data["X"] = crossing(99, 101)
	market.data["Y"] = crossing(99, 101)
	orders := &fakeOrders{
		open: map[domain.Instrument]bool{"X": true},
		err:  map[domain.Instrument]error{"Y": errBroker},
	}
	d := newTestDecider(DefaultDecisionConfig(), market, orders)
	intents, _ := d.Decide(context.Background(), []domain.Instrument{"X", "Y"}, emptySnapshot(), nil)
	if len(intents) != 0 {
		t.Fatalf("expected no intents with pending orders, got %+v", intents)
	}
}

func TestDecideNonTrendingSkipsInstrument(t *testing.T) {
	market := newFakeMarket()
	market.data["FLAT"] = series{histErr: domain.ErrInsufficientHistory}
	market.data["GOOD"] = crossing(99, 101)
	candidates := []domain.Instrument{"FLAT", "GOOD"}

	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), candidates, emptySnapshot(), nil)
	if len(intents) != 1 || intents[0].Instrument != "GOOD" {
		t.Fatalf("expected GOOD to be evaluated after FLAT, got %+v", intents)
	}
	if report.Abandoned || report.Skipped != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestDecideAbandonCycleOnFlat(t *testing.T) {
	market := newFakeMarket()
	market.data["GOOD"] = crossing(99, 101)
	market.data["FLAT"] = series{histErr: domain.ErrInsufficientHistory}
	market.data["LATER"] = crossing(99, 101)

	cfg := DefaultDecisionConfig()
	cfg.AbandonCycleOnFlat = true
	d := newTestDecider(cfg, market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), []domain.Instrument{"GOOD", "FLAT", "LATER"}, emptySnapshot(), nil)
	if !report.Abandoned {
		t.Fatal("expected the cycle to be abandoned")
	}
	if len(intents) != 1 || intents[0].Instrument != "GOOD" {
		t.Fatalf("only instruments before the flat one should emit, got %+v", intents)
	}
}

func TestDecideTrendThreshold(t *testing.T) {
	market := newFakeMarket()
	market.data["X"] = crossing(99, 101)
	h, ok := TrendPersistence(domain.Prices(market.data["X"].trend))
	if !ok {
		t.Fatal("fixture has no trend estimate")
	}

	cfg := DefaultDecisionConfig()
	cfg.TrendThreshold = h + 0.01
	d := newTestDecider(cfg, market, &fakeOrders{})
	if intents, _ := d.Decide(context.Background(), []domain.Instrument{"X"}, emptySnapshot(), nil); len(intents) != 0 {
		t.Fatalf("estimate %v below threshold should not emit, got %+v", h, intents)
	}
}

func TestDecideZeroVolumeVWAP(t *testing.T) {
	market := newFakeMarket()
	s := crossing(99, 101)
	for i := range s.daily {
		s.daily[i].Volume = 0
	}
	market.data["X"] = s
	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	if intents, _ := d.Decide(context.Background(), []domain.Instrument{"X"}, emptySnapshot(), nil); len(intents) != 0 {
		t.Fatalf("absent VWAP should not emit, got %+v", intents)
	}
}

func TestDecideIsolatesFailures(t *testing.T) {
	market := newFakeMarket()
	bad := crossing(99, 101)
	bad.priceErr = errBroker
	market.data["BAD"] = bad
	market.data["NOPRIOR"] = series{trend: trendingBars(1000), daily: flatDaily(15, 100), price: 101}
	market.data["GOOD"] = crossing(92, 90)

	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})
	intents, report := d.Decide(context.Background(), []domain.Instrument{"BAD", "NOPRIOR", "GOOD"}, emptySnapshot(), nil)
	if len(intents) != 1 || intents[0].Instrument != "GOOD" {
		t.Fatalf("expected only GOOD, got %+v", intents)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
}

func TestDecideOneIntentPerInstrument(t *testing.T) {
	market := newFakeMarket()
	market.data["X"] = crossing(99, 101)
	market.data["Y"] = crossing(99, 101)
	d := newTestDecider(DefaultDecisionConfig(), market, &fakeOrders{})

	intents, _ := d.Decide(context.Background(), []domain.Instrument{"X", "X", "Y"}, emptySnapshot(),
		map[domain.Instrument]bool{"Y": true})
	if len(intents) != 1 || intents[0].Instrument != "X" {
		t.Fatalf("expected one intent for X, got %+v", intents)
	}
}

func TestDecisionConfigValidate(t *testing.T) {
	if err := DefaultDecisionConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg := DefaultDecisionConfig()
	cfg.EntryNotional = 2_000_000
	if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = DefaultDecisionConfig()
	cfg.TrendWindow = 50
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for a trend window below the minimum")
	}
	cfg.TrendWindow = MinTrendWindow - 1
	if err := cfg.Validate(); err == nil {
		t.Errorf("trend window %d accepted", cfg.TrendWindow)
	}
	cfg.TrendWindow = MinTrendWindow
	if err := cfg.Validate(); err != nil {
		t.Errorf("trend window %d rejected: %v", cfg.TrendWindow, err)
	}
}
