package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

var errBroker = errors.New("broker unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// series is the canned market data for one instrument.
type series struct {
	trend    []domain.PriceBar
	daily    []domain.PriceBar
	recent   []domain.PriceBar
	price    float64
	priceErr error
	histErr  error
}

type fakeMarket struct {
	mu            sync.Mutex
	priorLookback int
	data          map[domain.Instrument]series
	priceCalls    int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		priorLookback: DefaultDecisionConfig().PriorPriceLookback,
		data:          make(map[domain.Instrument]series),
	}
}

func (m *fakeMarket) History(_ context.Context, inst domain.Instrument, window int, unit domain.BarUnit) ([]domain.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[inst]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.histErr != nil {
		return nil, s.histErr
	}
	switch {
	case unit == domain.BarDaily:
		return s.daily, nil
	case window == m.priorLookback:
		return s.recent, nil
	default:
		return s.trend, nil
	}
}

func (m *fakeMarket) CurrentPrice(_ context.Context, inst domain.Instrument) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceCalls++
	s, ok := m.data[inst]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if s.priceErr != nil {
		return 0, s.priceErr
	}
	return s.price, nil
}

type fakeOrders struct {
	open map[domain.Instrument]bool
	err  map[domain.Instrument]error
}

func (o *fakeOrders) HasOpenOrder(_ context.Context, inst domain.Instrument) (bool, error) {
	if o == nil {
		return false, nil
	}
	if err := o.err[inst]; err != nil {
		return false, err
	}
	return o.open[inst], nil
}

type fakePortfolio struct {
	mu        sync.Mutex
	positions map[domain.Instrument]domain.Position
	err       error
}

func (p *fakePortfolio) Positions(context.Context) (map[domain.Instrument]domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[domain.Instrument]domain.Position, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out, nil
}

type memHoldingStore struct {
	mu    sync.Mutex
	data  domain.HoldingPeriods
	saves int
}

func (s *memHoldingStore) Load(context.Context) (domain.HoldingPeriods, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.HoldingPeriods{Session: s.data.Session, Days: make(map[domain.Instrument]int, len(s.data.Days))}
	for k, v := range s.data.Days {
		out.Days[k] = v
	}
	return out, nil
}

func (s *memHoldingStore) Save(_ context.Context, p domain.HoldingPeriods) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = domain.HoldingPeriods{Session: p.Session, Days: make(map[domain.Instrument]int, len(p.Days))}
	for k, v := range p.Days {
		s.data.Days[k] = v
	}
	s.saves++
	return nil
}

// trendingBars returns a convex price path whose lag differences grow
// linearly with the lag, so the trend estimate is well above 0.5.
func trendingBars(n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, n)
	start := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	for i := range bars {
		t := float64(i)
		bars[i] = domain.PriceBar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Price:  100 + 0.0001*t*t,
			Volume: 1000,
		}
	}
	return bars
}

func flatDaily(n int, price float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, n)
	start := time.Date(2024, 2, 1, 21, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.PriceBar{
			Time:   start.AddDate(0, 0, i),
			Price:  price,
			Volume: 1_000_000,
		}
	}
	return bars
}

func priorBars(prior float64) []domain.PriceBar {
	return []domain.PriceBar{{Price: prior, Volume: 10}, {Price: prior + 0.5, Volume: 10}}
}

// crossing builds market data where the price crosses a VWAP of 100 from
// prior to current.
func crossing(prior, current float64) series {
	return series{
		trend:  trendingBars(1000),
		daily:  flatDaily(15, 100),
		recent: priorBars(prior),
		price:  current,
	}
}
