// Package service composes the platform clients, caches and stores into the
// collaborators the strategy engine consumes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// MarketDataService serves bar history from the broker and current prices
// from the price cache, falling back to the broker when the cached price is
// missing or older than maxAge.
type MarketDataService struct {
	broker domain.MarketData
	cache  domain.PriceCache
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewMarketDataService creates a MarketDataService. cache may be nil, in
// which case every price comes from the broker.
func NewMarketDataService(broker domain.MarketData, cache domain.PriceCache, maxAge time.Duration, logger *slog.Logger) *MarketDataService {
	return &MarketDataService{
		broker: broker,
		cache:  cache,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With(slog.String("component", "market_data")),
	}
}

// History returns the last window bars of inst at the given resolution.
func (s *MarketDataService) History(ctx context.Context, inst domain.Instrument, window int, unit domain.BarUnit) ([]domain.PriceBar, error) {
	bars, err := s.broker.History(ctx, inst, window, unit)
	if err != nil {
		return nil, fmt.Errorf("market_data: history %s: %w", inst, err)
	}
	return bars, nil
}

// CurrentPrice returns the latest price of inst.
func (s *MarketDataService) CurrentPrice(ctx context.Context, inst domain.Instrument) (float64, error) {
	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, inst)
		if err == nil && price > 0 && s.now().Sub(ts) <= s.maxAge {
			return price, nil
		}
	}

	price, err := s.broker.CurrentPrice(ctx, inst)
	if err != nil {
		return 0, fmt.Errorf("market_data: current price %s: %w", inst, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetPrice(ctx, inst, price, s.now()); cacheErr != nil {
			s.logger.WarnContext(ctx, "price cache back-fill failed",
				slog.String("instrument", inst.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return price, nil
}

var _ domain.MarketData = (*MarketDataService)(nil)
