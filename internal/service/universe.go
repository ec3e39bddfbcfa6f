package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/strategy"
)

// UniverseArchiver copies a ranked universe to long-term storage.
type UniverseArchiver interface {
	ArchiveUniverse(ctx context.Context, u domain.RankedUniverse) (string, error)
}

// UniverseService ranks the session universe: it gathers fundamentals and
// the last daily bar for every listed instrument, runs the ranker, and then
// persists, publishes and archives the result.
type UniverseService struct {
	source      domain.FundamentalsSource
	market      domain.MarketData
	ranker      *strategy.Ranker
	concurrency int
	logger      *slog.Logger

	store      domain.UniverseStore
	publishers []domain.IntentPublisher
	archiver   UniverseArchiver
}

// NewUniverseService creates a UniverseService. concurrency bounds the
// parallel per-instrument fetches.
func NewUniverseService(source domain.FundamentalsSource, market domain.MarketData, ranker *strategy.Ranker, concurrency int, logger *slog.Logger) *UniverseService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &UniverseService{
		source:      source,
		market:      market,
		ranker:      ranker,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "universe")),
	}
}

// SetStore persists every ranked universe.
func (s *UniverseService) SetStore(store domain.UniverseStore) { s.store = store }

// AddPublisher fans every ranked universe out to p.
func (s *UniverseService) AddPublisher(p domain.IntentPublisher) {
	s.publishers = append(s.publishers, p)
}

// SetArchiver archives every ranked universe.
func (s *UniverseService) SetArchiver(a UniverseArchiver) { s.archiver = a }

// BuildUniverse ranks the universe for session. Instruments whose data
// cannot be fetched are left out. Persistence, publishing and archiving
// failures are logged and do not fail the build.
func (s *UniverseService) BuildUniverse(ctx context.Context, session time.Time) (domain.RankedUniverse, error) {
	insts, err := s.source.ListInstruments(ctx)
	if err != nil {
		return domain.RankedUniverse{}, fmt.Errorf("universe: list instruments: %w", err)
	}

	inputs, skipped, err := s.fetchInputs(ctx, insts)
	if err != nil {
		return domain.RankedUniverse{}, err
	}

	u := s.ranker.Rank(session, inputs)
	s.logger.InfoContext(ctx, "universe ranked",
		slog.Time("session", session),
		slog.Int("listed", len(insts)),
		slog.Int("skipped", skipped),
		slog.Int("candidates", u.Len()),
		slog.Int("long_leg", len(u.LongLeg)),
		slog.Int("short_leg", len(u.ShortLeg)),
	)

	s.record(ctx, u)
	return u, nil
}

// fetchInputs gathers one FactorInput per instrument, preserving the listing
// order.
func (s *UniverseService) fetchInputs(ctx context.Context, insts []domain.Instrument) ([]domain.FactorInput, int, error) {
	results := make([]domain.FactorInput, len(insts))
	ok := make([]bool, len(insts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, inst := range insts {
		g.Go(func() error {
			in, err := s.fetchOne(gctx, inst)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.DebugContext(gctx, "instrument skipped",
					slog.String("instrument", inst.String()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = in
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("universe: fetch inputs: %w", err)
	}

	inputs := make([]domain.FactorInput, 0, len(insts))
	for i := range results {
		if ok[i] {
			inputs = append(inputs, results[i])
		}
	}
	return inputs, len(insts) - len(inputs), nil
}

func (s *UniverseService) fetchOne(ctx context.Context, inst domain.Instrument) (domain.FactorInput, error) {
	f, err := s.source.Fundamentals(ctx, inst)
	if err != nil {
		return domain.FactorInput{}, fmt.Errorf("fundamentals: %w", err)
	}
	bars, err := s.market.History(ctx, inst, 1, domain.BarDaily)
	if err != nil {
		return domain.FactorInput{}, fmt.Errorf("last daily bar: %w", err)
	}
	if len(bars) == 0 {
		return domain.FactorInput{}, fmt.Errorf("last daily bar: %w", domain.ErrInsufficientHistory)
	}
	last := bars[len(bars)-1]
	return domain.FactorInput{
		Instrument:        inst,
		LastClose:         last.Price,
		LastVolume:        last.Volume,
		SharesOutstanding: f.SharesOutstanding,
		ROE:               f.ROE,
	}, nil
}

func (s *UniverseService) record(ctx context.Context, u domain.RankedUniverse) {
	if s.store != nil {
		if err := s.store.Save(ctx, u); err != nil {
			s.logger.ErrorContext(ctx, "universe snapshot save failed", slog.String("error", err.Error()))
		}
	}
	for _, p := range s.publishers {
		if err := p.PublishRanking(ctx, u); err != nil {
			s.logger.WarnContext(ctx, "ranking publish failed", slog.String("error", err.Error()))
		}
	}
	if s.archiver != nil {
		path, err := s.archiver.ArchiveUniverse(ctx, u)
		if err != nil {
			s.logger.WarnContext(ctx, "universe archive failed", slog.String("error", err.Error()))
			return
		}
		s.logger.DebugContext(ctx, "universe archived", slog.String("path", path))
	}
}

var _ strategy.UniverseBuilder = (*UniverseService)(nil)
