package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// RankConfig holds the successive top-N cuts and the leg sizes taken from the
// quality ordering.
type RankConfig struct {
	MarketCapTopN int
	LiquidityTopN int
	LongLegSize   int
	ShortLegSize  int
}

// DefaultRankConfig returns the production cut sizes.
func DefaultRankConfig() RankConfig {
	return RankConfig{
		MarketCapTopN: 1000,
		LiquidityTopN: 200,
		LongLegSize:   100,
		ShortLegSize:  100,
	}
}

// Validate checks that every cut is positive and no leg asks for more names
// than the liquidity cut can produce.
func (c RankConfig) Validate() error {
	if c.MarketCapTopN < 1 {
		return fmt.Errorf("%w: market_cap_top_n must be >= 1", domain.ErrInvalidConfig)
	}
	if c.LiquidityTopN < 1 {
		return fmt.Errorf("%w: liquidity_top_n must be >= 1", domain.ErrInvalidConfig)
	}
	if c.LiquidityTopN > c.MarketCapTopN {
		return fmt.Errorf("%w: liquidity_top_n (%d) exceeds market_cap_top_n (%d)",
			domain.ErrInvalidConfig, c.LiquidityTopN, c.MarketCapTopN)
	}
	if c.LongLegSize < 0 || c.LongLegSize > c.LiquidityTopN {
		return fmt.Errorf("%w: long_leg_size must be within [0, %d], got %d",
			domain.ErrInvalidConfig, c.LiquidityTopN, c.LongLegSize)
	}
	if c.ShortLegSize < 0 || c.ShortLegSize > c.LiquidityTopN {
		return fmt.Errorf("%w: short_leg_size must be within [0, %d], got %d",
			domain.ErrInvalidConfig, c.LiquidityTopN, c.ShortLegSize)
	}
	return nil
}

// Ranker narrows the full universe to the session's candidates:
// market cap top-N, then liquidity top-N, then a quality ordering within
// the survivors. Ties are broken by instrument identifier so identical inputs
// always give identical output.
type Ranker struct {
	cfg RankConfig
}

// NewRanker validates cfg and returns a Ranker.
func NewRanker(cfg RankConfig) (*Ranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{cfg: cfg}, nil
}

// Config returns the ranker's cut sizes.
func (r *Ranker) Config() RankConfig { return r.cfg }

// Rank scores inputs and returns the ranked universe for session. Inputs
// without usable price or share data are dropped; duplicates keep their
// first occurrence. A missing ROE ranks last on quality.
func (r *Ranker) Rank(session time.Time, inputs []domain.FactorInput) domain.RankedUniverse {
	seen := make(map[domain.Instrument]struct{}, len(inputs))
	scores := make([]domain.FactorScore, 0, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.Instrument]; dup {
			continue
		}
		if !usable(in) {
			continue
		}
		seen[in.Instrument] = struct{}{}
		scores = append(scores, domain.FactorScore{
			Instrument: in.Instrument,
			MarketCap:  in.LastClose * in.SharesOutstanding,
			Liquidity:  in.LastVolume / in.SharesOutstanding,
			Quality:    in.ROE,
		})
	}

	// Market cap cut.
	sortDescending(scores, func(s domain.FactorScore) float64 { return s.MarketCap })
	scores = truncate(scores, r.cfg.MarketCapTopN)

	// Liquidity cut; survivors keep this order as the trading order.
	sortDescending(scores, func(s domain.FactorScore) float64 { return s.Liquidity })
	scores = truncate(scores, r.cfg.LiquidityTopN)
	for i := range scores {
		scores[i].LiquidityRank = i + 1
	}

	// Quality rank, computed only within the liquidity survivors.
	byQuality := make([]domain.FactorScore, len(scores))
	copy(byQuality, scores)
	sortDescending(byQuality, func(s domain.FactorScore) float64 { return s.Quality })
	qualityRank := make(map[domain.Instrument]int, len(byQuality))
	for i := range byQuality {
		byQuality[i].QualityRank = i + 1
		qualityRank[byQuality[i].Instrument] = i + 1
	}
	for i := range scores {
		scores[i].QualityRank = qualityRank[scores[i].Instrument]
	}

	u := domain.RankedUniverse{
		Session:    session,
		Candidates: scores,
		ByQuality:  byQuality,
		LongLeg:    make([]domain.Instrument, 0, min(r.cfg.LongLegSize, len(byQuality))),
		ShortLeg:   make([]domain.Instrument, 0, min(r.cfg.ShortLegSize, len(byQuality))),
	}
	for _, s := range byQuality[:min(r.cfg.LongLegSize, len(byQuality))] {
		u.LongLeg = append(u.LongLeg, s.Instrument)
	}
	for _, s := range byQuality[len(byQuality)-min(r.cfg.ShortLegSize, len(byQuality)):] {
		u.ShortLeg = append(u.ShortLeg, s.Instrument)
	}
	return u
}

func usable(in domain.FactorInput) bool {
	if in.Instrument == "" {
		return false
	}
	if !(in.SharesOutstanding > 0) || !(in.LastClose > 0) || !(in.LastVolume >= 0) {
		return false
	}
	return !math.IsInf(in.LastClose, 0) && !math.IsInf(in.LastVolume, 0) && !math.IsInf(in.SharesOutstanding, 0)
}

// sortDescending orders scores by key, largest first. NaN keys sort last and
// ties fall back to the instrument identifier.
func sortDescending(scores []domain.FactorScore, key func(domain.FactorScore) float64) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := key(scores[i]), key(scores[j])
		aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
		switch {
		case aNaN && bNaN:
			return scores[i].Instrument < scores[j].Instrument
		case aNaN:
			return false
		case bNaN:
			return true
		case a != b:
			return a > b
		default:
			return scores[i].Instrument < scores[j].Instrument
		}
	})
}

func truncate(scores []domain.FactorScore, n int) []domain.FactorScore {
	if len(scores) > n {
		return scores[:n]
	}
	return scores
}
