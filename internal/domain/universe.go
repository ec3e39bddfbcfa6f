package domain

import (
	"encoding/json"
	"math"
	"time"
)

// FactorInput is the raw per-instrument data needed to score one session.
type FactorInput struct {
	Instrument        Instrument
	LastClose         float64
	LastVolume        float64
	SharesOutstanding float64
	ROE               float64
}

// FactorScore is the set of factor values and ranks computed for an
// instrument during one session. Ranks are 1-based with 1 being the best
// (largest) value.
type FactorScore struct {
	Instrument    Instrument `json:"instrument"`
	MarketCap     float64    `json:"market_cap"`
	Liquidity     float64    `json:"liquidity"`
	Quality       float64    `json:"quality"`
	LiquidityRank int        `json:"liquidity_rank"`
	QualityRank   int        `json:"quality_rank"`
}

type factorScoreJSON struct {
	Instrument    Instrument `json:"instrument"`
	MarketCap     float64    `json:"market_cap"`
	Liquidity     float64    `json:"liquidity"`
	Quality       *float64   `json:"quality"`
	LiquidityRank int        `json:"liquidity_rank"`
	QualityRank   int        `json:"quality_rank"`
}

// MarshalJSON encodes a missing (NaN) quality as null.
func (s FactorScore) MarshalJSON() ([]byte, error) {
	out := factorScoreJSON{
		Instrument:    s.Instrument,
		MarketCap:     s.MarketCap,
		Liquidity:     s.Liquidity,
		LiquidityRank: s.LiquidityRank,
		QualityRank:   s.QualityRank,
	}
	if !math.IsNaN(s.Quality) && !math.IsInf(s.Quality, 0) {
		q := s.Quality
		out.Quality = &q
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a null quality back to NaN.
func (s *FactorScore) UnmarshalJSON(data []byte) error {
	var in factorScoreJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = FactorScore{
		Instrument:    in.Instrument,
		MarketCap:     in.MarketCap,
		Liquidity:     in.Liquidity,
		Quality:       math.NaN(),
		LiquidityRank: in.LiquidityRank,
		QualityRank:   in.QualityRank,
	}
	if in.Quality != nil {
		s.Quality = *in.Quality
	}
	return nil
}

// RankedUniverse is the session's candidate list. Candidates are ordered by
// liquidity rank (most liquid first); ByQuality holds the same entries
// ordered by quality rank. A RankedUniverse is never mutated after Rank
// returns it.
type RankedUniverse struct {
	Session    time.Time     `json:"session"`
	Candidates []FactorScore `json:"candidates"`
	ByQuality  []FactorScore `json:"by_quality"`
	LongLeg    []Instrument  `json:"long_leg"`
	ShortLeg   []Instrument  `json:"short_leg"`
}

// Instruments returns the candidate instruments in trading order.
func (u RankedUniverse) Instruments() []Instrument {
	out := make([]Instrument, len(u.Candidates))
	for i, c := range u.Candidates {
		out[i] = c.Instrument
	}
	return out
}

// Len returns the number of candidates.
func (u RankedUniverse) Len() int { return len(u.Candidates) }

// Contains reports whether inst is a candidate this session.
func (u RankedUniverse) Contains(inst Instrument) bool {
	for _, c := range u.Candidates {
		if c.Instrument == inst {
			return true
		}
	}
	return false
}
