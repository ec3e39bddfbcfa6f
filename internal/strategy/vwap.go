package strategy

import (
	"math"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// DefaultShortVWAPFactor scales the VWAP line for the short trigger. The
// short side needs a 9% break below VWAP, the long side a plain cross.
const DefaultShortVWAPFactor = 0.91

// Crossover is the result of comparing a price move against the VWAP line.
type Crossover int

const (
	NoCrossover Crossover = iota
	LongCrossover
	ShortCrossover
)

func (c Crossover) String() string {
	switch c {
	case LongCrossover:
		return "long"
	case ShortCrossover:
		return "short"
	default:
		return "none"
	}
}

// VWAP returns the volume-weighted average price of bars, dropping the last
// bar because it is still forming. ok is false when the remaining window has
// no volume.
func VWAP(bars []domain.PriceBar) (float64, bool) {
	if len(bars) == 0 {
		return 0, false
	}
	window := bars[:len(bars)-1]

	var pv, vol float64
	for _, b := range window {
		pv += b.Price * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return 0, false
	}
	v := pv / vol
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// IsLongCrossover reports whether price crossed up through vwap between prior
// and current.
func IsLongCrossover(current, prior, vwap float64) bool {
	return current > vwap && prior < vwap
}

// IsShortCrossover reports whether price crossed down through vwap*factor
// between prior and current.
func IsShortCrossover(current, prior, vwap, factor float64) bool {
	line := vwap * factor
	return current < line && prior > line
}

// DetectCrossover evaluates the long trigger first, then the short trigger.
func DetectCrossover(current, prior, vwap, shortFactor float64) Crossover {
	switch {
	case IsLongCrossover(current, prior, vwap):
		return LongCrossover
	case IsShortCrossover(current, prior, vwap, shortFactor):
		return ShortCrossover
	default:
		return NoCrossover
	}
}
