package domain

import "time"

// Instrument identifies a tradeable security. It carries no structure beyond
// identity; brokers typically use the exchange ticker or an internal sid.
type Instrument string

// String returns the raw identifier.
func (i Instrument) String() string { return string(i) }

// BarUnit is the resolution of a historical bar series.
type BarUnit string

const (
	BarMinute BarUnit = "1m"
	BarDaily  BarUnit = "1d"
)

// Valid reports whether u is a supported bar resolution.
func (u BarUnit) Valid() bool {
	return u == BarMinute || u == BarDaily
}

// PriceBar is a single (timestamp, price, volume) observation. Price is the
// bar close.
type PriceBar struct {
	Time   time.Time
	Price  float64
	Volume float64
}

// Prices extracts the close prices from bars, oldest first.
func Prices(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Price
	}
	return out
}

// Fundamentals holds the per-session fundamental inputs used by the ranker.
type Fundamentals struct {
	Instrument        Instrument
	SharesOutstanding float64
	ROE               float64
	AsOf              time.Time
}

// Quote is the latest traded price for an instrument.
type Quote struct {
	Instrument Instrument
	Price      float64
	Time       time.Time
}
