package domain

// Position is the broker's view of a held instrument. Quantity is signed:
// positive for long, negative for short. CostBasis is the average entry price.
type Position struct {
	Instrument Instrument `json:"instrument"`
	Quantity   float64    `json:"quantity"`
	CostBasis  float64    `json:"cost_basis"`
}

// Notional returns the absolute market value of the position at price.
func (p Position) Notional(price float64) float64 {
	v := p.Quantity * price
	if v < 0 {
		return -v
	}
	return v
}

// Return is the signed fractional move of price relative to the cost basis,
// from the long side's point of view. Zero cost basis yields zero.
func (p Position) Return(price float64) float64 {
	if p.CostBasis == 0 {
		return 0
	}
	return (price - p.CostBasis) / p.CostBasis
}

// PortfolioSnapshot is a point-in-time copy of all held positions. A decision
// cycle works from one snapshot and never re-reads positions mid-cycle.
type PortfolioSnapshot struct {
	Positions map[Instrument]Position
}

// Position returns the held position for inst, or a zero-quantity position.
func (s PortfolioSnapshot) Position(inst Instrument) Position {
	if p, ok := s.Positions[inst]; ok {
		return p
	}
	return Position{Instrument: inst}
}

// Held returns the instruments with a nonzero quantity.
func (s PortfolioSnapshot) Held() []Instrument {
	out := make([]Instrument, 0, len(s.Positions))
	for inst, p := range s.Positions {
		if p.Quantity != 0 {
			out = append(out, inst)
		}
	}
	return out
}
