package domain

import "context"

// MarketData supplies historical bars and current prices. Implementations
// return ErrInsufficientHistory when fewer bars than requested exist.
type MarketData interface {
	History(ctx context.Context, inst Instrument, window int, unit BarUnit) ([]PriceBar, error)
	CurrentPrice(ctx context.Context, inst Instrument) (float64, error)
}

// OrderGateway converts intents into broker orders.
type OrderGateway interface {
	HasOpenOrder(ctx context.Context, inst Instrument) (bool, error)
	SubmitTargetValue(ctx context.Context, inst Instrument, target float64, clientOrderID string) (OrderResult, error)
	SubmitTargetPercent(ctx context.Context, inst Instrument, target float64, clientOrderID string) (OrderResult, error)
}

// PortfolioSource returns the broker's current positions.
type PortfolioSource interface {
	Positions(ctx context.Context) (map[Instrument]Position, error)
}

// FundamentalsSource lists the tradeable universe and its fundamentals.
type FundamentalsSource interface {
	ListInstruments(ctx context.Context) ([]Instrument, error)
	Fundamentals(ctx context.Context, inst Instrument) (Fundamentals, error)
}

// OpenOrderChecker is the narrow slice of OrderGateway used by the decision
// logic.
type OpenOrderChecker interface {
	HasOpenOrder(ctx context.Context, inst Instrument) (bool, error)
}
