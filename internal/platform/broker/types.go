package broker

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Wire types of the brokerage REST API. Monetary amounts travel as decimal
// strings.

type apiInstrumentList struct {
	Instruments []string `json:"instruments"`
}

type apiBar struct {
	Time   time.Time       `json:"t"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

type apiBars struct {
	Instrument string   `json:"instrument"`
	Unit       string   `json:"unit"`
	Bars       []apiBar `json:"bars"`
}

func (b apiBars) toDomain() []domain.PriceBar {
	out := make([]domain.PriceBar, len(b.Bars))
	for i, bar := range b.Bars {
		out[i] = domain.PriceBar{
			Time:   bar.Time,
			Price:  bar.Close.InexactFloat64(),
			Volume: bar.Volume.InexactFloat64(),
		}
	}
	return out
}

type apiQuote struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Time       time.Time       `json:"t"`
}

func (q apiQuote) toDomain() domain.Quote {
	return domain.Quote{
		Instrument: domain.Instrument(q.Instrument),
		Price:      q.Price.InexactFloat64(),
		Time:       q.Time,
	}
}

type apiFundamentals struct {
	Instrument        string           `json:"instrument"`
	SharesOutstanding decimal.Decimal  `json:"shares_outstanding"`
	ROE               *decimal.Decimal `json:"roe"`
	AsOf              time.Time        `json:"as_of"`
}

// toDomain maps a missing ROE to NaN so the ranker places it last.
func (f apiFundamentals) toDomain() domain.Fundamentals {
	out := domain.Fundamentals{
		Instrument:        domain.Instrument(f.Instrument),
		SharesOutstanding: f.SharesOutstanding.InexactFloat64(),
		ROE:               nan(),
		AsOf:              f.AsOf,
	}
	if f.ROE != nil {
		out.ROE = f.ROE.InexactFloat64()
	}
	return out
}

type apiPosition struct {
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	CostBasis  decimal.Decimal `json:"avg_entry_price"`
}

type apiPositions struct {
	Positions []apiPosition `json:"positions"`
}

type apiOrder struct {
	ID         string `json:"id"`
	Instrument string `json:"instrument"`
	Status     string `json:"status"`
}

type apiOrders struct {
	Orders []apiOrder `json:"orders"`
}

type apiTargetOrderRequest struct {
	Instrument    string            `json:"instrument"`
	Kind          domain.TargetKind `json:"kind"`
	Target        decimal.Decimal   `json:"target"`
	ClientOrderID string            `json:"client_order_id"`
}

type apiTargetOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (r apiTargetOrderResponse) toDomain() domain.OrderResult {
	status := domain.OrderStatus(r.Status)
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusOpen, domain.OrderStatusFilled,
		domain.OrderStatusCancelled, domain.OrderStatusRejected, domain.OrderStatusSkipped:
	default:
		status = domain.OrderStatusPending
	}
	return domain.OrderResult{
		Success: status != domain.OrderStatusRejected,
		OrderID: r.OrderID,
		Status:  status,
		Message: r.Message,
	}
}

// apiTrade is one last-trade message on the price stream.
type apiTrade struct {
	Type       string          `json:"type"`
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Time       time.Time       `json:"t"`
}

type apiSubscribe struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}
