package domain

import "time"

// IntentReason explains why an OrderIntent was emitted.
type IntentReason string

const (
	ReasonLongEntry   IntentReason = "vwap-long-crossover"
	ReasonShortEntry  IntentReason = "vwap-short-crossover"
	ReasonMaxHolding  IntentReason = "max-holding-period"
	ReasonStopLoss    IntentReason = "stop-loss"
	ReasonTakeProfit  IntentReason = "take-profit"
	ReasonManualClose IntentReason = "manual-close"
)

// IsExit reports whether the reason closes a position.
func (r IntentReason) IsExit() bool {
	switch r {
	case ReasonMaxHolding, ReasonStopLoss, ReasonTakeProfit, ReasonManualClose:
		return true
	}
	return false
}

// TargetKind selects how Target is interpreted by the broker.
type TargetKind string

const (
	// TargetValue sizes the position to an absolute signed notional.
	TargetValue TargetKind = "value"
	// TargetPercent sizes the position to a signed fraction of portfolio value.
	TargetPercent TargetKind = "percent"
)

// OrderIntent is the engine's output. It records what the strategy wants the
// position to become; it does not own execution.
type OrderIntent struct {
	ID         string            `json:"id"`
	Instrument Instrument        `json:"instrument"`
	Kind       TargetKind        `json:"kind"`
	Target     float64           `json:"target"`
	Reason     IntentReason      `json:"reason"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// OrderStatus tracks the broker-side order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusSkipped   OrderStatus = "skipped"
)

// OrderResult wraps the broker response after submitting an intent.
type OrderResult struct {
	Success bool
	OrderID string
	Status  OrderStatus
	Message string
}

// IntentRecord is a persisted intent together with its execution outcome.
type IntentRecord struct {
	Intent    OrderIntent `json:"intent"`
	OrderID   string      `json:"order_id,omitempty"`
	Status    OrderStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IntentEvent is the message fanned out to downstream consumers after an
// intent has been handled.
type IntentEvent struct {
	Intent  OrderIntent `json:"intent"`
	OrderID string      `json:"order_id,omitempty"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

// NewIntentEvent pairs an intent with its execution result.
func NewIntentEvent(intent OrderIntent, res OrderResult) IntentEvent {
	return IntentEvent{
		Intent:  intent,
		OrderID: res.OrderID,
		Status:  res.Status,
		Message: res.Message,
		SentAt:  time.Now().UTC(),
	}
}
