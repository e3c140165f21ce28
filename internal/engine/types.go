package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/position"
)

// State names a step of the per-evaluation state machine. Terminal states
// are StateNone, StateRejected, StateFilled and StateCancelled; the machine
// is stateless across cycles.
type State string

const (
	StateIdle          State = "idle"
	StatePriceReceived State = "price_received"
	StateEvaluated     State = "evaluated"
	StateSized         State = "sized"
	StateGuardrailed   State = "guardrailed"
	StateValidated     State = "validated"
	StateSubmitted     State = "submitted"

	StateNone      State = "none"
	StateRejected  State = "rejected"
	StateFilled    State = "filled"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s ends an evaluation cycle.
func (s State) Terminal() bool {
	switch s {
	case StateNone, StateRejected, StateFilled, StateCancelled:
		return true
	}
	return false
}

// RejectReason classifies validator rejections. Rejections are results the
// caller branches on, not errors.
type RejectReason string

const (
	RejectNone               RejectReason = ""
	RejectMinNotional        RejectReason = "min_notional"
	RejectInsufficientFunds  RejectReason = "insufficient_funds"
	RejectInsufficientShares RejectReason = "insufficient_shares"
	RejectMarketClosed       RejectReason = "market_closed"
	RejectDuplicate          RejectReason = "duplicate"
	RejectDailyCap           RejectReason = "daily_cap"
)

// OrderIntent is the engine's proposed action after sizing and guardrail
// trimming. It lives only inside one evaluation; the resulting events are
// what gets persisted.
type OrderIntent struct {
	PositionID   string          `json:"position_id"`
	EvaluationID string          `json:"evaluation_id"`
	Side         position.Side   `json:"side"`
	RawQty       decimal.Decimal `json:"raw_qty"`
	TrimmedQty   decimal.Decimal `json:"trimmed_qty"`
	TriggerPrice decimal.Decimal `json:"trigger_price"` // limit reference price
	Reason       string          `json:"reason"`
}

// Qty returns the final (post-trim) quantity, always positive.
func (oi OrderIntent) Qty() decimal.Decimal {
	return oi.TrimmedQty.Abs()
}

// Notional returns |qty| * reference price.
func (oi OrderIntent) Notional() decimal.Decimal {
	return oi.Qty().Mul(oi.TriggerPrice)
}

// Fill is the execution collaborator's report for a submitted intent.
// Commission is owned by the accounting unit, not the executor.
type Fill struct {
	OrderID    string          `json:"order_id"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Trade is the immutable record of an executed fill. Each trade causes
// exactly one anchor update.
type Trade struct {
	ID         string          `json:"id"`
	PositionID string          `json:"position_id"`
	OrderID    string          `json:"order_id"`
	Side       position.Side   `json:"side"`
	Qty        decimal.Decimal `json:"qty"` // always positive; Side carries direction
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Notional returns qty * price.
func (t Trade) Notional() decimal.Decimal {
	return t.Qty.Mul(t.Price)
}

// EvalRequest carries one price observation into the engine.
type EvalRequest struct {
	PositionID   string
	EvaluationID string // idempotency key together with PositionID; generated when empty
	Price        decimal.Decimal
	Timestamp    time.Time
	MarketOpen   bool
	Stale        bool // set by the feed guard; a stale tick skips the cycle
	StaleReason  string
}

// EvaluationResult is what the caller branches on.
type EvaluationResult struct {
	PositionID   string          `json:"position_id"`
	EvaluationID string          `json:"evaluation_id"`
	State        State           `json:"state"`
	Side         position.Side   `json:"side"`
	RejectReason RejectReason    `json:"reject_reason,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Duplicate    bool            `json:"duplicate,omitempty"`
	Intent       *OrderIntent    `json:"intent,omitempty"`
	Trade        *Trade          `json:"trade,omitempty"`
	Events       []event.Event   `json:"events"`
	ElapsedMs    int64           `json:"elapsed_ms"`
}
