package event

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates every audit record the engine can emit.
type Type string

const (
	TypeThresholdCrossed          Type = "threshold_crossed"
	TypeOrderSubmitted            Type = "order_submitted"
	TypeOrderTrimmedGuardrail     Type = "order_trimmed_guardrail"
	TypeOrderRejectedMin          Type = "order_rejected_min"
	TypeOrderRejected             Type = "order_rejected"
	TypeOrderCancelled            Type = "order_cancelled"
	TypeOrderFilled               Type = "order_filled"
	TypeAnchorUpdated             Type = "anchor_updated"
	TypeAutoGuardrailRebalance    Type = "auto_guardrail_rebalance"
	TypeExDivAnnounced            Type = "ex_div_announced"
	TypeExDivEffective            Type = "ex_div_effective"
	TypeAnchorAdjustedForDividend Type = "anchor_adjusted_for_dividend"
	TypeDividendCashReceived      Type = "dividend_cash_received"
	TypePriceSourceSkipped        Type = "price_source_skipped"
)

// Payload is the tagged union behind every event type. Each variant is a
// strongly-typed struct; the Inputs/Outputs maps are rendered from it so
// downstream consumers never have to guess field names.
type Payload interface {
	EventType() Type
	Inputs() map[string]any
	Outputs() map[string]any
	Message() string
}

// Event is an immutable, append-only audit record. It carries enough of the
// decision's inputs and outputs to reconstruct the decision deterministically.
type Event struct {
	ID         string         `json:"id"`
	PositionID string         `json:"position_id"`
	Type       Type           `json:"type"`
	Inputs     map[string]any `json:"inputs"`
	Outputs    map[string]any `json:"outputs"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
}

// New builds an Event from a typed payload.
func New(positionID string, p Payload, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		PositionID: positionID,
		Type:       p.EventType(),
		Inputs:     p.Inputs(),
		Outputs:    p.Outputs(),
		Message:    p.Message(),
		Timestamp:  at,
	}
}
