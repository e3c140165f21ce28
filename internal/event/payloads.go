package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/position"
)

// Decimal values are rendered as strings inside the maps so the payloads
// survive JSON round-trips without float precision loss.

// ThresholdCrossed records a BUY or SELL trigger classification.
type ThresholdCrossed struct {
	Side         position.Side
	Price        decimal.Decimal
	AnchorPrice  decimal.Decimal
	Threshold    decimal.Decimal
	ThresholdPct decimal.Decimal // trigger_up_pct or trigger_down_pct
	Reason       string
}

func (p ThresholdCrossed) EventType() Type { return TypeThresholdCrossed }

func (p ThresholdCrossed) Inputs() map[string]any {
	return map[string]any{
		"price":         p.Price.String(),
		"anchor_price":  p.AnchorPrice.String(),
		"threshold_pct": p.ThresholdPct.String(),
	}
}

func (p ThresholdCrossed) Outputs() map[string]any {
	return map[string]any{
		"side":      string(p.Side),
		"threshold": p.Threshold.String(),
	}
}

func (p ThresholdCrossed) Message() string { return p.Reason }

// OrderSubmitted records an intent handed to the execution collaborator.
type OrderSubmitted struct {
	EvaluationID string
	Side         position.Side
	Qty          decimal.Decimal
	RefPrice     decimal.Decimal
	Notional     decimal.Decimal
}

func (p OrderSubmitted) EventType() Type { return TypeOrderSubmitted }

func (p OrderSubmitted) Inputs() map[string]any {
	return map[string]any{
		"evaluation_id": p.EvaluationID,
		"ref_price":     p.RefPrice.String(),
	}
}

func (p OrderSubmitted) Outputs() map[string]any {
	return map[string]any{
		"side":     string(p.Side),
		"qty":      p.Qty.String(),
		"notional": p.Notional.String(),
	}
}

func (p OrderSubmitted) Message() string {
	return fmt.Sprintf("%s %s @ $%s submitted (notional $%s)",
		p.Side, p.Qty.String(), p.RefPrice.StringFixed(2), p.Notional.StringFixed(2))
}

// OrderTrimmedGuardrail records a raw order clamped to an allocation bound.
type OrderTrimmedGuardrail struct {
	Side         position.Side
	RawQty       decimal.Decimal
	TrimmedQty   decimal.Decimal
	Bound        string // "min" or "max"
	BoundPct     decimal.Decimal
	ProjectedPct decimal.Decimal // allocation the raw order would have produced
}

func (p OrderTrimmedGuardrail) EventType() Type { return TypeOrderTrimmedGuardrail }

func (p OrderTrimmedGuardrail) Inputs() map[string]any {
	return map[string]any{
		"side":          string(p.Side),
		"raw_qty":       p.RawQty.String(),
		"projected_pct": p.ProjectedPct.String(),
	}
}

func (p OrderTrimmedGuardrail) Outputs() map[string]any {
	return map[string]any{
		"trimmed_qty": p.TrimmedQty.String(),
		"bound":       p.Bound,
		"bound_pct":   p.BoundPct.String(),
	}
}

func (p OrderTrimmedGuardrail) Message() string {
	return fmt.Sprintf("%s trimmed %s → %s: projected allocation %s%% breaches %s bound %s%%",
		p.Side, p.RawQty.String(), p.TrimmedQty.String(),
		p.ProjectedPct.Mul(decimal.NewFromInt(100)).StringFixed(2),
		p.Bound,
		p.BoundPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
}

// OrderRejectedMin records a proposal below the minimum notional.
type OrderRejectedMin struct {
	Side        position.Side
	Qty         decimal.Decimal
	Price       decimal.Decimal
	Notional    decimal.Decimal
	MinNotional decimal.Decimal
}

func (p OrderRejectedMin) EventType() Type { return TypeOrderRejectedMin }

func (p OrderRejectedMin) Inputs() map[string]any {
	return map[string]any{
		"side":  string(p.Side),
		"qty":   p.Qty.String(),
		"price": p.Price.String(),
	}
}

func (p OrderRejectedMin) Outputs() map[string]any {
	return map[string]any{
		"notional":     p.Notional.String(),
		"min_notional": p.MinNotional.String(),
	}
}

func (p OrderRejectedMin) Message() string {
	return fmt.Sprintf("%s rejected: notional $%s below minimum $%s",
		p.Side, p.Notional.StringFixed(2), p.MinNotional.StringFixed(2))
}

// OrderRejected records any validator rejection other than min-notional.
type OrderRejected struct {
	Side   position.Side
	Qty    decimal.Decimal
	Reason string // insufficient_funds, insufficient_shares, market_closed, duplicate, daily_cap
	Detail string
}

func (p OrderRejected) EventType() Type { return TypeOrderRejected }

func (p OrderRejected) Inputs() map[string]any {
	return map[string]any{
		"side": string(p.Side),
		"qty":  p.Qty.String(),
	}
}

func (p OrderRejected) Outputs() map[string]any {
	return map[string]any{"reason": p.Reason}
}

func (p OrderRejected) Message() string {
	return fmt.Sprintf("%s rejected (%s): %s", p.Side, p.Reason, p.Detail)
}

// OrderCancelled records a submitted order the execution collaborator
// could not fill.
type OrderCancelled struct {
	Side   position.Side
	Qty    decimal.Decimal
	Reason string
}

func (p OrderCancelled) EventType() Type { return TypeOrderCancelled }

func (p OrderCancelled) Inputs() map[string]any {
	return map[string]any{
		"side": string(p.Side),
		"qty":  p.Qty.String(),
	}
}

func (p OrderCancelled) Outputs() map[string]any {
	return map[string]any{"reason": p.Reason}
}

func (p OrderCancelled) Message() string {
	return fmt.Sprintf("%s %s cancelled: %s", p.Side, p.Qty.String(), p.Reason)
}

// OrderFilled records an executed trade and the resulting balances.
type OrderFilled struct {
	TradeID    string
	Side       position.Side
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	CashAfter  decimal.Decimal
	QtyAfter   decimal.Decimal
}

func (p OrderFilled) EventType() Type { return TypeOrderFilled }

func (p OrderFilled) Inputs() map[string]any {
	return map[string]any{
		"trade_id": p.TradeID,
		"side":     string(p.Side),
		"qty":      p.Qty.String(),
		"price":    p.Price.String(),
	}
}

func (p OrderFilled) Outputs() map[string]any {
	return map[string]any{
		"commission": p.Commission.String(),
		"cash_after": p.CashAfter.String(),
		"qty_after":  p.QtyAfter.String(),
	}
}

func (p OrderFilled) Message() string {
	return fmt.Sprintf("%s %s filled @ $%s, commission $%s",
		p.Side, p.Qty.String(), p.Price.StringFixed(2), p.Commission.StringFixed(2))
}

// AnchorUpdated records the anchor reset that follows every fill.
type AnchorUpdated struct {
	TradeID   string
	OldAnchor decimal.Decimal
	NewAnchor decimal.Decimal
}

func (p AnchorUpdated) EventType() Type { return TypeAnchorUpdated }

func (p AnchorUpdated) Inputs() map[string]any {
	return map[string]any{
		"trade_id":   p.TradeID,
		"old_anchor": p.OldAnchor.String(),
	}
}

func (p AnchorUpdated) Outputs() map[string]any {
	return map[string]any{"new_anchor": p.NewAnchor.String()}
}

func (p AnchorUpdated) Message() string {
	return fmt.Sprintf("anchor $%s → $%s after fill",
		p.OldAnchor.StringFixed(2), p.NewAnchor.StringFixed(2))
}

// AutoGuardrailRebalance records a drift-correction order proposed with no
// threshold crossing.
type AutoGuardrailRebalance struct {
	Side       position.Side
	Qty        decimal.Decimal
	CurrentPct decimal.Decimal
	Bound      string
	BoundPct   decimal.Decimal
}

func (p AutoGuardrailRebalance) EventType() Type { return TypeAutoGuardrailRebalance }

func (p AutoGuardrailRebalance) Inputs() map[string]any {
	return map[string]any{
		"current_pct": p.CurrentPct.String(),
		"bound":       p.Bound,
		"bound_pct":   p.BoundPct.String(),
	}
}

func (p AutoGuardrailRebalance) Outputs() map[string]any {
	return map[string]any{
		"side": string(p.Side),
		"qty":  p.Qty.String(),
	}
}

func (p AutoGuardrailRebalance) Message() string {
	return fmt.Sprintf("allocation %s%% outside %s bound %s%%: auto %s %s",
		p.CurrentPct.Mul(decimal.NewFromInt(100)).StringFixed(2),
		p.Bound,
		p.BoundPct.Mul(decimal.NewFromInt(100)).StringFixed(2),
		p.Side, p.Qty.String())
}

// ExDivAnnounced records a dividend declaration.
type ExDivAnnounced struct {
	DPS            decimal.Decimal
	ExDate         time.Time
	PayDate        time.Time
	SharesAtRecord decimal.Decimal
	Gross          decimal.Decimal
	Net            decimal.Decimal
}

func (p ExDivAnnounced) EventType() Type { return TypeExDivAnnounced }

func (p ExDivAnnounced) Inputs() map[string]any {
	return map[string]any{
		"dps":              p.DPS.String(),
		"ex_date":          p.ExDate.Format(time.RFC3339),
		"pay_date":         p.PayDate.Format(time.RFC3339),
		"shares_at_record": p.SharesAtRecord.String(),
	}
}

func (p ExDivAnnounced) Outputs() map[string]any {
	return map[string]any{
		"gross_amount": p.Gross.String(),
		"net_amount":   p.Net.String(),
	}
}

func (p ExDivAnnounced) Message() string {
	return fmt.Sprintf("dividend $%s/share announced, ex %s pay %s",
		p.DPS.String(), p.ExDate.Format("2006-01-02"), p.PayDate.Format("2006-01-02"))
}

// ExDivEffective records the receivable created on ex-date.
type ExDivEffective struct {
	DPS            decimal.Decimal
	SharesAtRecord decimal.Decimal
	Gross          decimal.Decimal
	Net            decimal.Decimal
}

func (p ExDivEffective) EventType() Type { return TypeExDivEffective }

func (p ExDivEffective) Inputs() map[string]any {
	return map[string]any{
		"dps":              p.DPS.String(),
		"shares_at_record": p.SharesAtRecord.String(),
	}
}

func (p ExDivEffective) Outputs() map[string]any {
	return map[string]any{
		"gross_amount": p.Gross.String(),
		"net_amount":   p.Net.String(),
	}
}

func (p ExDivEffective) Message() string {
	return fmt.Sprintf("receivable effective: gross $%s, net $%s",
		p.Gross.StringFixed(2), p.Net.StringFixed(2))
}

// AnchorAdjustedForDividend records the ex-date anchor shift.
type AnchorAdjustedForDividend struct {
	DPS       decimal.Decimal
	OldAnchor decimal.Decimal
	NewAnchor decimal.Decimal
}

func (p AnchorAdjustedForDividend) EventType() Type { return TypeAnchorAdjustedForDividend }

func (p AnchorAdjustedForDividend) Inputs() map[string]any {
	return map[string]any{
		"dps":        p.DPS.String(),
		"old_anchor": p.OldAnchor.String(),
	}
}

func (p AnchorAdjustedForDividend) Outputs() map[string]any {
	return map[string]any{"new_anchor": p.NewAnchor.String()}
}

func (p AnchorAdjustedForDividend) Message() string {
	return fmt.Sprintf("anchor $%s → $%s (ex-dividend $%s)",
		p.OldAnchor.StringFixed(2), p.NewAnchor.StringFixed(2), p.DPS.String())
}

// DividendCashReceived records the pay-date cash credit.
type DividendCashReceived struct {
	Net       decimal.Decimal
	CashAfter decimal.Decimal
}

func (p DividendCashReceived) EventType() Type { return TypeDividendCashReceived }

func (p DividendCashReceived) Inputs() map[string]any {
	return map[string]any{"net_amount": p.Net.String()}
}

func (p DividendCashReceived) Outputs() map[string]any {
	return map[string]any{"cash_after": p.CashAfter.String()}
}

func (p DividendCashReceived) Message() string {
	return fmt.Sprintf("dividend $%s credited, cash now $%s",
		p.Net.StringFixed(2), p.CashAfter.StringFixed(2))
}

// PriceSourceSkipped records a tick discarded as stale or outlier. The cycle
// ends with no evaluation rather than an error.
type PriceSourceSkipped struct {
	Price  decimal.Decimal
	Reason string
}

func (p PriceSourceSkipped) EventType() Type { return TypePriceSourceSkipped }

func (p PriceSourceSkipped) Inputs() map[string]any {
	return map[string]any{"price": p.Price.String()}
}

func (p PriceSourceSkipped) Outputs() map[string]any {
	return map[string]any{"reason": p.Reason}
}

func (p PriceSourceSkipped) Message() string {
	return fmt.Sprintf("tick $%s skipped: %s", p.Price.String(), p.Reason)
}
