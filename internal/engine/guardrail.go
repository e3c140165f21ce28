package engine

import (
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/position"
)

// GuardrailResult describes how a raw order was reconciled against the
// allocation bounds.
type GuardrailResult struct {
	RawQty       decimal.Decimal // signed
	FinalQty     decimal.Decimal // signed; equals RawQty when untrimmed
	Trimmed      bool
	Bound        string // "min" or "max" when trimmed
	BoundPct     decimal.Decimal
	ProjectedPct decimal.Decimal // allocation the raw order would produce
	PostPct      decimal.Decimal // allocation the final order produces
}

// RebalanceProposal is a drift-correction order proposed with no trigger:
// the current allocation already sits outside the bounds and the proposal
// trades exactly enough to reach the nearest one.
type RebalanceProposal struct {
	Side       position.Side
	Qty        decimal.Decimal // signed
	CurrentPct decimal.Decimal
	Bound      string
	BoundPct   decimal.Decimal
}

// CurrentAllocation returns the no-trade stock percentage of total value.
func CurrentAllocation(cell *position.Cell, price, effectiveCash decimal.Decimal) (decimal.Decimal, error) {
	stock := cell.Qty.Mul(price)
	total := stock.Add(effectiveCash)
	if !total.IsPositive() {
		return decimal.Zero, invalidState(cell.ID, "guardrail",
			"total value %s is not positive; allocation undefined", total)
	}
	return stock.Div(total), nil
}

// ProjectedAllocation computes the post-trade stock percentage for a signed
// quantity change, commission included.
func ProjectedAllocation(cell *position.Cell, price, effectiveCash, dq decimal.Decimal) (decimal.Decimal, error) {
	qtyAfter := cell.Qty.Add(dq)
	notional := dq.Abs().Mul(price)
	commission := notional.Mul(cell.Config.CommissionRate)
	cashAfter := effectiveCash.Sub(dq.Mul(price)).Sub(commission)

	stock := qtyAfter.Mul(price)
	total := stock.Add(cashAfter)
	if !total.IsPositive() {
		return decimal.Zero, invalidState(cell.ID, "guardrail",
			"post-trade total value %s is not positive", total)
	}
	return stock.Div(total), nil
}

// solveBoundQty returns the signed quantity that lands the allocation
// exactly on bound b, accounting for commission:
//
//	ΔQ = (b*(qty*P + C0) − qty*P) / (P * (1 + s·b·rate))
//
// with s = +1 for BUY, −1 for SELL.
func solveBoundQty(cell *position.Cell, price, effectiveCash, b decimal.Decimal, side position.Side) (decimal.Decimal, error) {
	stock := cell.Qty.Mul(price)
	num := b.Mul(stock.Add(effectiveCash)).Sub(stock)
	den := price.Mul(one.Add(side.Sign().Mul(b).Mul(cell.Config.CommissionRate)))
	if !den.IsPositive() {
		return decimal.Zero, invalidState(cell.ID, "guardrail",
			"degenerate boundary equation at price %s", price)
	}
	return num.Div(den).Round(qtyPrecision), nil
}

// EnforceGuardrails clamps a raw signed order so the post-trade allocation
// stays within [min_stock_pct, max_stock_pct]. When the raw order breaches
// a bound, the final quantity lands exactly on the breached boundary. A
// trim that would have to flip the order's direction collapses to zero (the
// validator then rejects it below min notional).
func EnforceGuardrails(cell *position.Cell, price, effectiveCash, rawQty decimal.Decimal) (GuardrailResult, error) {
	if !price.IsPositive() {
		return GuardrailResult{}, invalidState(cell.ID, "guardrail",
			"price %s is not positive; both bounds violated", price)
	}

	proj, err := ProjectedAllocation(cell, price, effectiveCash, rawQty)
	if err != nil {
		return GuardrailResult{}, err
	}

	res := GuardrailResult{
		RawQty:       rawQty,
		FinalQty:     rawQty,
		ProjectedPct: proj,
		PostPct:      proj,
	}

	minPct := cell.Config.MinStockPct
	maxPct := cell.Config.MaxStockPct
	if proj.GreaterThanOrEqual(minPct) && proj.LessThanOrEqual(maxPct) {
		return res, nil
	}

	bound, boundPct := "min", minPct
	if proj.GreaterThan(maxPct) {
		bound, boundPct = "max", maxPct
	}

	side := position.SideBuy
	if rawQty.IsNegative() {
		side = position.SideSell
	}
	trimmed, err := solveBoundQty(cell, price, effectiveCash, boundPct, side)
	if err != nil {
		return GuardrailResult{}, err
	}
	if trimmed.Mul(rawQty).Sign() <= 0 {
		trimmed = decimal.Zero
	}

	post := boundPct
	if trimmed.IsZero() {
		if post, err = ProjectedAllocation(cell, price, effectiveCash, decimal.Zero); err != nil {
			return GuardrailResult{}, err
		}
	}

	res.FinalQty = trimmed
	res.Trimmed = true
	res.Bound = bound
	res.BoundPct = boundPct
	res.PostPct = post
	return res, nil
}

// CheckDriftRebalance proposes an order when the current allocation already
// sits outside the bounds with no threshold crossing, trading exactly
// enough to reach the nearest bound. Returns nil when in band or when the
// correction rounds away to nothing.
func CheckDriftRebalance(cell *position.Cell, price, effectiveCash decimal.Decimal) (*RebalanceProposal, error) {
	current, err := CurrentAllocation(cell, price, effectiveCash)
	if err != nil {
		return nil, err
	}

	var side position.Side
	var bound string
	var boundPct decimal.Decimal
	switch {
	case current.GreaterThan(cell.Config.MaxStockPct):
		side, bound, boundPct = position.SideSell, "max", cell.Config.MaxStockPct
	case current.LessThan(cell.Config.MinStockPct):
		side, bound, boundPct = position.SideBuy, "min", cell.Config.MinStockPct
	default:
		return nil, nil
	}

	dq, err := solveBoundQty(cell, price, effectiveCash, boundPct, side)
	if err != nil {
		return nil, err
	}
	if dq.IsZero() || dq.Mul(side.Sign()).Sign() < 0 {
		return nil, nil
	}

	return &RebalanceProposal{
		Side:       side,
		Qty:        dq,
		CurrentPct: current,
		Bound:      bound,
		BoundPct:   boundPct,
	}, nil
}
