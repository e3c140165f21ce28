package engine

import (
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/position"
)

// moneyPrecision is the cash rounding applied at cash-movement time.
const moneyPrecision = 2

// FillResult captures the balance transition of one applied fill.
type FillResult struct {
	CashBefore   decimal.Decimal
	CashAfter    decimal.Decimal
	QtyBefore    decimal.Decimal
	QtyAfter     decimal.Decimal
	AnchorBefore decimal.Decimal
	AnchorAfter  decimal.Decimal
	Commission   decimal.Decimal
}

// Commission computes the fee for a trade notional at the cell's rate,
// rounded to cents.
func Commission(cell *position.Cell, notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(cell.Config.CommissionRate).Round(moneyPrecision)
}

// ApplyFill updates cash and shares for an executed trade and resets the
// anchor to the execution price. A computed-negative balance here is an
// invariant violation: the validator must have prevented it, so this is a
// defect, not a user-facing rejection.
func ApplyFill(cell *position.Cell, t Trade) (FillResult, error) {
	res := FillResult{
		CashBefore:   cell.Cash,
		QtyBefore:    cell.Qty,
		AnchorBefore: cell.AnchorPrice,
		Commission:   t.Commission,
	}

	notional := t.Notional().Round(moneyPrecision)
	var cashAfter, qtyAfter decimal.Decimal
	switch t.Side {
	case position.SideBuy:
		cashAfter = cell.Cash.Sub(notional).Sub(t.Commission)
		qtyAfter = cell.Qty.Add(t.Qty)
	case position.SideSell:
		cashAfter = cell.Cash.Add(notional).Sub(t.Commission)
		qtyAfter = cell.Qty.Sub(t.Qty)
	default:
		return res, invalidState(cell.ID, "trade", "fill with side %s", t.Side)
	}

	if cashAfter.IsNegative() {
		return res, invalidState(cell.ID, "cash",
			"fill would drive cash negative: %s", cashAfter)
	}
	if qtyAfter.IsNegative() {
		return res, invalidState(cell.ID, "qty",
			"fill would drive qty negative: %s", qtyAfter)
	}

	cell.Cash = cashAfter
	cell.Qty = qtyAfter
	cell.AnchorPrice = t.Price

	res.CashAfter = cashAfter
	res.QtyAfter = qtyAfter
	res.AnchorAfter = t.Price
	return res, nil
}
