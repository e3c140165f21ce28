package engine

import (
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/position"
)

// qtyPrecision is the share rounding applied to every computed quantity.
const qtyPrecision = 8

// SizeOrder computes the raw desired change in shares for a triggered side:
//
//	ΔQ_raw = (anchor / P) * rebalance_ratio * ((cash_effective + qty*P) / P)
//
// The result is signed: negative on SELL, positive on BUY. The farther price
// has moved from the anchor and the larger the rebalance ratio, the larger
// the proposed trade.
func SizeOrder(cell *position.Cell, price, effectiveCash decimal.Decimal, side position.Side) decimal.Decimal {
	if side == position.SideNone {
		return decimal.Zero
	}
	total := effectiveCash.Add(cell.Qty.Mul(price))
	raw := cell.AnchorPrice.Div(price).
		Mul(cell.Config.RebalanceRatio).
		Mul(total.Div(price)).
		Round(qtyPrecision)
	return raw.Mul(side.Sign())
}
