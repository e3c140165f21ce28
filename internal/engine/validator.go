package engine

import (
	"context"
	"fmt"

	"github.com/tradecell/tradecell/internal/position"
)

// Validation is the order validator's verdict. Rejections are logged and
// skipped, never fatal; the evaluation completes normally.
type Validation struct {
	OK     bool
	Reason RejectReason
	Detail string
}

func rejected(reason RejectReason, format string, args ...any) Validation {
	return Validation{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// validateIntent runs the rejection checks in a fixed order: market hours,
// daily cap, min notional, affordability. The idempotency check runs at the
// top of Evaluate, before any event is emitted, so replays stay silent.
func (e *Engine) validateIntent(ctx context.Context, cell *position.Cell, intent OrderIntent, req EvalRequest) (Validation, error) {
	if !req.MarketOpen && !cell.Config.AllowAfterHours {
		return rejected(RejectMarketClosed, "market closed and after-hours trading disabled"), nil
	}

	day := e.calendar.TradingDay(req.Timestamp)
	count, err := e.counter.CountToday(ctx, cell.ID, day)
	if err != nil {
		return Validation{}, fmt.Errorf("count orders for day %s: %w", day, err)
	}
	if count >= cell.Config.MaxOrdersPerDay {
		return rejected(RejectDailyCap, "%d orders already executed today (cap %d)",
			count, cell.Config.MaxOrdersPerDay), nil
	}

	notional := intent.Notional()
	if notional.LessThan(cell.Config.MinNotional) {
		return rejected(RejectMinNotional, "notional $%s below minimum $%s",
			notional.StringFixed(2), cell.Config.MinNotional.StringFixed(2)), nil
	}

	switch intent.Side {
	case position.SideBuy:
		// Price the order at reference × (1 + slippage buffer) so an adverse
		// fill within the buffer still clears. Affordability runs against
		// settled cash only; a receivable is not spendable before its pay date.
		buffered := notional.Mul(one.Add(e.slipBuffer))
		cost := buffered.Add(buffered.Mul(cell.Config.CommissionRate))
		if cost.GreaterThan(cell.Cash) {
			return rejected(RejectInsufficientFunds, "cost $%s exceeds settled cash $%s",
				cost.StringFixed(2), cell.Cash.StringFixed(2)), nil
		}
	case position.SideSell:
		if intent.Qty().GreaterThan(cell.Qty) {
			return rejected(RejectInsufficientShares, "sell qty %s exceeds held qty %s",
				intent.Qty(), cell.Qty), nil
		}
	}

	return Validation{OK: true}, nil
}

func idempotencyKey(positionID, evaluationID string) string {
	return positionID + ":" + evaluationID
}
