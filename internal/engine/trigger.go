package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/position"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// TriggerDecision is the trigger evaluator's classification of one price
// against the anchor.
type TriggerDecision struct {
	Side          position.Side
	Price         decimal.Decimal
	AnchorPrice   decimal.Decimal
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
	// Threshold and ThresholdPct describe the crossed side; zero for NONE.
	Threshold    decimal.Decimal
	ThresholdPct decimal.Decimal
	Reason       string
}

// EvaluateTrigger compares price against anchor ± threshold. Ties at
// exactly the threshold count as triggered. A non-positive anchor is
// corrupted state, not a classifiable input.
func EvaluateTrigger(cell *position.Cell, price decimal.Decimal) (TriggerDecision, error) {
	if !cell.AnchorSet() {
		return TriggerDecision{}, invalidState(cell.ID, "anchor_price",
			"anchor price %s must be positive before evaluation", cell.AnchorPrice)
	}
	if !price.IsPositive() {
		return TriggerDecision{}, invalidState(cell.ID, "price",
			"price %s must be positive", price)
	}

	anchor := cell.AnchorPrice
	up := cell.Config.TriggerUpPct
	down := cell.Config.TriggerDownPct
	sellThr := anchor.Mul(one.Add(up))
	buyThr := anchor.Mul(one.Sub(down))

	d := TriggerDecision{
		Price:         price,
		AnchorPrice:   anchor,
		BuyThreshold:  buyThr,
		SellThreshold: sellThr,
	}

	switch {
	case price.GreaterThanOrEqual(sellThr):
		d.Side = position.SideSell
		d.Threshold = sellThr
		d.ThresholdPct = up
		d.Reason = fmt.Sprintf("Price $%s ≥ sell threshold $%s ($%s × %s%%)",
			price.StringFixed(2), sellThr.StringFixed(2), anchor.StringFixed(2),
			one.Add(up).Mul(hundred).StringFixed(1))
	case price.LessThanOrEqual(buyThr):
		d.Side = position.SideBuy
		d.Threshold = buyThr
		d.ThresholdPct = down
		d.Reason = fmt.Sprintf("Price $%s ≤ buy threshold $%s ($%s × %s%%)",
			price.StringFixed(2), buyThr.StringFixed(2), anchor.StringFixed(2),
			one.Sub(down).Mul(hundred).StringFixed(1))
	default:
		d.Side = position.SideNone
		d.Reason = fmt.Sprintf("Price $%s within [$%s, $%s]",
			price.StringFixed(2), buyThr.StringFixed(2), sellThr.StringFixed(2))
	}
	return d, nil
}
