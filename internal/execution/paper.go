// Package execution provides the execution collaborator side of the
// engine: a deterministic paper executor for tests and replay runs, and a
// guarded wrapper adding a circuit breaker and submission rate limiting for
// real brokers.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/position"
)

var one = decimal.NewFromInt(1)

// Paper fills every intent at the reference price shifted by a configurable
// slippage fraction (adverse: buys fill higher, sells lower).
type Paper struct {
	SlippagePct decimal.Decimal
	Now         func() time.Time
}

// NewPaper creates a paper executor. slippagePct may be zero.
func NewPaper(slippagePct decimal.Decimal) *Paper {
	return &Paper{SlippagePct: slippagePct, Now: time.Now}
}

// Execute fills the intent immediately.
func (p *Paper) Execute(_ context.Context, intent engine.OrderIntent) (*engine.Fill, error) {
	price := intent.TriggerPrice
	if p.SlippagePct.IsPositive() {
		switch intent.Side {
		case position.SideBuy:
			price = price.Mul(one.Add(p.SlippagePct))
		case position.SideSell:
			price = price.Mul(one.Sub(p.SlippagePct))
		}
	}
	return &engine.Fill{
		OrderID:    uuid.NewString(),
		Qty:        intent.Qty(),
		Price:      price.Round(4),
		ExecutedAt: p.Now().UTC(),
	}, nil
}
