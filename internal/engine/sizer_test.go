package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/position"
)

func TestSizeOrderAtAnchor(t *testing.T) {
	// anchor == price: ΔQ = ratio * total / price.
	cell := newCell("p1", "5000", "50", "100")

	buy := engine.SizeOrder(cell, dec("100"), cell.Cash, position.SideBuy)
	assert.True(t, buy.Equal(dec("50")), "got %s", buy)

	sell := engine.SizeOrder(cell, dec("100"), cell.Cash, position.SideSell)
	assert.True(t, sell.Equal(dec("-50")), "got %s", sell)
}

func TestSizeOrderScalesWithAnchorDistance(t *testing.T) {
	cell := newCell("p1", "4000", "10", "120")

	// total = 4000 + 10*100 = 5000; (120/100) * 0.5 * (5000/100) = 30.
	got := engine.SizeOrder(cell, dec("100"), cell.Cash, position.SideBuy)
	assert.True(t, got.Equal(dec("30")), "got %s", got)

	// The farther the price falls below the anchor, the larger the buy.
	nearer := engine.SizeOrder(cell, dec("110"), cell.Cash, position.SideBuy)
	assert.True(t, got.GreaterThan(nearer))
}

func TestSizeOrderUsesEffectiveCash(t *testing.T) {
	cell := newCell("p1", "5000", "50", "100")

	base := engine.SizeOrder(cell, dec("100"), dec("5000"), position.SideBuy)
	boosted := engine.SizeOrder(cell, dec("100"), dec("6000"), position.SideBuy)
	assert.True(t, boosted.GreaterThan(base))
}

func TestSizeOrderScalesWithRatio(t *testing.T) {
	cell := newCell("p1", "5000", "50", "100")
	cell.Config.RebalanceRatio = dec("1")

	got := engine.SizeOrder(cell, dec("100"), cell.Cash, position.SideBuy)
	assert.True(t, got.Equal(dec("100")), "got %s", got)
}

func TestSizeOrderNoneIsZero(t *testing.T) {
	cell := newCell("p1", "5000", "50", "100")
	got := engine.SizeOrder(cell, dec("100"), cell.Cash, position.SideNone)
	assert.True(t, got.IsZero())
}
