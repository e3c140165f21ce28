package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/position"
)

func TestCommissionRoundsToCents(t *testing.T) {
	cell := newCell("p1", "10000", "100", "150")

	got := engine.Commission(cell, dec("5224.37"))
	assert.True(t, got.Equal(dec("5.22")), "got %s", got)

	got = engine.Commission(cell, dec("5555"))
	assert.True(t, got.Equal(dec("5.56")), "got %s", got)
}

func TestApplyFillBuy(t *testing.T) {
	cell := newCell("p1", "10000", "100", "150")
	trade := engine.Trade{
		PositionID: "p1",
		Side:       position.SideBuy,
		Qty:        dec("50"),
		Price:      dec("100"),
		Commission: dec("5"),
	}

	res, err := engine.ApplyFill(cell, trade)
	require.NoError(t, err)

	assert.True(t, cell.Cash.Equal(dec("4995")), "cash = 10000 - 5000 - 5, got %s", cell.Cash)
	assert.True(t, cell.Qty.Equal(dec("150")))
	assert.True(t, cell.AnchorPrice.Equal(dec("100")), "anchor resets to execution price")

	assert.True(t, res.CashBefore.Equal(dec("10000")))
	assert.True(t, res.CashAfter.Equal(dec("4995")))
	assert.True(t, res.AnchorBefore.Equal(dec("150")))
	assert.True(t, res.AnchorAfter.Equal(dec("100")))
}

func TestApplyFillSell(t *testing.T) {
	cell := newCell("p1", "10000", "100", "150")
	trade := engine.Trade{
		PositionID: "p1",
		Side:       position.SideSell,
		Qty:        dec("50"),
		Price:      dec("100"),
		Commission: dec("5"),
	}

	_, err := engine.ApplyFill(cell, trade)
	require.NoError(t, err)
	assert.True(t, cell.Cash.Equal(dec("14995")), "cash = 10000 + 5000 - 5, got %s", cell.Cash)
	assert.True(t, cell.Qty.Equal(dec("50")))
}

func TestApplyFillRejectsNegativeBalances(t *testing.T) {
	cell := newCell("p1", "10000", "100", "150")
	over := engine.Trade{Side: position.SideBuy, Qty: dec("200"), Price: dec("100")}
	_, err := engine.ApplyFill(cell, over)
	var ise *engine.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "cash", ise.Field)
	// State untouched on failure.
	assert.True(t, cell.Cash.Equal(dec("10000")))
	assert.True(t, cell.Qty.Equal(dec("100")))

	short := engine.Trade{Side: position.SideSell, Qty: dec("200"), Price: dec("1")}
	_, err = engine.ApplyFill(cell, short)
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "qty", ise.Field)
}

func TestApplyFillRejectsSidelessTrade(t *testing.T) {
	cell := newCell("p1", "10000", "100", "150")
	_, err := engine.ApplyFill(cell, engine.Trade{Side: position.SideNone, Qty: dec("1"), Price: dec("1")})
	require.Error(t, err)
}
