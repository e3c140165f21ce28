package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCellValidate(t *testing.T) {
	cell := NewCell("p1", "ACME", dec("10000"), dec("100"))
	require.NoError(t, cell.Validate())
	assert.False(t, cell.AnchorSet(), "anchor unset until first fill or explicit set")

	cell.AnchorPrice = dec("150")
	require.NoError(t, cell.Validate())
	assert.True(t, cell.AnchorSet())

	cell.Qty = dec("-1")
	require.Error(t, cell.Validate())
	cell.Qty = dec("100")

	cell.Cash = dec("-0.01")
	require.Error(t, cell.Validate())
	cell.Cash = dec("10000")

	cell.AnchorPrice = dec("-1")
	require.Error(t, cell.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.MinStockPct = dec("0.8")
	require.Error(t, bad.Validate(), "floor above cap")

	bad = cfg
	bad.MaxStockPct = dec("1.5")
	require.Error(t, bad.Validate())

	bad = cfg
	bad.TriggerDownPct = dec("-0.01")
	require.Error(t, bad.Validate())

	bad = cfg
	bad.MaxOrdersPerDay = 0
	require.Error(t, bad.Validate())
}

func TestSideSign(t *testing.T) {
	assert.True(t, SideBuy.Sign().Equal(dec("1")))
	assert.True(t, SideSell.Sign().Equal(dec("-1")))
	assert.True(t, SideNone.Sign().IsZero())
}

func TestEffectiveCash(t *testing.T) {
	cell := NewCell("p1", "ACME", dec("10000"), dec("100"))

	assert.True(t, cell.EffectiveCash(nil).Equal(dec("10000")))

	announced := &DividendReceivable{State: ReceivableAnnounced, Net: dec("69.70")}
	assert.True(t, cell.EffectiveCash(announced).Equal(dec("10000")),
		"announced dividends do not participate yet")

	effective := &DividendReceivable{State: ReceivableEffective, Net: dec("69.70")}
	assert.True(t, cell.EffectiveCash(effective).Equal(dec("10069.70")))

	cleared := &DividendReceivable{State: ReceivableEffective, Net: dec("69.70"), Cleared: true}
	assert.True(t, cell.EffectiveCash(cleared).Equal(dec("10000")))
}

func TestReceivableOpen(t *testing.T) {
	var r *DividendReceivable
	assert.False(t, r.Open())

	r = &DividendReceivable{State: ReceivableAnnounced}
	assert.True(t, r.Open())

	r.Cleared = true
	assert.False(t, r.Open())
}
