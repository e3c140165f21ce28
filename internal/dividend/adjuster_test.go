package dividend

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/persistence"
	"github.com/tradecell/tradecell/internal/position"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	exDate  = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payDate = time.Date(2026, 3, 24, 0, 0, 0, 0, time.UTC)
)

func setup(t *testing.T) (*persistence.Memory, *Adjuster) {
	t.Helper()
	store := persistence.NewMemory()
	cell := position.NewCell("p1", "ACME", dec("10000"), dec("100"))
	cell.AnchorPrice = dec("150.00")
	require.NoError(t, store.SavePosition(context.Background(), cell))
	return store, New(store, engine.NewLocks(), nil)
}

func TestDividendLifecycle(t *testing.T) {
	store, adj := setup(t)
	ctx := context.Background()

	// Announce: $0.82/share on 100 shares, 15% withholding.
	res, err := adj.Announce(ctx, "p1", dec("0.82"), exDate, payDate, decimal.Zero)
	require.NoError(t, err)
	r := res.Receivable
	assert.Equal(t, position.ReceivableAnnounced, r.State)
	assert.True(t, r.SharesAtRecord.Equal(dec("100")), "defaults to current qty")
	assert.True(t, r.Gross.Equal(dec("82.00")), "got %s", r.Gross)
	assert.True(t, r.Net.Equal(dec("69.70")), "got %s", r.Net)
	require.Len(t, res.Events, 1)
	assert.Equal(t, event.TypeExDivAnnounced, res.Events[0].Type)

	// Announced but not yet effective: valuation unchanged.
	cell, err := store.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, cell.EffectiveCash(r).Equal(dec("10000")))

	// Ex-date: anchor 150.00 -> 149.18, receivable becomes effective.
	res, err = adj.ApplyExDate(ctx, "p1")
	require.NoError(t, err)
	r = res.Receivable
	assert.Equal(t, position.ReceivableEffective, r.State)
	cell, err = store.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, cell.AnchorPrice.Equal(dec("149.18")), "got %s", cell.AnchorPrice)
	assert.True(t, cell.EffectiveCash(r).Equal(dec("10069.70")), "net participates in valuation")
	assert.True(t, cell.Cash.Equal(dec("10000")), "settled cash untouched at ex-date")
	assert.Equal(t, []event.Type{
		event.TypeAnchorAdjustedForDividend,
		event.TypeExDivEffective,
	}, []event.Type{res.Events[0].Type, res.Events[1].Type})

	// Pay-date: cash credited once, receivable cleared.
	res, err = adj.ApplyPayDate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, position.ReceivablePaid, res.Receivable.State)
	assert.True(t, res.Receivable.Cleared)
	cell, err = store.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, cell.Cash.Equal(dec("10069.70")), "got %s", cell.Cash)

	open, err := store.GetOpenReceivable(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, open)

	// A fresh announcement is allowed once the prior one cleared.
	_, err = adj.Announce(ctx, "p1", dec("0.90"), exDate.AddDate(0, 3, 0), payDate.AddDate(0, 3, 0), decimal.Zero)
	require.NoError(t, err)
}

func TestAnnounceRejectsSecondOpenReceivable(t *testing.T) {
	_, adj := setup(t)
	ctx := context.Background()

	_, err := adj.Announce(ctx, "p1", dec("0.82"), exDate, payDate, decimal.Zero)
	require.NoError(t, err)

	_, err = adj.Announce(ctx, "p1", dec("0.50"), exDate, payDate, decimal.Zero)
	require.ErrorIs(t, err, ErrReceivableOpen)
}

func TestAnnounceValidation(t *testing.T) {
	_, adj := setup(t)
	ctx := context.Background()

	_, err := adj.Announce(ctx, "p1", decimal.Zero, exDate, payDate, decimal.Zero)
	require.Error(t, err)

	_, err = adj.Announce(ctx, "p1", dec("-0.5"), exDate, payDate, decimal.Zero)
	require.Error(t, err)

	_, err = adj.Announce(ctx, "p1", dec("0.82"), payDate, exDate, decimal.Zero)
	require.Error(t, err)
}

func TestAnnounceExplicitShares(t *testing.T) {
	_, adj := setup(t)

	res, err := adj.Announce(context.Background(), "p1", dec("0.82"), exDate, payDate, dec("40"))
	require.NoError(t, err)
	assert.True(t, res.Receivable.Gross.Equal(dec("32.80")), "got %s", res.Receivable.Gross)
	assert.True(t, res.Receivable.Net.Equal(dec("27.88")), "got %s", res.Receivable.Net)
}

func TestTransitionsRequirePriorState(t *testing.T) {
	_, adj := setup(t)
	ctx := context.Background()

	_, err := adj.ApplyExDate(ctx, "p1")
	require.ErrorIs(t, err, ErrNoTransition)

	_, err = adj.ApplyPayDate(ctx, "p1")
	require.ErrorIs(t, err, ErrNoTransition)

	_, err = adj.Announce(ctx, "p1", dec("0.82"), exDate, payDate, decimal.Zero)
	require.NoError(t, err)

	// Pay-date cannot run before ex-date.
	_, err = adj.ApplyPayDate(ctx, "p1")
	require.ErrorIs(t, err, ErrNoTransition)
}

func TestExDateRejectsAnchorWipeout(t *testing.T) {
	store := persistence.NewMemory()
	cell := position.NewCell("p1", "ACME", dec("10000"), dec("100"))
	cell.AnchorPrice = dec("0.50")
	require.NoError(t, store.SavePosition(context.Background(), cell))
	adj := New(store, engine.NewLocks(), nil)

	_, err := adj.Announce(context.Background(), "p1", dec("0.82"), exDate, payDate, decimal.Zero)
	require.NoError(t, err)

	_, err = adj.ApplyExDate(context.Background(), "p1")
	var ise *engine.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "anchor_price", ise.Field)
}
