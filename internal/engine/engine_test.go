package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecell/tradecell/internal/dedupe"
	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/execution"
	"github.com/tradecell/tradecell/internal/persistence"
	"github.com/tradecell/tradecell/internal/position"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCell(id, cash, qty, anchor string) *position.Cell {
	cell := position.NewCell(id, "ACME", dec(cash), dec(qty))
	cell.AnchorPrice = dec(anchor)
	return cell
}

// Wednesday 10:00 ET, inside the regular session.
var sessionTime = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

func openReq(positionID, evalID, price string) engine.EvalRequest {
	return engine.EvalRequest{
		PositionID:   positionID,
		EvaluationID: evalID,
		Price:        dec(price),
		Timestamp:    sessionTime,
		MarketOpen:   true,
	}
}

type harness struct {
	store  *persistence.Memory
	dedupe *dedupe.Memory
	eng    *engine.Engine
}

func newHarness(t *testing.T, exec engine.Executor) *harness {
	t.Helper()
	if exec == nil {
		paper := execution.NewPaper(decimal.Zero)
		paper.Now = func() time.Time { return sessionTime }
		exec = paper
	}
	store := persistence.NewMemory()
	dd := dedupe.NewMemory()
	eng, err := engine.New(engine.Options{
		Store:       store,
		Executor:    exec,
		Idempotency: dd,
		Counter:     dd,
	})
	require.NoError(t, err)
	return &harness{store: store, dedupe: dd, eng: eng}
}

func eventTypes(events []event.Event) []event.Type {
	out := make([]event.Type, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestEvaluateBuyTriggerFills(t *testing.T) {
	h := newHarness(t, nil)
	cell := newCell("p1", "100000", "100", "150")
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)

	assert.Equal(t, engine.StateFilled, res.State)
	assert.Equal(t, position.SideBuy, res.Side)
	require.NotNil(t, res.Trade)
	assert.Equal(t, position.SideBuy, res.Trade.Side)
	assert.True(t, res.Trade.Qty.IsPositive())

	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderSubmitted,
		event.TypeOrderFilled,
		event.TypeAnchorUpdated,
	}, eventTypes(res.Events))

	after, err := h.store.GetPosition(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, after.AnchorPrice.Equal(dec("145")), "anchor resets to fill price, got %s", after.AnchorPrice)
	assert.True(t, after.Qty.GreaterThan(dec("100")))
	assert.True(t, after.Cash.LessThan(dec("100000")))

	require.Len(t, h.store.Trades(), 1)

	count, err := h.dedupe.CountToday(context.Background(), "p1", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEvaluateDuplicateReplayIsSilent(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "100000", "100", "150")))

	first, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	require.Equal(t, engine.StateFilled, first.State)

	trail, err := h.store.ListEvents(context.Background(), "p1", time.Time{}, 0)
	require.NoError(t, err)
	persisted := len(trail)

	replay, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateRejected, replay.State)
	assert.Equal(t, engine.RejectDuplicate, replay.RejectReason)
	assert.True(t, replay.Duplicate)
	assert.Empty(t, replay.Events)

	trail, err = h.store.ListEvents(context.Background(), "p1", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, trail, persisted, "replay must not append events")
	assert.Len(t, h.store.Trades(), 1, "replay must not create a second trade")
}

func TestEvaluateWithinBandNoAction(t *testing.T) {
	h := newHarness(t, nil)
	// Allocation 60%: inside the guardrail band, no drift correction.
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "10000", "100", "150")))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "152"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateNone, res.State)
	assert.Equal(t, position.SideNone, res.Side)
	assert.Empty(t, res.Events)
	assert.Nil(t, res.Trade)
}

func TestEvaluateAutoRebalanceOnDrift(t *testing.T) {
	h := newHarness(t, nil)
	// Allocation 13%: below the 25% floor with the price inside the band.
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "100000", "100", "150")))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "150"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateFilled, res.State)
	assert.Equal(t, position.SideBuy, res.Side)
	assert.Equal(t, []event.Type{
		event.TypeAutoGuardrailRebalance,
		event.TypeOrderSubmitted,
		event.TypeOrderFilled,
		event.TypeAnchorUpdated,
	}, eventTypes(res.Events))

	after, err := h.store.GetPosition(context.Background(), "p1")
	require.NoError(t, err)
	alloc, err := engine.CurrentAllocation(after, dec("150"), after.Cash)
	require.NoError(t, err)
	assert.True(t, alloc.Sub(dec("0.25")).Abs().LessThan(dec("0.001")),
		"post-rebalance allocation should sit on the floor, got %s", alloc)
}

func TestEvaluateTrimsToGuardrail(t *testing.T) {
	h := newHarness(t, nil)
	// Raw buy would push allocation past 75%; the trim lands it on the cap.
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "10000", "100", "104")))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "100"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateFilled, res.State)
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderTrimmedGuardrail,
		event.TypeOrderSubmitted,
		event.TypeOrderFilled,
		event.TypeAnchorUpdated,
	}, eventTypes(res.Events))

	require.NotNil(t, res.Intent)
	assert.True(t, res.Intent.TrimmedQty.LessThan(res.Intent.RawQty))

	after, err := h.store.GetPosition(context.Background(), "p1")
	require.NoError(t, err)
	alloc, err := engine.CurrentAllocation(after, dec("100"), after.Cash)
	require.NoError(t, err)
	assert.True(t, alloc.Sub(dec("0.75")).Abs().LessThan(dec("0.001")),
		"post-trim allocation should sit on the cap, got %s", alloc)
}

func TestEvaluateMinNotionalRejection(t *testing.T) {
	h := newHarness(t, nil)
	cell := newCell("p1", "10000", "100", "150")
	cell.Config.MinNotional = dec("1000000")
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateRejected, res.State)
	assert.Equal(t, engine.RejectMinNotional, res.RejectReason)
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderRejectedMin,
	}, eventTypes(res.Events))
	assert.Empty(t, h.store.Trades())
}

func TestEvaluateReceivableNotSpendable(t *testing.T) {
	h := newHarness(t, nil)
	// Sizing sees cash_effective (settled + effective receivable) but
	// affordability runs against settled cash only.
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "100", "0", "150")))
	require.NoError(t, h.store.SaveReceivable(context.Background(), &position.DividendReceivable{
		ID:         "r1",
		PositionID: "p1",
		Net:        dec("10000"),
		State:      position.ReceivableEffective,
	}))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateRejected, res.State)
	assert.Equal(t, engine.RejectInsufficientFunds, res.RejectReason)
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderRejected,
	}, eventTypes(res.Events))
}

func TestEvaluateDailyCap(t *testing.T) {
	h := newHarness(t, nil)
	cell := newCell("p1", "100000", "100", "150")
	cell.Config.MaxOrdersPerDay = 1
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	first, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	require.Equal(t, engine.StateFilled, first.State)

	// Anchor is now 145; 140 crosses the new buy threshold on the same day.
	second, err := h.eng.Evaluate(context.Background(), openReq("p1", "e2", "140"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateRejected, second.State)
	assert.Equal(t, engine.RejectDailyCap, second.RejectReason)
	assert.Len(t, h.store.Trades(), 1)
}

func TestEvaluateMarketClosedSkipsSilently(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "10000", "100", "150")))

	req := openReq("p1", "e1", "145")
	req.MarketOpen = false
	res, err := h.eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, engine.StateNone, res.State)
	assert.Equal(t, "market closed and after-hours trading disabled", res.Reason)
	assert.Empty(t, res.Events)
}

func TestEvaluateAfterHoursAllowed(t *testing.T) {
	h := newHarness(t, nil)
	cell := newCell("p1", "100000", "100", "150")
	cell.Config.AllowAfterHours = true
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	req := openReq("p1", "e1", "145")
	req.MarketOpen = false
	res, err := h.eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, engine.StateFilled, res.State)
}

func TestEvaluateStaleTick(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "10000", "100", "150")))

	req := openReq("p1", "e1", "145")
	req.Stale = true
	req.StaleReason = "stale_tick"
	res, err := h.eng.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, engine.StateNone, res.State)
	assert.Equal(t, []event.Type{event.TypePriceSourceSkipped}, eventTypes(res.Events))
}

type failingExecutor struct{ err error }

func (f failingExecutor) Execute(context.Context, engine.OrderIntent) (*engine.Fill, error) {
	return nil, f.err
}

func TestEvaluateExecutionFailureCancels(t *testing.T) {
	h := newHarness(t, failingExecutor{err: &engine.ExecError{Reason: engine.ExecRejected, Detail: "venue down"}})
	require.NoError(t, h.store.SavePosition(context.Background(), newCell("p1", "100000", "100", "150")))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateCancelled, res.State)
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderSubmitted,
		event.TypeOrderCancelled,
	}, eventTypes(res.Events))
	assert.Empty(t, h.store.Trades())

	// The key was marked before submission: a retry is absorbed, not resubmitted.
	replay, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
}

type failingEventStore struct {
	*persistence.Memory
}

func (f failingEventStore) AppendEvents(context.Context, []event.Event) error {
	return errors.New("disk full")
}

func TestEvaluateEventPersistFailureFailsEvaluation(t *testing.T) {
	mem := persistence.NewMemory()
	require.NoError(t, mem.SavePosition(context.Background(), newCell("p1", "10000", "100", "150")))
	dd := dedupe.NewMemory()
	eng, err := engine.New(engine.Options{
		Store:       failingEventStore{Memory: mem},
		Executor:    execution.NewPaper(decimal.Zero),
		Idempotency: dd,
		Counter:     dd,
	})
	require.NoError(t, err)

	req := openReq("p1", "e1", "145")
	req.Stale = true
	req.StaleReason = "stale_tick"
	_, err = eng.Evaluate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append events")
}

func TestEvaluateSlippedFillCancelsWithTrail(t *testing.T) {
	// A buy validated at the reference price can slip past settled cash at
	// fill time. That ends the evaluation cancelled with the full trail
	// persisted; it must not surface as a fatal invariant error.
	paper := execution.NewPaper(dec("0.05"))
	paper.Now = func() time.Time { return sessionTime }
	h := newHarness(t, paper)

	cell := newCell("p1", "6000", "100", "150")
	cell.Config.MaxStockPct = dec("0.99")
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	res, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateCancelled, res.State)
	assert.Contains(t, res.Reason, "exceeds settled cash")
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderTrimmedGuardrail,
		event.TypeOrderSubmitted,
		event.TypeOrderCancelled,
	}, eventTypes(res.Events))
	assert.Empty(t, h.store.Trades())

	after, err := h.store.GetPosition(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, after.Cash.Equal(dec("6000")), "cancelled fill must not move cash, got %s", after.Cash)
	assert.True(t, after.Qty.Equal(dec("100")))
	assert.True(t, after.AnchorPrice.Equal(dec("150")))

	trail, err := h.store.ListEvents(context.Background(), "p1", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, trail, 4, "the cancelled evaluation's trail must be durable")
}

func TestEvaluateSlippageBufferRejectsUnaffordableBuy(t *testing.T) {
	mem := persistence.NewMemory()
	dd := dedupe.NewMemory()
	paper := execution.NewPaper(dec("0.05"))
	paper.Now = func() time.Time { return sessionTime }
	eng, err := engine.New(engine.Options{
		Store:             mem,
		Executor:          paper,
		Idempotency:       dd,
		Counter:           dd,
		SlippageBufferPct: dec("0.05"),
	})
	require.NoError(t, err)

	cell := newCell("p1", "6000", "100", "150")
	cell.Config.MaxStockPct = dec("0.99")
	require.NoError(t, mem.SavePosition(context.Background(), cell))

	// At the buffered price the order no longer clears settled cash: it is
	// rejected up front instead of slipping negative after the fill.
	res, err := eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateRejected, res.State)
	assert.Equal(t, engine.RejectInsufficientFunds, res.RejectReason)
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderTrimmedGuardrail,
		event.TypeOrderRejected,
	}, eventTypes(res.Events))
	assert.Empty(t, mem.Trades())
}

type failingTradeStore struct {
	*persistence.Memory
}

func (f failingTradeStore) InsertTrade(context.Context, engine.Trade) error {
	return errors.New("connection reset")
}

func TestEvaluateTradePersistFailureKeepsTrail(t *testing.T) {
	mem := persistence.NewMemory()
	require.NoError(t, mem.SavePosition(context.Background(), newCell("p1", "100000", "100", "150")))
	dd := dedupe.NewMemory()
	paper := execution.NewPaper(decimal.Zero)
	paper.Now = func() time.Time { return sessionTime }
	eng, err := engine.New(engine.Options{
		Store:       failingTradeStore{Memory: mem},
		Executor:    paper,
		Idempotency: dd,
		Counter:     dd,
	})
	require.NoError(t, err)

	_, err = eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist trade")

	// The order really filled: its events survive the persistence failure.
	trail, err := mem.ListEvents(context.Background(), "p1", time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []event.Type{
		event.TypeThresholdCrossed,
		event.TypeOrderSubmitted,
		event.TypeOrderFilled,
		event.TypeAnchorUpdated,
	}, eventTypes(trail))
}

func TestEvaluateUnsetAnchorIsInvalidState(t *testing.T) {
	h := newHarness(t, nil)
	cell := position.NewCell("p1", "ACME", dec("10000"), dec("100"))
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	_, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.Error(t, err)
	var ise *engine.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "anchor_price", ise.Field)
}

func TestEvaluateArchivedPosition(t *testing.T) {
	h := newHarness(t, nil)
	cell := newCell("p1", "10000", "100", "150")
	cell.Archived = true
	require.NoError(t, h.store.SavePosition(context.Background(), cell))

	_, err := h.eng.Evaluate(context.Background(), openReq("p1", "e1", "145"))
	require.Error(t, err)
	var ise *engine.InvalidStateError
	require.ErrorAs(t, err, &ise)
}
