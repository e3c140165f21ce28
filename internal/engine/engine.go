// Package engine implements the volatility-triggered decision core: trigger
// classification, order sizing, guardrail enforcement, validation, fill
// accounting and the per-evaluation audit trail.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/calendar"
	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/metrics"
	"github.com/tradecell/tradecell/internal/position"
)

// Options wires the engine's collaborators. Store, Executor, Idempotency
// and Counter are required; the rest default sensibly.
type Options struct {
	Store       Store
	Executor    Executor
	Idempotency IdempotencyStore
	Counter     OrderCounter
	Calendar    *calendar.Calendar
	Locks       *Locks
	Metrics     *metrics.Registry
	Now         func() time.Time

	// SlippageBufferPct widens the affordability check on buys: validation
	// prices the order at reference × (1 + buffer) so an adverse fill within
	// the buffer still clears settled cash. Matches the executor's worst-case
	// slippage in a typical deployment.
	SlippageBufferPct decimal.Decimal
}

// Engine evaluates one position per call under a per-position lock.
type Engine struct {
	store    Store
	exec     Executor
	idem     IdempotencyStore
	counter  OrderCounter
	calendar *calendar.Calendar
	locks    *Locks
	metrics  *metrics.Registry
	now      func() time.Time

	slipBuffer decimal.Decimal
}

// New creates an engine from its collaborators.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("engine: executor is required")
	}
	if opts.Idempotency == nil {
		return nil, fmt.Errorf("engine: idempotency store is required")
	}
	if opts.Counter == nil {
		return nil, fmt.Errorf("engine: order counter is required")
	}
	if opts.SlippageBufferPct.IsNegative() {
		return nil, fmt.Errorf("engine: slippage buffer %s is negative", opts.SlippageBufferPct)
	}
	if opts.Calendar == nil {
		opts.Calendar = calendar.MustNew("America/New_York")
	}
	if opts.Locks == nil {
		opts.Locks = NewLocks()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    opts.Store,
		exec:     opts.Executor,
		idem:     opts.Idempotency,
		counter:  opts.Counter,
		calendar: opts.Calendar,
		locks:    opts.Locks,
		metrics:  opts.Metrics,
		now:      opts.Now,

		slipBuffer: opts.SlippageBufferPct,
	}, nil
}

// Locks exposes the per-position lock set so dividend transitions serialize
// against trade evaluations on the same position.
func (e *Engine) Locks() *Locks {
	return e.locks
}

// Store exposes the persistence collaborator for read-side consumers.
func (e *Engine) Store() Store {
	return e.store
}

// Evaluate runs one full decision cycle for a price observation. Rejections
// and trims come back as result states; only invariant violations and
// persistence failures return an error.
func (e *Engine) Evaluate(ctx context.Context, req EvalRequest) (*EvaluationResult, error) {
	started := e.now()
	if req.EvaluationID == "" {
		req.EvaluationID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = started
	}

	unlock := e.locks.Acquire(req.PositionID)
	defer unlock()

	res := &EvaluationResult{
		PositionID:   req.PositionID,
		EvaluationID: req.EvaluationID,
		Side:         position.SideNone,
	}

	// Idempotency barrier: a replayed evaluation produces no new trade and
	// no duplicate events.
	key := idempotencyKey(req.PositionID, req.EvaluationID)
	seen, err := e.idem.Seen(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if seen {
		log.Debug().Str("position_id", req.PositionID).Str("evaluation_id", req.EvaluationID).
			Msg("duplicate evaluation replay absorbed")
		res.State = StateRejected
		res.RejectReason = RejectDuplicate
		res.Duplicate = true
		res.Reason = "evaluation already resolved"
		return res, nil
	}

	cell, err := e.store.GetPosition(ctx, req.PositionID)
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", req.PositionID, err)
	}
	if cell.Archived {
		return nil, invalidState(cell.ID, "archived", "archived position cannot be evaluated")
	}
	if err := cell.Validate(); err != nil {
		return nil, invalidState(cell.ID, "invariants", "%v", err)
	}

	rec := event.NewRecorder(cell.ID, e.now)

	if req.Stale {
		rec.Record(event.PriceSourceSkipped{Price: req.Price, Reason: req.StaleReason})
		res.State = StateNone
		res.Reason = fmt.Sprintf("price source skipped: %s", req.StaleReason)
		return e.finish(ctx, res, rec, key, started)
	}

	if !req.MarketOpen && !cell.Config.AllowAfterHours {
		// Informational skip only; no threshold event is emitted.
		res.State = StateNone
		res.Reason = "market closed and after-hours trading disabled"
		return e.finish(ctx, res, rec, key, started)
	}

	receivable, err := e.store.GetOpenReceivable(ctx, cell.ID)
	if err != nil {
		return nil, fmt.Errorf("load receivable for %s: %w", cell.ID, err)
	}
	effCash := cell.EffectiveCash(receivable)

	decision, err := EvaluateTrigger(cell, req.Price)
	if err != nil {
		return nil, err
	}
	res.Side = decision.Side
	res.Reason = decision.Reason

	var intent *OrderIntent
	switch decision.Side {
	case position.SideNone:
		proposal, err := CheckDriftRebalance(cell, req.Price, effCash)
		if err != nil {
			return nil, err
		}
		if proposal == nil {
			res.State = StateNone
			return e.finish(ctx, res, rec, key, started)
		}
		rec.Record(event.AutoGuardrailRebalance{
			Side:       proposal.Side,
			Qty:        proposal.Qty,
			CurrentPct: proposal.CurrentPct,
			Bound:      proposal.Bound,
			BoundPct:   proposal.BoundPct,
		})
		e.metrics.IncAutoRebalance()
		res.Side = proposal.Side
		res.Reason = fmt.Sprintf("allocation %s%% outside [%s%%, %s%%]",
			proposal.CurrentPct.Mul(hundred).StringFixed(2),
			cell.Config.MinStockPct.Mul(hundred).StringFixed(2),
			cell.Config.MaxStockPct.Mul(hundred).StringFixed(2))
		intent = &OrderIntent{
			PositionID:   cell.ID,
			EvaluationID: req.EvaluationID,
			Side:         proposal.Side,
			RawQty:       proposal.Qty,
			TrimmedQty:   proposal.Qty,
			TriggerPrice: req.Price,
			Reason:       res.Reason,
		}

	default:
		rec.Record(event.ThresholdCrossed{
			Side:         decision.Side,
			Price:        decision.Price,
			AnchorPrice:  decision.AnchorPrice,
			Threshold:    decision.Threshold,
			ThresholdPct: decision.ThresholdPct,
			Reason:       decision.Reason,
		})

		raw := SizeOrder(cell, req.Price, effCash, decision.Side)
		grd, err := EnforceGuardrails(cell, req.Price, effCash, raw)
		if err != nil {
			return nil, err
		}
		if grd.Trimmed {
			rec.Record(event.OrderTrimmedGuardrail{
				Side:         decision.Side,
				RawQty:       grd.RawQty,
				TrimmedQty:   grd.FinalQty,
				Bound:        grd.Bound,
				BoundPct:     grd.BoundPct,
				ProjectedPct: grd.ProjectedPct,
			})
			e.metrics.IncTrim()
		}
		intent = &OrderIntent{
			PositionID:   cell.ID,
			EvaluationID: req.EvaluationID,
			Side:         decision.Side,
			RawQty:       grd.RawQty,
			TrimmedQty:   grd.FinalQty,
			TriggerPrice: req.Price,
			Reason:       decision.Reason,
		}
	}

	res.Intent = intent

	verdict, err := e.validateIntent(ctx, cell, *intent, req)
	if err != nil {
		return nil, err
	}
	if !verdict.OK {
		if verdict.Reason == RejectMinNotional {
			rec.Record(event.OrderRejectedMin{
				Side:        intent.Side,
				Qty:         intent.Qty(),
				Price:       req.Price,
				Notional:    intent.Notional(),
				MinNotional: cell.Config.MinNotional,
			})
		} else {
			rec.Record(event.OrderRejected{
				Side:   intent.Side,
				Qty:    intent.Qty(),
				Reason: string(verdict.Reason),
				Detail: verdict.Detail,
			})
		}
		e.metrics.IncRejection(string(verdict.Reason))
		res.State = StateRejected
		res.RejectReason = verdict.Reason
		res.Reason = verdict.Detail
		return e.finish(ctx, res, rec, key, started)
	}

	// Accepted: mark the idempotency key before submission so a crash
	// between submit and fill report can never double-submit on retry.
	if err := e.idem.Mark(ctx, key); err != nil {
		return nil, fmt.Errorf("mark idempotency key: %w", err)
	}

	rec.Record(event.OrderSubmitted{
		EvaluationID: req.EvaluationID,
		Side:         intent.Side,
		Qty:          intent.Qty(),
		RefPrice:     intent.TriggerPrice,
		Notional:     intent.Notional(),
	})

	fill, err := e.exec.Execute(ctx, *intent)
	if err != nil {
		reason := err.Error()
		if execErr, ok := err.(*ExecError); ok {
			reason = string(execErr.Reason)
		}
		rec.Record(event.OrderCancelled{Side: intent.Side, Qty: intent.Qty(), Reason: reason})
		res.State = StateCancelled
		res.Reason = reason
		return e.finishMarked(ctx, res, rec, started)
	}

	trade := Trade{
		ID:         uuid.NewString(),
		PositionID: cell.ID,
		OrderID:    fill.OrderID,
		Side:       intent.Side,
		Qty:        fill.Qty.Abs(),
		Price:      fill.Price,
		ExecutedAt: fill.ExecutedAt,
	}
	trade.Commission = Commission(cell, trade.Notional().Round(moneyPrecision))

	// The fill may land above the validated reference price. A buy whose
	// slipped cost exceeds settled cash is not applied: the evaluation ends
	// cancelled, with the full trail persisted.
	if trade.Side == position.SideBuy {
		cost := trade.Notional().Round(moneyPrecision).Add(trade.Commission)
		if cost.GreaterThan(cell.Cash) {
			reason := fmt.Sprintf("fill cost $%s at price $%s exceeds settled cash $%s",
				cost.StringFixed(2), trade.Price.StringFixed(2), cell.Cash.StringFixed(2))
			rec.Record(event.OrderCancelled{Side: intent.Side, Qty: intent.Qty(), Reason: reason})
			res.State = StateCancelled
			res.Reason = reason
			return e.finishMarked(ctx, res, rec, started)
		}
	}

	fillRes, err := ApplyFill(cell, trade)
	if err != nil {
		return e.failMarked(ctx, rec, err)
	}

	rec.Record(event.OrderFilled{
		TradeID:    trade.ID,
		Side:       trade.Side,
		Qty:        trade.Qty,
		Price:      trade.Price,
		Commission: trade.Commission,
		CashAfter:  fillRes.CashAfter,
		QtyAfter:   fillRes.QtyAfter,
	})
	rec.Record(event.AnchorUpdated{
		TradeID:   trade.ID,
		OldAnchor: fillRes.AnchorBefore,
		NewAnchor: fillRes.AnchorAfter,
	})

	day := e.calendar.TradingDay(trade.ExecutedAt)
	if err := e.counter.Increment(ctx, cell.ID, day); err != nil {
		return e.failMarked(ctx, rec, fmt.Errorf("increment daily order count: %w", err))
	}
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return e.failMarked(ctx, rec, fmt.Errorf("persist trade: %w", err))
	}
	cell.UpdatedAt = e.now().UTC()
	if err := e.store.SavePosition(ctx, cell); err != nil {
		return e.failMarked(ctx, rec, fmt.Errorf("persist position: %w", err))
	}

	log.Info().
		Str("position_id", cell.ID).
		Str("side", string(trade.Side)).
		Str("qty", trade.Qty.String()).
		Str("price", trade.Price.StringFixed(2)).
		Str("commission", trade.Commission.StringFixed(2)).
		Msg("order filled")

	res.State = StateFilled
	res.Trade = &trade
	return e.finishMarked(ctx, res, rec, started)
}

// finish persists the event batch, marks the evaluation resolved and
// completes the result. Event persistence failure fails the evaluation.
func (e *Engine) finish(ctx context.Context, res *EvaluationResult, rec *event.Recorder, key string, started time.Time) (*EvaluationResult, error) {
	if err := e.idem.Mark(ctx, key); err != nil {
		return nil, fmt.Errorf("mark idempotency key: %w", err)
	}
	return e.finishMarked(ctx, res, rec, started)
}

func (e *Engine) finishMarked(ctx context.Context, res *EvaluationResult, rec *event.Recorder, started time.Time) (*EvaluationResult, error) {
	events := rec.Events()
	if len(events) > 0 {
		if err := e.store.AppendEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("append events: %w", err)
		}
	}
	res.Events = events
	elapsed := e.now().Sub(started)
	res.ElapsedMs = elapsed.Milliseconds()
	e.metrics.ObserveEvaluation(string(res.State), elapsed.Seconds())
	return res, nil
}

// failMarked flushes the events recorded so far before surfacing an error
// that occurred after submission. The order really went out, so its trail
// must survive even when the evaluation itself fails.
func (e *Engine) failMarked(ctx context.Context, rec *event.Recorder, cause error) (*EvaluationResult, error) {
	if events := rec.Events(); len(events) > 0 {
		if err := e.store.AppendEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("append events (after: %v): %w", cause, err)
		}
	}
	return nil, cause
}

// ListEvents exposes the audit trail for a position since a timestamp.
func (e *Engine) ListEvents(ctx context.Context, positionID string, since time.Time, limit int) ([]event.Event, error) {
	return e.store.ListEvents(ctx, positionID, since, limit)
}
