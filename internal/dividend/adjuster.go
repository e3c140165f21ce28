// Package dividend drives the per-position dividend state machine:
// announced -> effective (ex-date) -> paid (pay-date). Transitions run
// independently of the trigger/order flow but hold the same per-position
// lock so they serialize against concurrent trade evaluations.
package dividend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/metrics"
	"github.com/tradecell/tradecell/internal/position"
)

var (
	// ErrReceivableOpen rejects a new declaration while a prior receivable
	// has not cleared. At most one open receivable exists per position;
	// replacement would silently rewrite announced amounts, so the caller
	// must resolve the open one first.
	ErrReceivableOpen = errors.New("dividend: position already has an open receivable")

	// ErrNoTransition signals an ex-date or pay-date call with no
	// receivable in the required prior state.
	ErrNoTransition = errors.New("dividend: no receivable in required state")
)

var one = decimal.NewFromInt(1)

// Adjuster applies dividend transitions against the shared store.
type Adjuster struct {
	store   engine.Store
	locks   *engine.Locks
	metrics *metrics.Registry
	now     func() time.Time
}

// New creates an adjuster sharing the engine's store and position locks.
func New(store engine.Store, locks *engine.Locks, m *metrics.Registry) *Adjuster {
	return &Adjuster{store: store, locks: locks, metrics: m, now: time.Now}
}

// Result reports one applied transition.
type Result struct {
	Receivable *position.DividendReceivable
	Events     []event.Event
}

// Announce declares a dividend of dps per share. sharesAtRecord may be zero
// to snapshot the cell's current quantity.
func (a *Adjuster) Announce(ctx context.Context, positionID string, dps decimal.Decimal, exDate, payDate time.Time, sharesAtRecord decimal.Decimal) (*Result, error) {
	if !dps.IsPositive() {
		return nil, fmt.Errorf("dividend: dps must be positive, got %s", dps)
	}
	if payDate.Before(exDate) {
		return nil, fmt.Errorf("dividend: pay date %s precedes ex date %s",
			payDate.Format("2006-01-02"), exDate.Format("2006-01-02"))
	}

	unlock := a.locks.Acquire(positionID)
	defer unlock()

	cell, err := a.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", positionID, err)
	}
	open, err := a.store.GetOpenReceivable(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load receivable: %w", err)
	}
	if open.Open() {
		return nil, ErrReceivableOpen
	}

	if sharesAtRecord.IsZero() {
		sharesAtRecord = cell.Qty
	}
	gross := dps.Mul(sharesAtRecord).Round(2)
	net := gross.Mul(one.Sub(cell.Config.WithholdingTaxRate)).Round(2)

	now := a.now().UTC()
	r := &position.DividendReceivable{
		ID:             uuid.NewString(),
		PositionID:     positionID,
		DPS:            dps,
		Gross:          gross,
		Net:            net,
		SharesAtRecord: sharesAtRecord,
		ExDate:         exDate,
		PayDate:        payDate,
		State:          position.ReceivableAnnounced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	rec := event.NewRecorder(positionID, a.now)
	rec.Record(event.ExDivAnnounced{
		DPS:            dps,
		ExDate:         exDate,
		PayDate:        payDate,
		SharesAtRecord: sharesAtRecord,
		Gross:          gross,
		Net:            net,
	})

	if err := a.store.SaveReceivable(ctx, r); err != nil {
		return nil, fmt.Errorf("persist receivable: %w", err)
	}
	if err := a.store.AppendEvents(ctx, rec.Events()); err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}

	a.metrics.IncDividend("announced")
	log.Info().Str("position_id", positionID).Str("dps", dps.String()).
		Str("net", net.String()).Msg("dividend announced")
	return &Result{Receivable: r, Events: rec.Events()}, nil
}

// ApplyExDate shifts the anchor down by DPS and makes the receivable
// effective. From here until pay date the receivable's net amount
// participates in valuation as cash_effective.
func (a *Adjuster) ApplyExDate(ctx context.Context, positionID string) (*Result, error) {
	unlock := a.locks.Acquire(positionID)
	defer unlock()

	cell, err := a.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", positionID, err)
	}
	r, err := a.store.GetOpenReceivable(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load receivable: %w", err)
	}
	if !r.Open() || r.State != position.ReceivableAnnounced {
		return nil, fmt.Errorf("%w: need announced receivable for ex-date", ErrNoTransition)
	}
	if !cell.AnchorPrice.GreaterThan(r.DPS) {
		return nil, &engine.InvalidStateError{
			PositionID: positionID,
			Field:      "anchor_price",
			Reason: fmt.Sprintf("ex-dividend adjustment %s would drive anchor %s non-positive",
				r.DPS, cell.AnchorPrice),
		}
	}

	oldAnchor := cell.AnchorPrice
	cell.AnchorPrice = oldAnchor.Sub(r.DPS)
	cell.UpdatedAt = a.now().UTC()
	r.State = position.ReceivableEffective
	r.UpdatedAt = cell.UpdatedAt

	rec := event.NewRecorder(positionID, a.now)
	rec.Record(event.AnchorAdjustedForDividend{
		DPS:       r.DPS,
		OldAnchor: oldAnchor,
		NewAnchor: cell.AnchorPrice,
	})
	rec.Record(event.ExDivEffective{
		DPS:            r.DPS,
		SharesAtRecord: r.SharesAtRecord,
		Gross:          r.Gross,
		Net:            r.Net,
	})

	if err := a.store.SavePosition(ctx, cell); err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}
	if err := a.store.SaveReceivable(ctx, r); err != nil {
		return nil, fmt.Errorf("persist receivable: %w", err)
	}
	if err := a.store.AppendEvents(ctx, rec.Events()); err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}

	a.metrics.IncDividend("effective")
	log.Info().Str("position_id", positionID).
		Str("old_anchor", oldAnchor.StringFixed(2)).
		Str("new_anchor", cell.AnchorPrice.StringFixed(2)).
		Msg("anchor adjusted for dividend")
	return &Result{Receivable: r, Events: rec.Events()}, nil
}

// ApplyPayDate credits the net amount to settled cash and clears the
// receivable. A receivable is cleared exactly once.
func (a *Adjuster) ApplyPayDate(ctx context.Context, positionID string) (*Result, error) {
	unlock := a.locks.Acquire(positionID)
	defer unlock()

	cell, err := a.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", positionID, err)
	}
	r, err := a.store.GetOpenReceivable(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load receivable: %w", err)
	}
	if !r.Open() || r.State != position.ReceivableEffective {
		return nil, fmt.Errorf("%w: need effective receivable for pay-date", ErrNoTransition)
	}

	cell.Cash = cell.Cash.Add(r.Net)
	cell.UpdatedAt = a.now().UTC()
	r.State = position.ReceivablePaid
	r.Cleared = true
	r.UpdatedAt = cell.UpdatedAt

	rec := event.NewRecorder(positionID, a.now)
	rec.Record(event.DividendCashReceived{Net: r.Net, CashAfter: cell.Cash})

	if err := a.store.SavePosition(ctx, cell); err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}
	if err := a.store.SaveReceivable(ctx, r); err != nil {
		return nil, fmt.Errorf("persist receivable: %w", err)
	}
	if err := a.store.AppendEvents(ctx, rec.Events()); err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}

	a.metrics.IncDividend("paid")
	log.Info().Str("position_id", positionID).Str("net", r.Net.StringFixed(2)).
		Msg("dividend cash received")
	return &Result{Receivable: r, Events: rec.Events()}, nil
}
