package engine

import (
	"context"
	"time"

	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/position"
)

// Collaborator interfaces, declared here for dependency injection and
// testing. The engine performs no blocking I/O of its own; timeouts are
// owned by the caller through ctx.

// Store persists cells, trades, receivables and the append-only event
// trail. A failed event append fails the whole evaluation.
type Store interface {
	GetPosition(ctx context.Context, id string) (*position.Cell, error)
	SavePosition(ctx context.Context, cell *position.Cell) error

	InsertTrade(ctx context.Context, trade Trade) error

	AppendEvents(ctx context.Context, events []event.Event) error
	ListEvents(ctx context.Context, positionID string, since time.Time, limit int) ([]event.Event, error)

	// GetOpenReceivable returns the uncleaned receivable for the position,
	// or (nil, nil) when there is none.
	GetOpenReceivable(ctx context.Context, positionID string) (*position.DividendReceivable, error)
	SaveReceivable(ctx context.Context, r *position.DividendReceivable) error
}

// Executor submits an accepted intent to the market and reports the fill.
// Unfillable orders return *ExecError.
type Executor interface {
	Execute(ctx context.Context, intent OrderIntent) (*Fill, error)
}

// IdempotencyStore remembers resolved evaluation keys so retried
// evaluations never double-submit.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// OrderCounter tracks fills per position per trading day for the daily cap.
type OrderCounter interface {
	CountToday(ctx context.Context, positionID, day string) (int, error)
	Increment(ctx context.Context, positionID, day string) error
}
