// Package persistence implements the engine's Store collaborator: an
// in-process store for tests and one-shot runs, and a PostgreSQL store
// (subpackage postgres) for durable deployments.
package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/position"
)

// ErrNotFound is returned when a position does not exist.
var ErrNotFound = fmt.Errorf("persistence: not found")

// Memory is a thread-safe in-process Store.
type Memory struct {
	mu          sync.RWMutex
	positions   map[string]position.Cell
	trades      []engine.Trade
	events      map[string][]event.Event
	receivables map[string][]position.DividendReceivable
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		positions:   make(map[string]position.Cell),
		events:      make(map[string][]event.Event),
		receivables: make(map[string][]position.DividendReceivable),
	}
}

// GetPosition returns a copy of the cell.
func (m *Memory) GetPosition(_ context.Context, id string) (*position.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cell, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: position %s", ErrNotFound, id)
	}
	out := cell
	return &out, nil
}

// SavePosition upserts the cell.
func (m *Memory) SavePosition(_ context.Context, cell *position.Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[cell.ID] = *cell
	return nil
}

// InsertTrade appends an immutable trade record.
func (m *Memory) InsertTrade(_ context.Context, trade engine.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

// Trades returns all stored trades, oldest first.
func (m *Memory) Trades() []engine.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// AppendEvents appends the batch to the position's trail.
func (m *Memory) AppendEvents(_ context.Context, events []event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		m.events[ev.PositionID] = append(m.events[ev.PositionID], ev)
	}
	return nil
}

// ListEvents returns events for a position since a timestamp, oldest first.
func (m *Memory) ListEvents(_ context.Context, positionID string, since time.Time, limit int) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []event.Event
	for _, ev := range m.events[positionID] {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetOpenReceivable returns the position's uncleaned receivable, or nil.
func (m *Memory) GetOpenReceivable(_ context.Context, positionID string) (*position.DividendReceivable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.receivables[positionID]) - 1; i >= 0; i-- {
		r := m.receivables[positionID][i]
		if !r.Cleared {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

// SaveReceivable upserts the receivable by ID.
func (m *Memory) SaveReceivable(_ context.Context, r *position.DividendReceivable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.receivables[r.PositionID]
	for i := range list {
		if list[i].ID == r.ID {
			list[i] = *r
			return nil
		}
	}
	m.receivables[r.PositionID] = append(list, *r)
	return nil
}
