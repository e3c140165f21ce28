// Package dedupe enforces the idempotency barrier and the per-day order
// cap counters behind the order validator. Two implementations: in-process
// memory for tests and one-shot runs, Redis for deployments where retried
// evaluations can arrive from another process.
package dedupe

import (
	"context"
	"sync"
)

// Memory is a process-local implementation of engine.IdempotencyStore and
// engine.OrderCounter.
type Memory struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	counts map[string]int
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		seen:   make(map[string]struct{}),
		counts: make(map[string]int),
	}
}

// Seen reports whether the evaluation key was already resolved.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[key]
	return ok, nil
}

// Mark records an evaluation key as resolved.
func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = struct{}{}
	return nil
}

// CountToday returns the fills executed for the position on the trading day.
func (m *Memory) CountToday(_ context.Context, positionID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[positionID+":"+day], nil
}

// Increment bumps the position's fill count for the trading day.
func (m *Memory) Increment(_ context.Context, positionID, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[positionID+":"+day]++
	return nil
}
