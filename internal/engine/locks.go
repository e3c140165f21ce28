package engine

import "sync"

// Locks serializes work per position: at most one evaluation or dividend
// transition may be in flight for a given position ID. Different positions
// proceed in parallel. Entries are never removed; the set of positions is
// small and stable within a process lifetime.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks creates an empty keyed lock set.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the mutex for id and returns the unlock func.
func (l *Locks) Acquire(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
