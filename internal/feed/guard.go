// Package feed validates incoming price ticks before they reach the engine.
// A rejected tick means "no evaluation this cycle", never an error.
package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one observation from the market price input collaborator.
type Tick struct {
	PositionID string          `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// GuardConfig bounds tick age and tick-to-tick movement.
type GuardConfig struct {
	MaxAge     time.Duration   // older ticks are stale
	MaxJumpPct decimal.Decimal // fraction; a larger move vs the last good tick is an outlier
}

// DefaultGuardConfig returns production-ready freshness limits.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAge:     2 * time.Minute,
		MaxJumpPct: decimal.RequireFromString("0.25"),
	}
}

// Guard tracks the last accepted price per position and classifies ticks.
type Guard struct {
	cfg  GuardConfig
	mu   sync.Mutex
	last map[string]decimal.Decimal
}

// NewGuard creates a guard. Zero-valued config fields fall back to defaults.
func NewGuard(cfg GuardConfig) *Guard {
	def := DefaultGuardConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if !cfg.MaxJumpPct.IsPositive() {
		cfg.MaxJumpPct = def.MaxJumpPct
	}
	return &Guard{cfg: cfg, last: make(map[string]decimal.Decimal)}
}

// Check classifies a tick. Accepted ticks update the per-position last price.
func (g *Guard) Check(t Tick, now time.Time) (ok bool, reason string) {
	if !t.Price.IsPositive() {
		return false, "non_positive_price"
	}
	if now.Sub(t.Timestamp) > g.cfg.MaxAge {
		return false, "stale_tick"
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if last, seen := g.last[t.PositionID]; seen {
		move := t.Price.Sub(last).Abs().Div(last)
		if move.GreaterThan(g.cfg.MaxJumpPct) {
			return false, "outlier_move"
		}
	}
	g.last[t.PositionID] = t.Price
	return true, "fresh"
}
