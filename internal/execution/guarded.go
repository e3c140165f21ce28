package execution

import (
	"context"
	"errors"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tradecell/tradecell/internal/engine"
)

// GuardConfig tunes the circuit breaker and submission rate limiter.
type GuardConfig struct {
	RatePerSec          float64
	Burst               int
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
}

// DefaultGuardConfig returns production-ready guard settings.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RatePerSec:          5,
		Burst:               5,
		ConsecutiveFailures: 3,
		FailureRatio:        0.05,
		MinRequests:         20,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
	}
}

// Guarded wraps an Executor with a circuit breaker and a rate limiter so a
// degraded broker cannot be hammered by the worker pool.
type Guarded struct {
	inner   engine.Executor
	breaker *cb.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuarded wraps inner with the given settings.
func NewGuarded(inner engine.Executor, cfg GuardConfig) *Guarded {
	st := cb.Settings{Name: "executor"}
	st.Interval = cfg.Interval
	st.Timeout = cfg.Timeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
			return true
		}
		if counts.Requests < cfg.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > cfg.FailureRatio
	}

	return &Guarded{
		inner:   inner,
		breaker: cb.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// Execute submits through the limiter and breaker. An open breaker or an
// exhausted context surfaces as an ExecError so the engine cancels rather
// than fails.
func (g *Guarded) Execute(ctx context.Context, intent engine.OrderIntent) (*engine.Fill, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &engine.ExecError{Reason: engine.ExecTimeout, Detail: err.Error()}
	}

	out, err := g.breaker.Execute(func() (any, error) {
		return g.inner.Execute(ctx, intent)
	})
	if err != nil {
		if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
			return nil, &engine.ExecError{Reason: engine.ExecRejected, Detail: "circuit breaker open"}
		}
		return nil, err
	}
	return out.(*engine.Fill), nil
}

// State exposes the breaker state for monitoring.
func (g *Guarded) State() cb.State {
	return g.breaker.State()
}
