// Package runner fans price ticks across a worker pool. Each task carries
// one tick for one position; the engine's keyed locks keep evaluations for
// the same position serialized while different positions run in parallel.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tradecell/tradecell/internal/calendar"
	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/feed"
)

// Task is one tick to evaluate.
type Task struct {
	Tick feed.Tick
}

// ResultFunc observes each completed evaluation; may be nil. It is invoked
// concurrently from every worker goroutine, so implementations must
// synchronize any state they touch.
type ResultFunc func(*engine.EvaluationResult, error)

// Runner owns the queue and worker pool.
type Runner struct {
	engine   *engine.Engine
	guard    *feed.Guard
	calendar *calendar.Calendar
	onResult ResultFunc

	queue chan Task
	wg    sync.WaitGroup
}

// New creates a runner with the given pool size and queue depth.
func New(eng *engine.Engine, guard *feed.Guard, cal *calendar.Calendar, workers, queueSize int, onResult ResultFunc) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Runner{
		engine:   eng,
		guard:    guard,
		calendar: cal,
		onResult: onResult,
		queue:    make(chan Task, queueSize),
	}
	r.start(workers)
	return r
}

func (r *Runner) start(workers int) {
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for task := range r.queue {
		res, err := r.process(context.Background(), task)
		if err != nil {
			log.Error().Err(err).Str("position_id", task.Tick.PositionID).Msg("evaluation failed")
		}
		if r.onResult != nil {
			r.onResult(res, err)
		}
	}
}

func (r *Runner) process(ctx context.Context, task Task) (*engine.EvaluationResult, error) {
	tick := task.Tick
	fresh, reason := r.guard.Check(tick, tick.Timestamp)

	req := engine.EvalRequest{
		PositionID: tick.PositionID,
		// Deterministic ID: a replayed tick resolves to the same
		// evaluation and is absorbed by the idempotency barrier.
		EvaluationID: fmt.Sprintf("%s-%d", tick.PositionID, tick.Timestamp.UnixNano()),
		Price:        tick.Price,
		Timestamp:    tick.Timestamp,
		MarketOpen:   r.calendar.IsOpen(tick.Timestamp),
		Stale:        !fresh,
		StaleReason:  reason,
	}
	return r.engine.Evaluate(ctx, req)
}

// Submit queues one task; returns an error when the queue is full.
func (r *Runner) Submit(task Task) error {
	select {
	case r.queue <- task:
		return nil
	default:
		return fmt.Errorf("runner queue full, tick for %s dropped", task.Tick.PositionID)
	}
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (r *Runner) Close() {
	close(r.queue)
	r.wg.Wait()
}
