package engine

import "fmt"

// InvalidStateError marks corrupted position state or a defect in an
// upstream caller: non-positive anchor, negative balances after accounting,
// or a simultaneous dual-bound guardrail breach. It is the only engine
// failure that propagates as a hard error; everything else is a result.
type InvalidStateError struct {
	PositionID string
	Field      string
	Reason     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state on position %s (%s): %s", e.PositionID, e.Field, e.Reason)
}

func invalidState(positionID, field, format string, args ...any) error {
	return &InvalidStateError{
		PositionID: positionID,
		Field:      field,
		Reason:     fmt.Sprintf(format, args...),
	}
}

// ExecFailure classifies execution collaborator failures.
type ExecFailure string

const (
	ExecMarketClosed ExecFailure = "market_closed"
	ExecTimeout      ExecFailure = "timeout"
	ExecRejected     ExecFailure = "rejected"
)

// ExecError is returned by an Executor when an order cannot be filled. The
// engine turns it into a cancelled terminal state, not a hard failure.
type ExecError struct {
	Reason ExecFailure
	Detail string
}

func (e *ExecError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("execution failed: %s", e.Reason)
	}
	return fmt.Sprintf("execution failed: %s (%s)", e.Reason, e.Detail)
}
