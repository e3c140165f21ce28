package event

import "time"

// Recorder accumulates the events of a single evaluation or dividend
// transition. The caller persists the batch atomically at the end; a failed
// append fails the whole operation so the audit trail never loses an event.
type Recorder struct {
	positionID string
	now        func() time.Time
	events     []Event
}

// NewRecorder creates a recorder for one position. now may be nil.
func NewRecorder(positionID string, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{positionID: positionID, now: now}
}

// Record appends one event built from the payload.
func (r *Recorder) Record(p Payload) Event {
	ev := New(r.positionID, p, r.now().UTC())
	r.events = append(r.events, ev)
	return ev
}

// Events returns the recorded batch in emission order.
func (r *Recorder) Events() []Event {
	return r.events
}
