// Package controltest provides an in-memory control.Controller for tests.
package controltest

import (
	"sync"
	"time"

	"github.com/smazurov/svcwrap/internal/control"
)

// Recorder is a scripted service manager. It records every accepted status
// in order, delivers injected events and can fail SetStatus for a chosen
// state.
type Recorder struct {
	events chan control.Event

	mu       sync.Mutex
	statuses []control.Status
	failures map[control.State]error
	changed  chan struct{}
}

// New returns a Recorder whose event queue holds up to 16 events.
func New() *Recorder {
	return &Recorder{
		events:   make(chan control.Event, 16),
		failures: make(map[control.State]error),
		changed:  make(chan struct{}),
	}
}

// Events implements control.Controller.
func (r *Recorder) Events() <-chan control.Event {
	return r.events
}

// SetStatus implements control.Controller.
func (r *Recorder) SetStatus(s control.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[s.State]; ok {
		return &control.Error{Op: "set status", Err: err}
	}
	r.statuses = append(r.statuses, s)
	close(r.changed)
	r.changed = make(chan struct{})
	return nil
}

// Send injects a control event.
func (r *Recorder) Send(ev control.Event) {
	r.events <- ev
}

// FailOn makes reports of state fail with err.
func (r *Recorder) FailOn(state control.State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[state] = err
}

// Statuses returns a copy of the recorded statuses.
func (r *Recorder) Statuses() []control.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]control.Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// States returns the recorded states in order.
func (r *Recorder) States() []control.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]control.State, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.State
	}
	return out
}

// WaitFor blocks until state has been recorded or timeout elapses.
func (r *Recorder) WaitFor(state control.State, timeout time.Duration) (control.Status, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		for _, s := range r.statuses {
			if s.State == state {
				r.mu.Unlock()
				return s, true
			}
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-deadline.C:
			return control.Status{}, false
		}
	}
}
