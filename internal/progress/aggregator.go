// Package progress aggregates asset settlements into a monotonic progress state.
package progress

import (
	"sync"

	"github.com/slok/preload/internal/model"
)

// Observer receives every progress state change, in order. Observers are called
// synchronously, they can stop the aggregator but must not record settlements.
type Observer func(state model.ProgressState)

// Aggregator keeps the progress state of a preload run. It is the only writer of the
// state, settlements can be recorded concurrently and each of them counts exactly once.
//
// Once stopped, the aggregator ignores every write.
type Aggregator struct {
	state     model.ProgressState
	stopped   bool
	observers []Observer
	mu        sync.Mutex
	// notifyMu serializes the state changes with their notification so observers
	// see a monotonic sequence. Only writers take it.
	notifyMu sync.Mutex
}

// NewAggregator returns a new aggregator for total assets. An empty run starts at 100%.
func NewAggregator(total int) *Aggregator {
	if total < 0 {
		total = 0
	}
	return &Aggregator{
		state: model.ProgressState{
			Total:   total,
			Percent: model.PercentOf(0, total),
		},
	}
}

// Subscribe registers an observer of the state changes.
func (a *Aggregator) Subscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// State returns the current progress state.
func (a *Aggregator) State() model.ProgressState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RecordSettlement counts one settled asset. It returns false when the settlement
// was ignored: the aggregator is stopped or every asset has already been counted.
func (a *Aggregator) RecordSettlement() (model.ProgressState, bool) {
	return a.update(func(s *model.ProgressState) bool {
		if s.Completed >= s.Total {
			return false
		}
		s.Completed++
		s.Percent = model.PercentOf(s.Completed, s.Total)
		return true
	})
}

// ForceComplete sets the run as completed regardless of the pending settlements. It is
// the safety valve for runs that stall.
func (a *Aggregator) ForceComplete() (model.ProgressState, bool) {
	return a.update(func(s *model.ProgressState) bool {
		if s.Completed >= s.Total && s.Percent == 100 {
			return false
		}
		s.Completed = s.Total
		s.Percent = 100
		return true
	})
}

// MarkDone marks the run as done, only once and only after every asset has settled.
func (a *Aggregator) MarkDone() (model.ProgressState, bool) {
	return a.update(func(s *model.ProgressState) bool {
		if s.Done || s.Completed < s.Total {
			return false
		}
		s.Done = true
		return true
	})
}

// Stop stops the aggregator, following writes are ignored and observers are not
// notified anymore. It can be called from an observer.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

// Stopped returns true if the aggregator has been stopped.
func (a *Aggregator) Stopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *Aggregator) update(mutate func(s *model.ProgressState) bool) (model.ProgressState, bool) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	if a.stopped {
		state := a.state
		a.mu.Unlock()
		return state, false
	}
	changed := mutate(&a.state)
	state := a.state
	observers := a.observers
	a.mu.Unlock()

	if !changed {
		return state, false
	}

	for _, o := range observers {
		if a.Stopped() {
			break
		}
		o(state)
	}

	return state, true
}
