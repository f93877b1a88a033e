package progress

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxStep is the default maximum percent a smoother advances per tick.
const DefaultMaxStep = 4

// Smoother eases a displayed percent towards the real progress, it only affects what is
// shown, never the real progress or the completion.
//
// The displayed value never goes down and never goes over the target.
type Smoother struct {
	maxStep   int
	target    int
	displayed int
	mu        sync.Mutex
}

// NewSmoother returns a new smoother that advances at most maxStep percent per tick.
func NewSmoother(maxStep int) *Smoother {
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	return &Smoother{maxStep: maxStep}
}

// SetTarget sets the percent to ease towards, lower targets than the current one are ignored.
func (s *Smoother) SetTarget(percent int) {
	percent = clamp(percent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if percent > s.target {
		s.target = percent
	}
}

// Tick advances the displayed percent one step and returns it.
func (s *Smoother) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.displayed = min(s.displayed+s.maxStep, s.target)
	return s.displayed
}

// Commit snaps the displayed percent to the target and returns it.
func (s *Smoother) Commit() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.displayed = s.target
	return s.displayed
}

// Displayed returns the current displayed percent.
func (s *Smoother) Displayed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed
}

// Settled returns true when the displayed percent has reached the target.
func (s *Smoother) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed >= s.target
}

// Drive ticks the smoother every interval calling fn with the displayed percent when
// it changes, until the context is done.
func (s *Smoother) Drive(ctx context.Context, interval time.Duration, fn func(displayed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d := s.Tick(); d != last {
				last = d
				fn(d)
			}
		}
	}
}

func clamp(percent int) int {
	return max(0, min(percent, 100))
}
