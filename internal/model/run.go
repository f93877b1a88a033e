package model

import "time"

// Run is the record of a single preload pipeline instance.
type Run struct {
	ID           string
	ManifestName string
	StartedAt    time.Time
	FinishedAt   time.Time
	Total        int
	Completed    int
	// Forced is set when the safety timeout force-completed the run.
	Forced bool
	// Cancelled is set when the run was torn down before completing.
	Cancelled bool
	Outcomes  []LoadOutcome
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary counts the outcomes by status.
func (r Run) Summary() map[OutcomeStatus]int {
	summary := map[OutcomeStatus]int{
		OutcomeStatusLoaded:   0,
		OutcomeStatusFailed:   0,
		OutcomeStatusTimedOut: 0,
	}
	for _, o := range r.Outcomes {
		summary[o.Status()]++
	}
	return summary
}
