package model

import "time"

// LoadOutcome is the result of attempting to load one asset. It is created once when the
// loader settles and never mutated.
type LoadOutcome struct {
	Descriptor AssetDescriptor
	// Succeeded is true when the asset is usable. Forced timeouts are also
	// reported as succeeded, progress is about settled assets, not usable ones.
	Succeeded bool
	// TimedOut is set when the underlying load never settled within its bound.
	TimedOut bool
	// Err is the reason of the failure, if any.
	Err     string
	Elapsed time.Duration
	// Bytes is the number of bytes read from the source.
	Bytes int64
}

// OutcomeStatus is a summary of a load outcome.
type OutcomeStatus string

const (
	OutcomeStatusLoaded   OutcomeStatus = "loaded"
	OutcomeStatusFailed   OutcomeStatus = "failed"
	OutcomeStatusTimedOut OutcomeStatus = "timed-out"
)

// Status returns the outcome summary status.
func (o LoadOutcome) Status() OutcomeStatus {
	switch {
	case o.TimedOut:
		return OutcomeStatusTimedOut
	case o.Succeeded:
		return OutcomeStatusLoaded
	default:
		return OutcomeStatusFailed
	}
}
