package model

import "math"

// ProgressState is the aggregated progress of a preload run.
type ProgressState struct {
	Completed int
	Total     int
	Percent   int
	Done      bool
}

// Complete returns true when every asset of the run has settled.
func (p ProgressState) Complete() bool {
	return p.Completed >= p.Total
}

// PercentOf returns the rounded percentage of completed over total. An empty total is
// always complete.
func PercentOf(completed, total int) int {
	if total <= 0 {
		return 100
	}
	if completed >= total {
		return 100
	}
	if completed <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
