// Package screen renders the preload progress. It is a pure view of the progress
// state and has no logic of its own.
package screen

import (
	"fmt"
	"math"
	"strings"

	"github.com/slok/preload/internal/model"
)

const (
	barWidth = 40
	// ringRadius is the radius of the progress ring the frame dash offset is computed for.
	ringRadius = 70
)

// RingCircumference is the length of the progress ring stroke.
var RingCircumference = 2 * math.Pi * ringRadius

// Frame is a single visual representation of the progress.
type Frame struct {
	// Percent is the displayed percent.
	Percent int
	// Fill is the progress bar fill fraction, between 0 and 1.
	Fill float64
	// RingDashOffset is the stroke dash offset of the progress ring.
	RingDashOffset float64
	Completed      int
	Total          int
	Status         string
}

// NewFrame returns the frame for a progress state. displayed is the eased percent
// shown, it's clamped so the frame never shows more than the real progress.
func NewFrame(state model.ProgressState, displayed int) Frame {
	percent := max(0, min(displayed, state.Percent))
	fill := float64(percent) / 100

	return Frame{
		Percent:        percent,
		Fill:           fill,
		RingDashOffset: RingCircumference * (1 - fill),
		Completed:      state.Completed,
		Total:          state.Total,
		Status:         statusText(state),
	}
}

func statusText(state model.ProgressState) string {
	switch {
	case state.Done:
		return "READY"
	case state.Complete():
		return "FINALIZING"
	default:
		return "LOADING ASSETS"
	}
}

// Render renders a frame as a single terminal line.
func Render(f Frame) string {
	filled := min(int(f.Fill*barWidth), barWidth)
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	return fmt.Sprintf("  [%s] %3d%% %d/%d %s", bar, f.Percent, f.Completed, f.Total, f.Status)
}
