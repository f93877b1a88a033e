package screen

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/progress"
)

// DefaultTickInterval is the default interval the displayed progress is eased at.
const DefaultTickInterval = 50 * time.Millisecond

// Terminal writes the preload progress to a status writer. The displayed percent is
// eased with a smoother.
type Terminal struct {
	w        io.Writer
	smoother *progress.Smoother
	interval time.Duration

	mu       sync.Mutex
	state    model.ProgressState
	lastLine string
}

// NewTerminal returns a new terminal screen. maxStep is the maximum percent advanced
// per tick.
func NewTerminal(w io.Writer, maxStep int, interval time.Duration) *Terminal {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Terminal{
		w:        w,
		smoother: progress.NewSmoother(maxStep),
		interval: interval,
	}
}

// Observe is a progress observer that updates the screen target.
func (t *Terminal) Observe(state model.ProgressState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	t.smoother.SetTarget(state.Percent)
}

// Run draws the eased progress until ctx is done.
func (t *Terminal) Run(ctx context.Context) {
	t.smoother.Drive(ctx, t.interval, t.draw)
}

// Finish draws the real final progress, without easing, and ends the line.
func (t *Terminal) Finish() {
	t.draw(t.smoother.Commit())

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w)
}

func (t *Terminal) draw(displayed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := Render(NewFrame(t.state, displayed))
	if line == t.lastLine {
		return
	}
	t.lastLine = line
	fmt.Fprintf(t.w, "\r%s", line)
}
