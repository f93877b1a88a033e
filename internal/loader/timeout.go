package loader

import (
	"context"
	"errors"
	"time"

	"github.com/slok/preload/internal/model"
)

// Default per kind load timeouts, heavier kinds get more time.
const (
	DefaultImageTimeout = 10 * time.Second
	DefaultFontTimeout  = 10 * time.Second
	DefaultAudioTimeout = 15 * time.Second
	DefaultVideoTimeout = 20 * time.Second
)

// Timeouts are the maximum waits for a load of each asset kind.
type Timeouts struct {
	Image time.Duration
	Video time.Duration
	Audio time.Duration
	Font  time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Image <= 0 {
		t.Image = DefaultImageTimeout
	}
	if t.Video <= 0 {
		t.Video = DefaultVideoTimeout
	}
	if t.Audio <= 0 {
		t.Audio = DefaultAudioTimeout
	}
	if t.Font <= 0 {
		t.Font = DefaultFontTimeout
	}
	return t
}

// For returns the timeout of an asset kind, unknown kinds are not bounded.
func (t Timeouts) For(kind model.AssetKind) time.Duration {
	switch kind {
	case model.AssetKindImage:
		return t.Image
	case model.AssetKindVideo:
		return t.Video
	case model.AssetKindAudio:
		return t.Audio
	case model.AssetKindFont:
		return t.Font
	default:
		return 0
	}
}

type timeoutLoader struct {
	next    Loader
	timeout time.Duration
}

// NewTimeoutLoader bounds the loads of next. When the bound is reached before next
// settles, the asset is force settled as a succeeded timed out outcome. A zero or
// negative timeout returns next untouched.
func NewTimeoutLoader(next Loader, timeout time.Duration) Loader {
	if timeout <= 0 {
		return next
	}
	return timeoutLoader{next: next, timeout: timeout}
}

func (t timeoutLoader) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Buffered so the inner load can always finish and be collected.
	result := make(chan model.LoadOutcome, 1)
	go func() {
		result <- t.next.Load(ctx, asset)
	}()

	select {
	case outcome := <-result:
		// The inner loader may have failed because of our bound.
		if !outcome.Succeeded && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut(asset, start)
		}
		return outcome
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut(asset, start)
		}
		return settle(asset, start, 0, ctx.Err())
	}
}

func timedOut(asset model.AssetDescriptor, start time.Time) model.LoadOutcome {
	return model.LoadOutcome{
		Descriptor: asset,
		Succeeded:  true,
		TimedOut:   true,
		Elapsed:    time.Since(start),
	}
}
