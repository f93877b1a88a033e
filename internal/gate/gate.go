// Package gate decides the single instant a preload run is done.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
)

// DefaultSettleDelay is the default time waited after completion, so the final
// progress frame can be shown before the completion fires.
const DefaultSettleDelay = 300 * time.Millisecond

// Config is the completion gate configuration.
type Config struct {
	// SettleDelay is the wait between observing completion and firing the handler.
	SettleDelay time.Duration
	// Handler is called once when the run is done, required.
	Handler func()
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gate.Gate"})
	return nil
}

// Gate fires a completion handler at most once, a settle delay after the progress is
// first observed complete. A cancelled gate never fires.
type Gate struct {
	delay   time.Duration
	handler func()
	logger  log.Logger

	mu        sync.Mutex
	timer     *time.Timer
	scheduled bool
	fired     bool
	cancelled bool
	done      chan struct{}
}

// New returns a new completion gate.
func New(cfg Config) (*Gate, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gate{
		delay:   cfg.SettleDelay,
		handler: cfg.Handler,
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}, nil
}

// Observe receives a progress state. The first complete state schedules the handler,
// any other observation is ignored. The handler is never called synchronously.
func (g *Gate) Observe(state model.ProgressState) {
	if !state.Complete() {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.scheduled || g.cancelled {
		return
	}
	g.scheduled = true
	g.timer = time.AfterFunc(g.delay, g.fire)
	g.logger.Debugf("Completion observed (%d/%d), firing in %s", state.Completed, state.Total, g.delay)
}

func (g *Gate) fire() {
	g.mu.Lock()
	if g.cancelled || g.fired {
		g.mu.Unlock()
		return
	}
	g.fired = true
	g.mu.Unlock()

	defer close(g.done)
	g.handler()
}

// Cancel tears the gate down. It returns true if the handler had not started and
// will never be called, false if it already fired.
func (g *Gate) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fired {
		return false
	}
	if g.cancelled {
		return true
	}

	g.cancelled = true
	if g.timer != nil {
		g.timer.Stop()
	}
	g.logger.Debugf("Completion gate cancelled")
	return true
}

// Fired returns true if the handler has been called.
func (g *Gate) Fired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// Done is closed once the handler has returned.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}
