// Package preload orchestrates the preloading of an asset manifest: loads every asset
// concurrently, aggregates the progress and fires a completion handler exactly once.
package preload

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/slok/preload/internal/gate"
	"github.com/slok/preload/internal/loader"
	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/progress"
)

const tracerName = "github.com/slok/preload/internal/preload"

// DefaultSafetyTimeout is the default maximum time a run can take before its progress
// is forced to completion.
const DefaultSafetyTimeout = 30 * time.Second

// PipelineConfig is the configuration of the preload pipeline.
type PipelineConfig struct {
	// Loader settles every asset, required.
	Loader loader.Loader
	// SettleDelay is the wait between completion and the completion handler. Zero uses
	// the default delay, negative fires right after completion.
	SettleDelay time.Duration
	// SafetyTimeout forces the run to complete when loading stalls. Negative disables it.
	SafetyTimeout time.Duration
	// MaxConcurrency bounds the number of simultaneous loads, 0 means unbounded.
	MaxConcurrency int
	Tracer         trace.Tracer
	Logger         log.Logger
}

func (c *PipelineConfig) defaults() error {
	if c.Loader == nil {
		return fmt.Errorf("loader is required")
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = gate.DefaultSettleDelay
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.SafetyTimeout == 0 {
		c.SafetyTimeout = DefaultSafetyTimeout
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency can't be negative")
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "preload.Pipeline"})
	return nil
}

// Pipeline starts preload sessions. A single pipeline can start many sessions, each
// session is an independent preload run.
type Pipeline struct {
	loader         loader.Loader
	settleDelay    time.Duration
	safetyTimeout  time.Duration
	maxConcurrency int
	tracer         trace.Tracer
	logger         log.Logger
}

// NewPipeline returns a new preload pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Pipeline{
		loader:         cfg.Loader,
		settleDelay:    cfg.SettleDelay,
		safetyTimeout:  cfg.SafetyTimeout,
		maxConcurrency: cfg.MaxConcurrency,
		tracer:         cfg.Tracer,
		logger:         cfg.Logger,
	}, nil
}

// Start starts preloading the manifest assets and returns right away. onComplete is
// called exactly once when the run is done, unless the session is torn down first.
// onComplete can be nil. Observers receive every progress change of the session.
//
// Cancelling ctx tears the session down.
func (p *Pipeline) Start(ctx context.Context, manifest model.Manifest, onComplete func(), observers ...progress.Observer) (*Session, error) {
	s, err := newSession(ctx, p, manifest, onComplete, observers)
	if err != nil {
		return nil, fmt.Errorf("could not start session: %w", err)
	}
	return s, nil
}

// Run starts a session and waits until it's done. If ctx ends before, the session is
// torn down and the partial report is returned along with the context error.
func (p *Pipeline) Run(ctx context.Context, manifest model.Manifest, onComplete func(), observers ...progress.Observer) (Report, error) {
	s, err := p.Start(ctx, manifest, onComplete, observers...)
	if err != nil {
		return Report{}, err
	}
	return s.Wait(ctx)
}
