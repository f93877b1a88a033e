package preloadrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/preload"
	"github.com/slok/preload/internal/progress"
	"github.com/slok/preload/internal/screen"
	"github.com/slok/preload/internal/storage"
)

// ServiceConfig is the configuration for the preload run service.
type ServiceConfig struct {
	ManifestRepository storage.ManifestRepository
	RunRepository      storage.RunRepository
	Pipeline           *preload.Pipeline
	Logger             log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.ManifestRepository == nil {
		return fmt.Errorf("manifest repository is required")
	}
	if c.RunRepository == nil {
		return fmt.Errorf("run repository is required")
	}
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.PreloadRun"})
	return nil
}

// Service preloads the assets of a manifest and records the run.
type Service struct {
	manifestRepo storage.ManifestRepository
	runRepo      storage.RunRepository
	pipeline     *preload.Pipeline
	logger       log.Logger
}

// NewService creates a new preload run service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		manifestRepo: cfg.ManifestRepository,
		runRepo:      cfg.RunRepository,
		pipeline:     cfg.Pipeline,
		logger:       cfg.Logger,
	}, nil
}

// Request is the preload run request parameters.
type Request struct {
	ManifestPath string
	// StatusWriter is where the preload screen is rendered, nil disables the screen.
	StatusWriter io.Writer
	// SmoothStep is the maximum displayed percent the screen advances per tick.
	SmoothStep int
	// TickInterval is the screen refresh interval.
	TickInterval time.Duration
	// OnReady is called once when the preload completes, can be nil.
	OnReady func()
}

// Run preloads the manifest assets and waits until the preload completes. The run is
// recorded even when it's interrupted.
func (s *Service) Run(ctx context.Context, req Request) (*preload.Report, error) {
	manifest, err := s.manifestRepo.GetManifest(ctx, req.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("could not get manifest %s: %w", req.ManifestPath, err)
	}

	var (
		observers []progress.Observer
		term      *screen.Terminal
	)
	if req.StatusWriter != nil {
		term = screen.NewTerminal(req.StatusWriter, req.SmoothStep, req.TickInterval)
		observers = append(observers, term.Observe)
	}

	session, err := s.pipeline.Start(ctx, manifest, req.OnReady, observers...)
	if err != nil {
		return nil, fmt.Errorf("could not start preload: %w", err)
	}
	logger := s.logger.WithValues(log.Kv{"run-id": session.ID(), "manifest": manifest.Name})
	logger.Infof("Preloading %d assets", len(manifest.Assets))

	var wg sync.WaitGroup
	screenCtx, stopScreen := context.WithCancel(ctx)
	if term != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			term.Run(screenCtx)
		}()
	}

	report, waitErr := session.Wait(ctx)

	stopScreen()
	wg.Wait()
	if term != nil {
		term.Finish()
	}

	// The run is stored even if the context was cancelled.
	if err := s.runRepo.CreateRun(context.WithoutCancel(ctx), report.Run); err != nil {
		return nil, fmt.Errorf("could not store run: %w", err)
	}

	if waitErr != nil {
		// The session may be torn down by ctx before Wait notices the ctx itself.
		if errors.Is(waitErr, preload.ErrTornDown) && ctx.Err() != nil {
			waitErr = ctx.Err()
		}
		logger.Warningf("Preload interrupted at %d/%d assets", report.State.Completed, report.State.Total)
		return &report, fmt.Errorf("preload did not complete: %w", waitErr)
	}

	summary := report.Run.Summary()
	logger.Infof("Preload ready in %s (%d loaded, %d failed, %d timed out)", report.Run.Duration().Round(time.Millisecond),
		summary[model.OutcomeStatusLoaded], summary[model.OutcomeStatusFailed], summary[model.OutcomeStatusTimedOut])
	if report.Run.Forced {
		logger.Warningf("Preload was forced to complete by the safety timeout")
	}

	return &report, nil
}
