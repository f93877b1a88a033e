package runlist

import (
	"context"
	"fmt"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/storage"
)

// ServiceConfig is the configuration for the run list service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists the preload run history with optional filtering.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new run list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// ManifestFilter is an optional filter to only show runs of this manifest.
	ManifestFilter string
	// Limit is the maximum number of runs returned, 0 means no limit.
	Limit int
}

// Run lists the runs, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Run, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	runs, err := s.repo.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}

	if req.ManifestFilter != "" {
		filtered := make([]model.Run, 0, len(runs))
		for _, r := range runs {
			if r.ManifestName == req.ManifestFilter {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}

	s.logger.Debugf("found %d runs", len(runs))
	return runs, nil
}
