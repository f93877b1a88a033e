package runshow

import (
	"context"
	"fmt"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/storage"
)

// ServiceConfig is the configuration for the run show service.
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

// Service gets the details of a single preload run.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new run show service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Service{repo: cfg.Repository, logger: cfg.Logger}, nil
}

// Request is the run show request parameters.
type Request struct {
	// ID is the run ID, the latest run is shown when empty.
	ID string
}

// Run returns the requested run.
func (s *Service) Run(ctx context.Context, req Request) (*model.Run, error) {
	if req.ID != "" {
		run, err := s.repo.GetRun(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("could not get run: %w", err)
		}
		return run, nil
	}

	runs, err := s.repo.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded: %w", model.ErrNotFound)
	}

	s.logger.Debugf("no run ID requested, using latest run %s", runs[0].ID)
	return &runs[0], nil
}
