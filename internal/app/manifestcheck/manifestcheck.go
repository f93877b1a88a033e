package manifestcheck

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/slok/preload/internal/loader"
	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/storage"
)

const defaultProbeConcurrency = 8

// ServiceConfig is the configuration for the manifest check service.
type ServiceConfig struct {
	ManifestRepository storage.ManifestRepository
	// Fetcher is used to probe the asset sources, optional. Without it sources
	// can't be probed.
	Fetcher          loader.Fetcher
	ProbeConcurrency int
	Logger           log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.ManifestRepository == nil {
		return fmt.Errorf("manifest repository is required")
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = defaultProbeConcurrency
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.ManifestCheck"})
	return nil
}

// Service parses and validates asset manifests.
type Service struct {
	manifestRepo     storage.ManifestRepository
	fetcher          loader.Fetcher
	probeConcurrency int
	logger           log.Logger
}

// NewService creates a new manifest check service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		manifestRepo:     cfg.ManifestRepository,
		fetcher:          cfg.Fetcher,
		probeConcurrency: cfg.ProbeConcurrency,
		logger:           cfg.Logger,
	}, nil
}

// Request is the manifest check request parameters.
type Request struct {
	ManifestPath string
	// Probe opens every asset source to check it's reachable.
	Probe bool
}

// Run checks a manifest. Unreachable sources are reported in the result, not as errors.
func (s *Service) Run(ctx context.Context, req Request) (*model.ManifestCheck, error) {
	manifest, err := s.manifestRepo.GetManifest(ctx, req.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("could not get manifest %s: %w", req.ManifestPath, err)
	}

	if req.Probe && s.fetcher == nil {
		return nil, fmt.Errorf("probing sources needs a fetcher")
	}

	checks := make([]model.AssetCheck, len(manifest.Assets))
	for i, a := range manifest.Assets {
		checks[i] = model.AssetCheck{Descriptor: a}
	}

	if req.Probe {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.probeConcurrency)
		for i := range checks {
			g.Go(func() error {
				checks[i].Probed = true
				if err := s.probe(gctx, checks[i].Descriptor); err != nil {
					checks[i].Err = err.Error()
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	result := &model.ManifestCheck{
		Manifest: manifest,
		Assets:   checks,
		Counts:   manifest.CountByKind(),
	}
	for _, c := range checks {
		if c.Err != "" {
			result.Unreachable++
			s.logger.Warningf("Asset %s is unreachable: %s", c.Descriptor, c.Err)
		}
	}

	return result, nil
}

func (s *Service) probe(ctx context.Context, a model.AssetDescriptor) error {
	if a.Kind == model.AssetKindUnknown {
		return nil
	}

	body, err := s.fetcher.Fetch(ctx, a.Source)
	if err != nil {
		return err
	}
	return body.Close()
}
