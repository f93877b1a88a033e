package storage

import (
	"context"

	"github.com/slok/preload/internal/model"
)

// RunRepository is the interface for preload run history persistence.
type RunRepository interface {
	CreateRun(ctx context.Context, r model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// ListRuns returns the runs, newest first.
	ListRuns(ctx context.Context) ([]model.Run, error)
}

// ManifestRepository is the interface to get asset manifests.
type ManifestRepository interface {
	GetManifest(ctx context.Context, path string) (model.Manifest, error)
}
