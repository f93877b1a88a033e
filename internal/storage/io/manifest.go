package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
)

// ManifestYAMLRepository loads asset manifests from YAML files.
type ManifestYAMLRepository struct {
	fs     fs.FS
	logger log.Logger
}

// NewManifestYAMLRepository creates a new YAML manifest repository.
func NewManifestYAMLRepository(filesystem fs.FS, logger log.Logger) *ManifestYAMLRepository {
	if logger == nil {
		logger = log.Noop
	}
	return &ManifestYAMLRepository{
		fs:     filesystem,
		logger: logger.WithValues(log.Kv{"svc": "storage.ManifestYAML"}),
	}
}

// GetManifest loads an asset manifest from a YAML file and returns a validated domain model.
func (r *ManifestYAMLRepository) GetManifest(ctx context.Context, path string) (model.Manifest, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Manifest{}, fmt.Errorf("reading manifest file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Manifest{}, ctx.Err()
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return model.Manifest{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := m.validate(); err != nil {
		return model.Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	return m.toModel(r.logger), nil
}

// Manifest represents the YAML structure of an asset manifest.
type Manifest struct {
	Name   string  `yaml:"name"`
	Assets []Asset `yaml:"assets"`
}

// Asset represents the YAML structure of a single asset.
type Asset struct {
	Kind       string `yaml:"kind"`
	Source     string `yaml:"source"`
	FontFamily string `yaml:"font_family,omitempty"`
}

func (m Manifest) validate() error {
	for i, a := range m.Assets {
		if a.Kind == "" {
			return fmt.Errorf("asset %d: kind is required: %w", i, model.ErrNotValid)
		}
		if a.Source == "" {
			return fmt.Errorf("asset %d: source is required: %w", i, model.ErrNotValid)
		}
		if kind, _ := model.ParseAssetKind(a.Kind); a.FontFamily != "" && kind != model.AssetKindFont {
			return fmt.Errorf("asset %d: font_family is only valid for font assets: %w", i, model.ErrNotValid)
		}
	}
	return nil
}

func (m Manifest) toModel(logger log.Logger) model.Manifest {
	manifest := model.Manifest{
		Name:   m.Name,
		Assets: make([]model.AssetDescriptor, 0, len(m.Assets)),
	}

	for _, a := range m.Assets {
		kind, ok := model.ParseAssetKind(a.Kind)
		if !ok {
			logger.Warningf("Unknown asset kind %q for %s, it will be ignored", a.Kind, a.Source)
		}
		manifest.Assets = append(manifest.Assets, model.AssetDescriptor{
			Kind:       kind,
			Source:     a.Source,
			FontFamily: a.FontFamily,
		})
	}

	return manifest
}
