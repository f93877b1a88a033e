package loader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/slok/preload/internal/fontreg"
	"github.com/slok/preload/internal/model"
)

// FontLoader loads fonts and registers them on the font registry.
type FontLoader struct {
	fetcher  Fetcher
	registry *fontreg.Registry
	maxBytes int64
}

// NewFontLoader returns a new font loader.
func NewFontLoader(fetcher Fetcher, registry *fontreg.Registry, maxBytes int64) *FontLoader {
	if registry == nil {
		registry = fontreg.Default
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAssetBytes
	}
	return &FontLoader{fetcher: fetcher, registry: registry, maxBytes: maxBytes}
}

func (f *FontLoader) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	start := time.Now()

	body, err := f.fetcher.Fetch(ctx, asset.Source)
	if err != nil {
		return settle(asset, start, 0, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes))
	if err != nil {
		return settle(asset, start, int64(len(data)), fmt.Errorf("reading font: %w", err))
	}

	font, err := fontreg.Parse(data)
	if err != nil {
		return settle(asset, start, int64(len(data)), err)
	}

	if _, err := f.registry.Register(asset.FontFamily, asset.Source, font); err != nil {
		return settle(asset, start, int64(len(data)), fmt.Errorf("registering font: %w", err))
	}

	return settle(asset, start, int64(len(data)), nil)
}
