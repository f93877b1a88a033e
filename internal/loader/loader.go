// Package loader has the per asset kind load strategies.
//
// A loader always settles an asset into exactly one model.LoadOutcome, failures and
// timeouts are absorbed into the outcome and never returned as errors.
package loader

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slok/preload/internal/fontreg"
	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
)

const tracerName = "github.com/slok/preload/internal/loader"

// Loader loads a single asset.
type Loader interface {
	// Load settles the asset, it must return exactly once and never block forever
	// once ctx is done.
	Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome
}

// LoaderFunc is a helper to use functions as Loaders.
type LoaderFunc func(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome

func (f LoaderFunc) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	return f(ctx, asset)
}

// Noop settles every asset as succeeded right away, used for unknown kinds.
var Noop = LoaderFunc(func(_ context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	return model.LoadOutcome{Descriptor: asset, Succeeded: true}
})

// Config is the configuration of the kind dispatching loader.
type Config struct {
	// Fetcher resolves asset sources, required.
	Fetcher Fetcher
	// FontRegistry is where loaded fonts are registered, defaults to the process-wide registry.
	FontRegistry *fontreg.Registry
	// PlayThroughBytes is the amount of buffered media needed to consider it playable.
	PlayThroughBytes int64
	// MaxAssetBytes limits the amount of data read for images and fonts.
	MaxAssetBytes int64
	Timeouts      Timeouts
	Tracer        trace.Tracer
	Logger        log.Logger
}

func (c *Config) defaults() error {
	if c.Fetcher == nil {
		return fmt.Errorf("fetcher is required")
	}
	if c.FontRegistry == nil {
		c.FontRegistry = fontreg.Default
	}
	if c.PlayThroughBytes <= 0 {
		c.PlayThroughBytes = DefaultPlayThroughBytes
	}
	if c.MaxAssetBytes <= 0 {
		c.MaxAssetBytes = DefaultMaxAssetBytes
	}
	c.Timeouts = c.Timeouts.withDefaults()
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "loader.Kind"})
	return nil
}

// KindLoader dispatches each asset to the strategy of its kind. Every strategy is
// bounded by its kind timeout.
type KindLoader struct {
	loaders map[model.AssetKind]Loader
	tracer  trace.Tracer
	logger  log.Logger
}

// New returns a loader that knows how to load every asset kind.
func New(cfg Config) (*KindLoader, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	imageLoader := NewImageLoader(cfg.Fetcher, cfg.MaxAssetBytes)
	mediaLoader := NewMediaLoader(cfg.Fetcher, cfg.PlayThroughBytes)
	fontLoader := NewFontLoader(cfg.Fetcher, cfg.FontRegistry, cfg.MaxAssetBytes)

	return &KindLoader{
		loaders: map[model.AssetKind]Loader{
			model.AssetKindImage: NewTimeoutLoader(imageLoader, cfg.Timeouts.Image),
			model.AssetKindVideo: NewTimeoutLoader(mediaLoader, cfg.Timeouts.Video),
			model.AssetKindAudio: NewTimeoutLoader(mediaLoader, cfg.Timeouts.Audio),
			model.AssetKindFont:  NewTimeoutLoader(fontLoader, cfg.Timeouts.Font),
		},
		tracer: cfg.Tracer,
		logger: cfg.Logger,
	}, nil
}

func (k *KindLoader) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	ctx, span := k.tracer.Start(ctx, "loader.Load", trace.WithAttributes(
		attribute.String("asset.kind", string(asset.Kind)),
		attribute.String("asset.source", asset.Source),
	))
	defer span.End()

	l, ok := k.loaders[asset.Kind]
	if !ok {
		k.logger.Debugf("Unknown asset kind %q for %q, settling as no-op", asset.Kind, asset.Source)
		l = Noop
	}

	outcome := l.Load(ctx, asset)

	span.SetAttributes(
		attribute.Bool("asset.succeeded", outcome.Succeeded),
		attribute.Bool("asset.timed_out", outcome.TimedOut),
		attribute.Int64("asset.bytes", outcome.Bytes),
	)
	if !outcome.Succeeded {
		span.SetStatus(codes.Error, outcome.Err)
	}

	logger := k.logger.WithValues(log.Kv{"kind": asset.Kind, "source": asset.Source, "elapsed": outcome.Elapsed})
	switch outcome.Status() {
	case model.OutcomeStatusFailed:
		logger.Warningf("Asset failed to load: %s", outcome.Err)
	case model.OutcomeStatusTimedOut:
		logger.Warningf("Asset load timed out, settling anyway")
	default:
		logger.Debugf("Asset loaded")
	}

	return outcome
}

// settle builds the outcome of an asset load attempt.
func settle(asset model.AssetDescriptor, start time.Time, bytes int64, err error) model.LoadOutcome {
	o := model.LoadOutcome{
		Descriptor: asset,
		Succeeded:  err == nil,
		Elapsed:    time.Since(start),
		Bytes:      bytes,
	}
	if err != nil {
		o.Err = err.Error()
	}
	return o
}

