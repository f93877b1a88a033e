package lib

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"k8s.io/client-go/util/homedir"

	"github.com/slok/preload/internal/conventions"
	"github.com/slok/preload/internal/fontreg"
	"github.com/slok/preload/internal/loader"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/preload"
	"github.com/slok/preload/internal/progress"
	"github.com/slok/preload/internal/storage"
	storageio "github.com/slok/preload/internal/storage/io"
	"github.com/slok/preload/internal/storage/memory"
	"github.com/slok/preload/internal/storage/sqlite"
	"github.com/slok/preload/pkg/lib/log"
)

// Timeouts are the per asset kind load timeouts. Zero values use the defaults
// (images and fonts 10s, audio 15s, video 20s).
type Timeouts struct {
	Image time.Duration
	Video time.Duration
	Audio time.Duration
	Font  time.Duration
}

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults.
type Config struct {
	// DBPath is the SQLite run history database path.
	// Default: ~/.preload/preload.db.
	DBPath string

	// NoHistory keeps the run history in memory, nothing is written to disk.
	NoHistory bool

	// BaseFS is where non HTTP sources are read from.
	// Default: the current working directory.
	BaseFS fs.FS

	// HTTPClient fetches HTTP sources.
	// Default: a client without timeout, assets are bounded by Timeouts.
	HTTPClient *http.Client

	// SettleDelay is the wait between the last asset settling and the ready signal.
	// Default: 300ms. Negative fires the ready signal right away.
	SettleDelay time.Duration

	// SafetyTimeout forces a preload to be ready when loading stalls.
	// Default: 30s. Negative disables it.
	SafetyTimeout time.Duration

	// MaxConcurrency bounds the simultaneous asset loads.
	// Default: 0, unbounded.
	MaxConcurrency int

	// Timeouts bound the load of each asset.
	Timeouts Timeouts

	// PlayThroughBytes is the amount of buffered video or audio needed to consider
	// it playable. Default: 1MiB.
	PlayThroughBytes int64

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DBPath == "" && !c.NoHistory {
		c.DBPath = conventions.DBPath(homedir.HomeDir())
	}

	if c.BaseFS == nil {
		c.BaseFS = os.DirFS(".")
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency can't be negative: %w", ErrNotValid)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point to preload assets.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	repo     storage.RunRepository
	pipeline *preload.Pipeline
	logger   log.Logger
	closeFn  func() error
}

// New creates a new SDK client.
//
// The caller must call [Client.Close] when done to release the history database
// connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l, err := loader.New(loader.Config{
		Fetcher: loader.NewSourceFetcher(
			loader.NewHTTPFetcher(cfg.HTTPClient),
			loader.NewFSFetcher(cfg.BaseFS),
		),
		PlayThroughBytes: cfg.PlayThroughBytes,
		Timeouts: loader.Timeouts{
			Image: cfg.Timeouts.Image,
			Video: cfg.Timeouts.Video,
			Audio: cfg.Timeouts.Audio,
			Font:  cfg.Timeouts.Font,
		},
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create loader: %w", err)
	}

	pipeline, err := preload.NewPipeline(preload.PipelineConfig{
		Loader:         l,
		SettleDelay:    cfg.SettleDelay,
		SafetyTimeout:  cfg.SafetyTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create pipeline: %w", err)
	}

	c := &Client{
		pipeline: pipeline,
		logger:   cfg.Logger,
	}

	if cfg.NoHistory {
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		c.repo = repo
		return c, nil
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	c.repo = repo
	c.closeFn = repo.Close

	return c, nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// PreloadOpts are the optional hooks of a preload.
type PreloadOpts struct {
	// OnProgress is called synchronously on every progress change, it must not block.
	// It can tear the session down.
	OnProgress func(Progress)
	// OnReady is called exactly once when the preload is ready, unless the preload
	// is torn down before.
	OnReady func()
}

// LoadManifest reads a YAML manifest from a filesystem.
func (c *Client) LoadManifest(ctx context.Context, fsys fs.FS, path string) (Manifest, error) {
	m, err := storageio.NewManifestYAMLRepository(fsys, c.logger).GetManifest(ctx, path)
	if err != nil {
		return Manifest{}, err
	}
	return fromModelManifest(m), nil
}

// Start starts preloading a manifest and returns right away. Cancelling ctx tears
// the session down.
func (c *Client) Start(ctx context.Context, m Manifest, opts PreloadOpts) (*Session, error) {
	manifest := m.toModel()
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	var observers []progress.Observer
	if opts.OnProgress != nil {
		observers = append(observers, func(s model.ProgressState) { opts.OnProgress(fromModelProgress(s)) })
	}

	s, err := c.pipeline.Start(ctx, manifest, opts.OnReady, observers...)
	if err != nil {
		return nil, err
	}

	return &Session{s: s}, nil
}

// Preload preloads a manifest, waits until it's ready and records the run in
// the history. When ctx ends first, the partial run is recorded and returned
// along with the context error.
func (c *Client) Preload(ctx context.Context, m Manifest, opts PreloadOpts) (*Run, error) {
	s, err := c.Start(ctx, m, opts)
	if err != nil {
		return nil, err
	}

	report, waitErr := s.s.Wait(ctx)
	if err := c.repo.CreateRun(context.WithoutCancel(ctx), report.Run); err != nil {
		return nil, fmt.Errorf("could not store run: %w", err)
	}

	run := fromModelRun(report.Run)
	if waitErr != nil {
		if errors.Is(waitErr, preload.ErrTornDown) && ctx.Err() != nil {
			waitErr = ctx.Err()
		}
		return &run, waitErr
	}

	return &run, nil
}

// ListRuns returns the recorded runs, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	runs, err := c.repo.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, fromModelRun(r))
	}
	return out, nil
}

// GetRun returns a recorded run.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := c.repo.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	run := fromModelRun(*r)
	return &run, nil
}

// FontFamilies returns the font families registered by preloaded fonts.
func (c *Client) FontFamilies() []string {
	return fontreg.Default.Families()
}

// Session is a single running preload.
type Session struct {
	s *preload.Session
}

// ID returns the preload run ID.
func (s *Session) ID() string { return s.s.ID() }

// Progress returns the current progress.
func (s *Session) Progress() Progress { return fromModelProgress(s.s.State()) }

// Done is closed once the OnReady hook has returned. It's never closed for a session
// torn down before being ready.
func (s *Session) Done() <-chan struct{} { return s.s.Done() }

// Wait waits until the preload is ready. If the session is torn down or ctx
// ends first, the partial run is returned along with an error.
func (s *Session) Wait(ctx context.Context) (*Run, error) {
	report, err := s.s.Wait(ctx)
	run := fromModelRun(report.Run)
	return &run, err
}

// Teardown stops the preload. The ready signal is never fired after Teardown
// returns unless it already had. It's safe to call many times.
func (s *Session) Teardown() { s.s.Teardown() }
