package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/alecthomas/units"

	"github.com/slok/preload/internal/app/preloadrun"
	"github.com/slok/preload/internal/gate"
	"github.com/slok/preload/internal/loader"
	"github.com/slok/preload/internal/preload"
	"github.com/slok/preload/internal/progress"
	"github.com/slok/preload/internal/screen"
	"github.com/slok/preload/internal/storage"
	"github.com/slok/preload/internal/storage/memory"
)

// RunCommand preloads the assets of a manifest.
type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	manifestPath     string
	baseDir          string
	settleDelay      time.Duration
	safetyTimeout    time.Duration
	concurrency      int
	timeouts         loader.Timeouts
	playThroughBytes units.Base2Bytes
	maxAssetBytes    units.Base2Bytes
	noHistory        bool
	noScreen         bool
	smoothStep       int
	tickInterval     time.Duration
	format           string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Preload the assets of a manifest.")
	c.Cmd.Arg("manifest", "Path to the YAML asset manifest.").Required().StringVar(&c.manifestPath)
	c.Cmd.Flag("base-dir", "Directory local asset sources are resolved from (defaults to the manifest directory).").StringVar(&c.baseDir)
	c.Cmd.Flag("settle-delay", "Wait between all assets settling and the ready signal.").Default(gate.DefaultSettleDelay.String()).DurationVar(&c.settleDelay)
	c.Cmd.Flag("safety-timeout", "Maximum preload time before forcing the completion (0 disables it).").Default(preload.DefaultSafetyTimeout.String()).DurationVar(&c.safetyTimeout)
	c.Cmd.Flag("concurrency", "Maximum simultaneous asset loads (0 is unbounded).").Default("0").IntVar(&c.concurrency)
	c.Cmd.Flag("image-timeout", "Load timeout for image assets.").Default(loader.DefaultImageTimeout.String()).DurationVar(&c.timeouts.Image)
	c.Cmd.Flag("video-timeout", "Load timeout for video assets.").Default(loader.DefaultVideoTimeout.String()).DurationVar(&c.timeouts.Video)
	c.Cmd.Flag("audio-timeout", "Load timeout for audio assets.").Default(loader.DefaultAudioTimeout.String()).DurationVar(&c.timeouts.Audio)
	c.Cmd.Flag("font-timeout", "Load timeout for font assets.").Default(loader.DefaultFontTimeout.String()).DurationVar(&c.timeouts.Font)
	c.Cmd.Flag("play-through-bytes", "Buffered media needed to consider video and audio playable.").Default("1MiB").BytesVar(&c.playThroughBytes)
	c.Cmd.Flag("max-asset-bytes", "Maximum size read for image and font assets.").Default("64MiB").BytesVar(&c.maxAssetBytes)
	c.Cmd.Flag("no-history", "Don't record the run in the history.").BoolVar(&c.noHistory)
	c.Cmd.Flag("no-screen", "Don't render the preload screen.").BoolVar(&c.noScreen)
	c.Cmd.Flag("smooth-step", "Maximum percent the preload screen advances per tick.").Default(fmt.Sprint(progress.DefaultMaxStep)).IntVar(&c.smoothStep)
	c.Cmd.Flag("tick-interval", "Preload screen refresh interval.").Default(screen.DefaultTickInterval.String()).DurationVar(&c.tickInterval)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	baseDir, err := sourcesDir(c.baseDir, c.manifestPath)
	if err != nil {
		return err
	}

	manifestRepo, manifestFile, err := newManifestRepository(c.manifestPath, logger)
	if err != nil {
		return err
	}

	// Initialize history storage.
	var runRepo storage.RunRepository
	if c.noHistory {
		runRepo, err = memory.NewRepository(memory.RepositoryConfig{Logger: logger})
		if err != nil {
			return fmt.Errorf("could not create repository: %w", err)
		}
	} else {
		repo, err := newRunRepository(ctx, c.rootCmd)
		if err != nil {
			return err
		}
		defer repo.Close()
		runRepo = repo
	}

	fetcher := loader.NewSourceFetcher(
		loader.NewHTTPFetcher(&http.Client{}),
		loader.NewFSFetcher(os.DirFS(baseDir)),
	)
	l, err := loader.New(loader.Config{
		Fetcher:          fetcher,
		PlayThroughBytes: int64(c.playThroughBytes),
		MaxAssetBytes:    int64(c.maxAssetBytes),
		Timeouts:         c.timeouts,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("could not create loader: %w", err)
	}

	// Zero disables the safety timeout on the CLI.
	safetyTimeout := c.safetyTimeout
	if safetyTimeout == 0 {
		safetyTimeout = -1
	}
	settleDelay := c.settleDelay
	if settleDelay == 0 {
		settleDelay = -1
	}

	pipeline, err := preload.NewPipeline(preload.PipelineConfig{
		Loader:         l,
		SettleDelay:    settleDelay,
		SafetyTimeout:  safetyTimeout,
		MaxConcurrency: c.concurrency,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create pipeline: %w", err)
	}

	svc, err := preloadrun.NewService(preloadrun.ServiceConfig{
		ManifestRepository: manifestRepo,
		RunRepository:      runRepo,
		Pipeline:           pipeline,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	req := preloadrun.Request{
		ManifestPath: manifestFile,
		SmoothStep:   c.smoothStep,
		TickInterval: c.tickInterval,
		OnReady:      func() { logger.Debugf("Ready signal fired") },
	}
	if !c.noScreen {
		req.StatusWriter = c.rootCmd.Stderr
	}

	report, runErr := svc.Run(ctx, req)

	// Interrupted runs still have a partial report.
	if report != nil {
		if err := newPrinter(c.format, c.rootCmd.Stdout).PrintRun(report.Run); err != nil {
			return fmt.Errorf("could not print run: %w", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("could not preload assets: %w", runErr)
	}

	return nil
}
