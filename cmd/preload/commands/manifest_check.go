package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/preload/internal/app/manifestcheck"
	"github.com/slok/preload/internal/loader"
)

// ManifestCheckCommand validates an asset manifest.
type ManifestCheckCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	manifestPath string
	baseDir      string
	probe        bool
	probeTimeout time.Duration
	format       string
}

// NewManifestCheckCommand returns the manifest check command.
func NewManifestCheckCommand(rootCmd *RootCommand, manifestCmd *ManifestCommand) *ManifestCheckCommand {
	c := &ManifestCheckCommand{rootCmd: rootCmd}

	c.Cmd = manifestCmd.Cmd.Command("check", "Validate an asset manifest and optionally probe its sources.")
	c.Cmd.Arg("manifest", "Path to the YAML asset manifest.").Required().StringVar(&c.manifestPath)
	c.Cmd.Flag("base-dir", "Directory local asset sources are resolved from (defaults to the manifest directory).").StringVar(&c.baseDir)
	c.Cmd.Flag("probe", "Open every asset source to check it's reachable.").BoolVar(&c.probe)
	c.Cmd.Flag("probe-timeout", "Timeout for each remote source probe.").Default("10s").DurationVar(&c.probeTimeout)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ManifestCheckCommand) Name() string { return c.Cmd.FullCommand() }

func (c ManifestCheckCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	baseDir, err := sourcesDir(c.baseDir, c.manifestPath)
	if err != nil {
		return err
	}

	manifestRepo, manifestFile, err := newManifestRepository(c.manifestPath, logger)
	if err != nil {
		return err
	}

	fetcher := loader.NewSourceFetcher(
		loader.NewHTTPFetcher(&http.Client{Timeout: c.probeTimeout}),
		loader.NewFSFetcher(os.DirFS(baseDir)),
	)

	svc, err := manifestcheck.NewService(manifestcheck.ServiceConfig{
		ManifestRepository: manifestRepo,
		Fetcher:            fetcher,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	check, err := svc.Run(ctx, manifestcheck.Request{
		ManifestPath: manifestFile,
		Probe:        c.probe,
	})
	if err != nil {
		return fmt.Errorf("could not check manifest: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintManifestCheck(*check); err != nil {
		return fmt.Errorf("could not print manifest check: %w", err)
	}

	if check.Unreachable > 0 {
		return fmt.Errorf("%d asset sources are unreachable", check.Unreachable)
	}

	return nil
}
