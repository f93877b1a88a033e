package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/preload/internal/conventions"
	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/printer"
	storageio "github.com/slok/preload/internal/storage/io"
	"github.com/slok/preload/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug        bool
	NoLog        bool
	NoColor      bool
	LoggerType   string
	DBPath       string
	OTelEndpoint string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := conventions.DBPath(homedir.HomeDir())
	app.Flag("db-path", "Path to the SQLite run history database file.").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("otel-endpoint", "OTLP HTTP endpoint URL to export traces to, tracing is disabled when empty.").StringVar(&c.OTelEndpoint)

	return c
}

// newPrinter returns the printer for an output format.
func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case formatJSON:
		return printer.NewJSONPrinter(w)
	default: // table
		return printer.NewTablePrinter(w)
	}
}

// newRunRepository returns the SQLite run history repository, the caller must close it.
func newRunRepository(ctx context.Context, rootCmd *RootCommand) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: rootCmd.DBPath,
		Logger: rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

// newManifestRepository returns a manifest repository rooted at the manifest directory
// and the manifest file name inside it.
func newManifestRepository(manifestPath string, logger log.Logger) (*storageio.ManifestYAMLRepository, string, error) {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, "", fmt.Errorf("invalid manifest path %q: %w", manifestPath, err)
	}

	repo := storageio.NewManifestYAMLRepository(os.DirFS(filepath.Dir(abs)), logger)
	return repo, filepath.Base(abs), nil
}

// sourcesDir returns the directory local asset sources are resolved from, by default
// the manifest directory.
func sourcesDir(baseDir, manifestPath string) (string, error) {
	if baseDir == "" {
		baseDir = filepath.Dir(manifestPath)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("invalid base dir %q: %w", baseDir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid base dir %q: %w", baseDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("base dir %q is not a directory", baseDir)
	}

	return abs, nil
}
