package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/preload/internal/app/runlist"
)

// HistoryListCommand lists the recorded preload runs.
type HistoryListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	manifest string
	limit    int
	format   string
}

// NewHistoryListCommand returns the history list command.
func NewHistoryListCommand(rootCmd *RootCommand, historyCmd *HistoryCommand) *HistoryListCommand {
	c := &HistoryListCommand{rootCmd: rootCmd}

	c.Cmd = historyCmd.Cmd.Command("list", "List the recorded preload runs, newest first.")
	c.Cmd.Flag("manifest", "Filter by manifest name.").StringVar(&c.manifest)
	c.Cmd.Flag("limit", "Maximum number of runs listed (0 is no limit).").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryListCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := newRunRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := runlist.NewService(runlist.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	runs, err := svc.Run(ctx, runlist.Request{
		ManifestFilter: c.manifest,
		Limit:          c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list runs: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintRunList(runs); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
