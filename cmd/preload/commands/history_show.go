package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/preload/internal/app/runshow"
)

// HistoryShowCommand shows the details of a recorded preload run.
type HistoryShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewHistoryShowCommand returns the history show command.
func NewHistoryShowCommand(rootCmd *RootCommand, historyCmd *HistoryCommand) *HistoryShowCommand {
	c := &HistoryShowCommand{rootCmd: rootCmd}

	c.Cmd = historyCmd.Cmd.Command("show", "Show a recorded preload run and its asset outcomes.")
	c.Cmd.Arg("id", "Run ID (defaults to the latest run).").StringVar(&c.id)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryShowCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := newRunRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := runshow.NewService(runshow.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	run, err := svc.Run(ctx, runshow.Request{ID: c.id})
	if err != nil {
		return fmt.Errorf("could not get run: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintRun(*run); err != nil {
		return fmt.Errorf("could not print run: %w", err)
	}

	return nil
}
