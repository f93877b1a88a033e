package commands

import "github.com/alecthomas/kingpin/v2"

// HistoryCommand is the parent command for the run history subcommands.
type HistoryCommand struct {
	Cmd *kingpin.CmdClause
}

// NewHistoryCommand returns the history parent command.
func NewHistoryCommand(app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{}
	c.Cmd = app.Command("history", "Inspect the preload run history.")
	return c
}
