package commands

import "github.com/alecthomas/kingpin/v2"

// ManifestCommand is the parent command for the asset manifest subcommands.
type ManifestCommand struct {
	Cmd *kingpin.CmdClause
}

// NewManifestCommand returns the manifest parent command.
func NewManifestCommand(app *kingpin.Application) *ManifestCommand {
	c := &ManifestCommand{}
	c.Cmd = app.Command("manifest", "Work with asset manifests.")
	return c
}
