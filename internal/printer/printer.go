package printer

import "github.com/slok/preload/internal/model"

// Printer knows how to print preload information in different formats.
type Printer interface {
	PrintRun(run model.Run) error
	PrintRunList(runs []model.Run) error
	PrintManifestCheck(check model.ManifestCheck) error
	PrintMessage(msg string) error
}

// runResult summarizes how a run ended.
func runResult(r model.Run) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Forced:
		return "forced"
	default:
		return "ready"
	}
}
