package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/preload/internal/model"
)

// JSONPrinter prints preload information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// runOutput represents the full run output.
type runOutput struct {
	ID         string          `json:"id"`
	Manifest   string          `json:"manifest"`
	Result     string          `json:"result"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	DurationMs int64           `json:"duration_ms"`
	Total      int             `json:"total"`
	Completed  int             `json:"completed"`
	Percent    int             `json:"percent"`
	Forced     bool            `json:"forced"`
	Cancelled  bool            `json:"cancelled"`
	Summary    map[string]int  `json:"summary"`
	Outcomes   []outcomeOutput `json:"outcomes"`
}

// outcomeOutput represents a single asset load outcome output.
type outcomeOutput struct {
	Kind       string `json:"kind"`
	Source     string `json:"source"`
	FontFamily string `json:"font_family,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Bytes      int64  `json:"bytes"`
}

// runListItem represents a run in the list output (subset of fields).
type runListItem struct {
	ID         string    `json:"id"`
	Manifest   string    `json:"manifest"`
	Result     string    `json:"result"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Total      int       `json:"total"`
	Loaded     int       `json:"loaded"`
	Failed     int       `json:"failed"`
	TimedOut   int       `json:"timed_out"`
}

// manifestCheckOutput represents the manifest check output.
type manifestCheckOutput struct {
	Name        string             `json:"name"`
	Counts      map[string]int     `json:"counts"`
	Unreachable int                `json:"unreachable"`
	Assets      []assetCheckOutput `json:"assets"`
}

// assetCheckOutput represents a single asset check output.
type assetCheckOutput struct {
	Kind       string `json:"kind"`
	Source     string `json:"source"`
	FontFamily string `json:"font_family,omitempty"`
	Probed     bool   `json:"probed"`
	Error      string `json:"error,omitempty"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintRun prints the details of a run in JSON format.
func (j *JSONPrinter) PrintRun(run model.Run) error {
	summary := map[string]int{}
	for status, n := range run.Summary() {
		summary[string(status)] = n
	}

	output := runOutput{
		ID:         run.ID,
		Manifest:   run.ManifestName,
		Result:     runResult(run),
		StartedAt:  run.StartedAt.UTC(),
		DurationMs: run.Duration().Milliseconds(),
		Total:      run.Total,
		Completed:  run.Completed,
		Percent:    model.PercentOf(run.Completed, run.Total),
		Forced:     run.Forced,
		Cancelled:  run.Cancelled,
		Summary:    summary,
		Outcomes:   make([]outcomeOutput, 0, len(run.Outcomes)),
	}

	if !run.FinishedAt.IsZero() {
		utcTime := run.FinishedAt.UTC()
		output.FinishedAt = &utcTime
	}

	for _, o := range run.Outcomes {
		output.Outcomes = append(output.Outcomes, outcomeOutput{
			Kind:       string(o.Descriptor.Kind),
			Source:     o.Descriptor.Source,
			FontFamily: o.Descriptor.FontFamily,
			Status:     string(o.Status()),
			Error:      o.Err,
			ElapsedMs:  o.Elapsed.Milliseconds(),
			Bytes:      o.Bytes,
		})
	}

	return j.encode(output)
}

// PrintRunList prints runs in JSON format with a subset of fields.
func (j *JSONPrinter) PrintRunList(runs []model.Run) error {
	items := make([]runListItem, len(runs))
	for i, r := range runs {
		summary := r.Summary()
		items[i] = runListItem{
			ID:         r.ID,
			Manifest:   r.ManifestName,
			Result:     runResult(r),
			StartedAt:  r.StartedAt.UTC(),
			DurationMs: r.Duration().Milliseconds(),
			Total:      r.Total,
			Loaded:     summary[model.OutcomeStatusLoaded],
			Failed:     summary[model.OutcomeStatusFailed],
			TimedOut:   summary[model.OutcomeStatusTimedOut],
		}
	}

	return j.encode(items)
}

// PrintManifestCheck prints a manifest check result in JSON format.
func (j *JSONPrinter) PrintManifestCheck(check model.ManifestCheck) error {
	output := manifestCheckOutput{
		Name:        check.Manifest.Name,
		Counts:      map[string]int{},
		Unreachable: check.Unreachable,
		Assets:      make([]assetCheckOutput, 0, len(check.Assets)),
	}

	for kind, n := range check.Counts {
		output.Counts[string(kind)] = n
	}

	for _, a := range check.Assets {
		output.Assets = append(output.Assets, assetCheckOutput{
			Kind:       string(a.Descriptor.Kind),
			Source:     a.Descriptor.Source,
			FontFamily: a.Descriptor.FontFamily,
			Probed:     a.Probed,
			Error:      a.Err,
		})
	}

	return j.encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
