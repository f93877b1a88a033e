package printer

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/slok/preload/internal/model"
)

// TablePrinter prints preload information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintRun prints the details of a run and its outcomes.
func (t *TablePrinter) PrintRun(run model.Run) error {
	summary := run.Summary()

	fmt.Fprintf(t.writer, "ID:         %s\n", run.ID)
	if run.ManifestName != "" {
		fmt.Fprintf(t.writer, "Manifest:   %s\n", run.ManifestName)
	}
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(run.StartedAt))
	fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(run.Duration()))
	fmt.Fprintf(t.writer, "Progress:   %d/%d (%d%%)\n", run.Completed, run.Total, model.PercentOf(run.Completed, run.Total))
	fmt.Fprintf(t.writer, "Result:     %s\n", runResult(run))
	fmt.Fprintf(t.writer, "Outcomes:   %d loaded, %d failed, %d timed out\n",
		summary[model.OutcomeStatusLoaded],
		summary[model.OutcomeStatusFailed],
		summary[model.OutcomeStatusTimedOut],
	)

	if len(run.Outcomes) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "KIND\tSOURCE\tSTATUS\tSIZE\tELAPSED\tERROR")
	for _, o := range run.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Descriptor.Kind,
			o.Descriptor.Source,
			o.Status(),
			FormatBytes(o.Bytes),
			FormatDuration(o.Elapsed),
			o.Err,
		)
	}

	return nil
}

// PrintRunList prints runs in a table format.
func (t *TablePrinter) PrintRunList(runs []model.Run) error {
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tMANIFEST\tASSETS\tLOADED\tFAILED\tTIMED OUT\tRESULT\tDURATION\tSTARTED")
	for _, r := range runs {
		summary := r.Summary()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.ManifestName,
			r.Total,
			summary[model.OutcomeStatusLoaded],
			summary[model.OutcomeStatusFailed],
			summary[model.OutcomeStatusTimedOut],
			runResult(r),
			FormatDuration(r.Duration()),
			TimeAgo(r.StartedAt),
		)
	}

	return nil
}

// PrintManifestCheck prints a manifest check result.
func (t *TablePrinter) PrintManifestCheck(check model.ManifestCheck) error {
	kinds := slices.Sorted(maps.Keys(check.Counts))
	counts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		counts = append(counts, fmt.Sprintf("%s: %d", k, check.Counts[k]))
	}

	probed := slices.ContainsFunc(check.Assets, func(a model.AssetCheck) bool { return a.Probed })

	if check.Manifest.Name != "" {
		fmt.Fprintf(t.writer, "Name:         %s\n", check.Manifest.Name)
	}
	fmt.Fprintf(t.writer, "Assets:       %d (%s)\n", len(check.Assets), strings.Join(counts, ", "))
	if probed {
		fmt.Fprintf(t.writer, "Unreachable:  %d\n", check.Unreachable)
	}

	if len(check.Assets) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if !probed {
		fmt.Fprintln(tw, "KIND\tSOURCE\tFONT FAMILY")
		for _, a := range check.Assets {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Descriptor.Kind, a.Descriptor.Source, a.Descriptor.FontFamily)
		}
		return nil
	}

	fmt.Fprintln(tw, "KIND\tSOURCE\tFONT FAMILY\tREACHABLE\tERROR")
	for _, a := range check.Assets {
		reachable := "yes"
		if a.Err != "" {
			reachable = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Descriptor.Kind, a.Descriptor.Source, a.Descriptor.FontFamily, reachable, a.Err)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
