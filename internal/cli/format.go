package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/danieljhkim/buildprep/internal/engine"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/validate"
)

var (
	// fatih/color disables itself when stdout is not a TTY
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
	dimColor     = color.New(color.FgHiBlack)
)

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Println()
	_, _ = headerColor.Printf("▸ %s\n", title)
	fmt.Println()
}

// PrintSubsection prints a subsection header
func PrintSubsection(title string) {
	_, _ = infoColor.Printf("  %s\n", title)
}

// PrintSuccess prints a success message with a checkmark
func PrintSuccess(msg string) {
	_, _ = successColor.Printf("✓ %s\n", msg)
}

// PrintWarning prints a warning message with a warning symbol
func PrintWarning(msg string) {
	_, _ = warningColor.Printf("⚠ %s\n", msg)
}

// PrintError prints an error message to stderr
func PrintError(msg string) {
	_, _ = errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

// PrintInfo prints an informational message
func PrintInfo(msg string) {
	fmt.Println(msg)
}

// PrintLabelValue prints a label-value pair with proper formatting
func PrintLabelValue(label, value string) {
	_, _ = labelColor.Printf("  %s: ", label)
	_, _ = valueColor.Println(value)
}

// PrintList prints a list of items with bullet points
func PrintList(items []string, indent int) {
	indentStr := strings.Repeat("  ", indent)
	for _, item := range items {
		_, _ = infoColor.Printf("%s• %s\n", indentStr, item)
	}
}

// PrintEmptyState prints a message when there's no data to show
func PrintEmptyState(msg string) {
	_, _ = dimColor.Printf("  %s\n", msg)
}

// PrintCount prints a count with proper formatting
func PrintCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

// newTable returns a table writer in the CLI's style. Columns listed in
// rightAligned (1-based) are right aligned.
func newTable(header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	tw.SetStyle(table.StyleLight)
	return tw
}

// PrintTable renders tw to stdout.
func PrintTable(tw table.Writer) {
	fmt.Println(tw.Render())
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// printValidation prints the issues of one validation result as a table.
func printValidation(title string, r *validate.Result) {
	if title != "" {
		PrintSubsection(title)
	}
	if r.IsValid {
		PrintSuccess(r.Summary)
	} else {
		PrintError(r.Summary)
	}
	if r.TotalIssues() == 0 {
		return
	}

	tw := newTable(table.Row{"Severity", "Code", "File", "Message"})
	for _, issue := range r.Errors {
		tw.AppendRow(table.Row{errorColor.Sprint("error"), issue.Code, issue.File, issue.Message})
	}
	for _, issue := range r.Warnings {
		tw.AppendRow(table.Row{warningColor.Sprint("warning"), issue.Code, issue.File, issue.Message})
	}
	PrintTable(tw)
}

// printPlan lists planned operations and conflicts.
func printPlan(run *engine.RunResult) {
	if run == nil || run.Plan == nil {
		return
	}
	if len(run.Plan.Conflicts) > 0 {
		PrintSection("Conflicts Detected")
		for _, c := range run.Plan.Conflicts {
			PrintError(fmt.Sprintf("%s: %s", c.Path, c.Reason))
		}
		return
	}

	PrintSection("Plan")
	if len(run.Plan.Operations) == 0 {
		PrintEmptyState("Nothing to do")
		return
	}
	ops := make([]string, 0, len(run.Plan.Operations))
	for _, op := range run.Plan.Operations {
		ops = append(ops, fmt.Sprintf("%s %s: %s", op.Type, op.Kind, op.RelTarget))
	}
	PrintList(ops, 1)
}

// printRun prints the counters and patch outcomes of a run.
func printRun(run *engine.RunResult) {
	if run == nil {
		return
	}

	for _, p := range run.Patches {
		switch p.Status {
		case patch.StatusApplied:
			PrintLabelValue("patched", p.File)
		case patch.StatusDryRun:
			PrintLabelValue("would patch", p.File)
			if p.Preview != "" {
				_, _ = dimColor.Println(p.Preview)
			}
		case patch.StatusUnchanged:
			PrintLabelValue("unchanged", p.File)
		default:
			PrintLabelValue(string(p.Status), fmt.Sprintf("%s (%s)", p.File, p.Message))
		}
	}

	verb := "Prepared"
	if run.DryRun {
		verb = "Dry run"
	}
	PrintSuccess(fmt.Sprintf("%s: copied=%d moved=%d deleted=%d patched=%d skipped=%d (%s)",
		verb, run.Copied, run.Moved, run.Deleted, run.Patched, run.Skipped, run.Duration.Round(time.Millisecond)))
}
