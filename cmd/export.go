package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/rc/internal/models"
)

var (
	exportFormat string
	exportCycle  string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cycle results as JSON, CSV, or Markdown",
	Long: `Export recorded review cycles in various formats.

Without --cycle, every recorded iteration is exported. With --cycle,
only that cycle's iterations are exported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportCycle, "cycle", "", "Restrict export to one cycle ID")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 100, "Maximum number of iterations to export")
	rootCmd.AddCommand(exportCmd)
}

func exportRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	cycles, err := s.ListCycles(ctx, exportCycle, exportLimit)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(cycles)
	case "csv":
		return exportCSV(cycles)
	case "markdown":
		return exportMarkdown(cycles)
	default:
		return fmt.Errorf("unknown export format: %s (use: json, csv, markdown)", exportFormat)
	}
}

func exportCSV(cycles []*models.ReviewCycle) error {
	w := csv.NewWriter(ui.Out)
	w.Write([]string{"Cycle", "Iteration", "State", "Priority", "File", "LineStart", "LineEnd", "Category", "Confidence", "Agreement", "Message"})
	for _, c := range cycles {
		for i := range c.IssuesFound {
			ci := &c.IssuesFound[i]
			w.Write([]string{
				c.CycleID,
				fmt.Sprintf("%d", c.Iteration),
				string(c.State),
				string(ci.Priority),
				ci.File,
				fmt.Sprintf("%d", ci.Lines.Start),
				fmt.Sprintf("%d", ci.Lines.End),
				ci.Category,
				fmt.Sprintf("%.2f", ci.Confidence),
				fmt.Sprintf("%.2f", ci.AgreementRatio),
				ci.Message(),
			})
		}
	}
	w.Flush()
	return w.Error()
}

func exportMarkdown(cycles []*models.ReviewCycle) error {
	fmt.Fprintln(ui.Out, "# Review Cycles")
	for _, c := range cycles {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "## %s iteration %d (%s)\n", c.CycleID, c.Iteration, c.State)
		fmt.Fprintln(ui.Out)
		if c.Reason != "" {
			fmt.Fprintf(ui.Out, "Escalated: %s\n\n", c.Reason)
		}
		if len(c.IssuesFound) == 0 {
			fmt.Fprintln(ui.Out, "No issues above the confidence floor.")
			continue
		}
		fmt.Fprintln(ui.Out, "| Priority | File | Lines | Category | Conf | Message |")
		fmt.Fprintln(ui.Out, "|----------|------|-------|----------|------|---------|")
		for i := range c.IssuesFound {
			ci := &c.IssuesFound[i]
			lines := fmt.Sprintf("%d", ci.Lines.Start)
			if ci.Lines.End != ci.Lines.Start {
				lines = fmt.Sprintf("%d-%d", ci.Lines.Start, ci.Lines.End)
			}
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %.2f | %s |\n",
				ci.Priority, ci.File, lines, ci.Category, ci.Confidence, ci.Message())
		}
		if len(c.FilteredIssues) > 0 {
			fmt.Fprintf(ui.Out, "\n%d low-confidence issue(s) retained in the appendix.\n", len(c.FilteredIssues))
		}
	}
	return nil
}
