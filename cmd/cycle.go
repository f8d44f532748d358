package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/rc/internal/models"
	"github.com/joescharf/rc/internal/output"
	"github.com/joescharf/rc/internal/store"
)

var cycleLimit int

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Inspect review cycle history",
	Long: `Inspect review cycle history.

Running bare 'rc cycle' is the same as 'rc cycle list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cycleListRun(cmd.Context())
	},
}

var cycleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded cycle iterations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cycleListRun(cmd.Context())
	},
}

var cycleShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show the latest iteration of a cycle with reviewer outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cycleShowRun(cmd.Context(), args[0])
	},
}

func init() {
	cycleListCmd.Flags().IntVar(&cycleLimit, "limit", 20, "Maximum number of iterations to list")
	cycleCmd.AddCommand(cycleListCmd)
	cycleCmd.AddCommand(cycleShowCmd)
	rootCmd.AddCommand(cycleCmd)
}

func cycleListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	cycles, err := s.ListCycles(ctx, "", cycleLimit)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		ui.Info("No review cycles recorded yet")
		return nil
	}

	table := ui.Table([]string{"CYCLE", "ITER", "STATE", "REASON", "ISSUES", "P0", "CREATED"})
	for _, c := range cycles {
		table.Append([]string{
			c.CycleID,
			fmt.Sprintf("%d", c.Iteration),
			output.StateColor(string(c.State)),
			string(c.Reason),
			fmt.Sprintf("%d", len(c.IssuesFound)),
			fmt.Sprintf("%d", c.P0Count()),
			c.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func cycleShowRun(ctx context.Context, cycleID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	c, err := s.LatestCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cycle not found: %s", cycleID)
	}

	printCycle(c)
	return printReviewerRuns(ctx, s, c.ID)
}

func printReviewerRuns(ctx context.Context, s store.Store, cycleRowID string) error {
	runs, err := s.ListReviewerRuns(ctx, cycleRowID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	table := ui.Table([]string{"REVIEWER", "STATUS", "ISSUES", "ELAPSED", "ERROR"})
	for _, r := range runs {
		status := string(r.Status)
		switch r.Status {
		case models.OutcomeSuccess:
			status = output.Green(status)
		case models.OutcomeTimeout:
			status = output.Yellow(status)
		case models.OutcomeError:
			status = output.Red(status)
		}
		table.Append([]string{
			r.ReviewerID,
			status,
			fmt.Sprintf("%d", r.IssueCount),
			fmt.Sprintf("%dms", r.ElapsedMs),
			truncate(r.Error, 40),
		})
	}
	table.Render()
	return nil
}
