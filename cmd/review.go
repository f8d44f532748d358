package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/aggregate"
	"github.com/joescharf/rc/internal/cycle"
	"github.com/joescharf/rc/internal/dedup"
	"github.com/joescharf/rc/internal/models"
	"github.com/joescharf/rc/internal/orchestrator"
	"github.com/joescharf/rc/internal/output"
	"github.com/joescharf/rc/internal/pipeline"
	"github.com/joescharf/rc/internal/reviewer"
	"github.com/joescharf/rc/internal/store"
)

var (
	reviewCycleID   string
	reviewReviewers []string
)

var reviewCmd = &cobra.Command{
	Use:   "review [files...]",
	Short: "Run the configured reviewers over files and consolidate their findings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd.Context(), args)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewCycleID, "cycle", "", "Cycle ID to record this iteration under (default: new cycle)")
	reviewCmd.Flags().StringSliceVar(&reviewReviewers, "reviewers", nil, "Reviewer IDs to run (default: entire roster)")
	rootCmd.AddCommand(reviewCmd)
}

// runner assembles the full review pipeline from config. It also
// satisfies the MCP server's ReviewRunner.
type runner struct {
	store  store.Store
	roster *reviewer.Roster
}

func newRunner(s store.Store) (*runner, error) {
	roster, err := reviewer.LoadRoster(viper.GetString("roster_path"))
	if err != nil {
		return nil, fmt.Errorf("load reviewer roster: %w", err)
	}
	return &runner{store: s, roster: roster}, nil
}

// Review runs one consolidated review iteration and records it.
func (r *runner) Review(ctx context.Context, cycleID string, reviewerIDs []string, files []string) (*models.ReviewCycle, error) {
	adapters, err := r.roster.Adapters(viper.GetString("anthropic.api_key"), reviewerIDs)
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no reviewers selected")
	}

	aggCfg := aggregate.DefaultConfig()
	for id, w := range r.roster.Weights() {
		aggCfg.Weights[id] = w
	}

	p := pipeline.New(
		orchestrator.New(orchestrator.DefaultConfig()),
		dedup.New(dedup.DefaultConfig()),
		aggregate.New(aggCfg),
		cycle.New(r.store, cycle.DefaultConfig()),
		r.store,
		pipeline.DefaultConfig(),
	)

	result, err := p.Run(ctx, cycleID, adapters, files)
	if err != nil {
		return nil, err
	}
	return result.Cycle, nil
}

func reviewRun(ctx context.Context, files []string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	r, err := newRunner(s)
	if err != nil {
		return err
	}

	cycleID := reviewCycleID
	if cycleID == "" {
		cycleID = fmt.Sprintf("cycle-%s", time.Now().UTC().Format("20060102-150405"))
	}

	if dryRun {
		ui.DryRunMsg("would review %d file(s) under cycle %s", len(files), cycleID)
		return nil
	}

	ui.Info("Reviewing %d file(s) under cycle %s", len(files), output.Cyan(cycleID))

	c, err := r.Review(ctx, cycleID, reviewReviewers, files)
	if err != nil {
		return err
	}

	printCycle(c)
	return nil
}

// printCycle renders one iteration's consolidated result.
func printCycle(c *models.ReviewCycle) {
	ui.Success("Iteration %d recorded (%s)", c.Iteration, output.StateColor(string(c.State)))
	if c.Reason != "" {
		ui.Warning("Escalated: %s", c.Reason)
	}

	if len(c.IssuesFound) == 0 {
		ui.Info("No issues above the confidence floor")
	} else {
		table := ui.Table([]string{"PRIORITY", "FILE", "LINES", "CATEGORY", "CONF", "AGREE", "MESSAGE"})
		for i := range c.IssuesFound {
			ci := &c.IssuesFound[i]
			lines := fmt.Sprintf("%d", ci.Lines.Start)
			if ci.Lines.End != ci.Lines.Start {
				lines = fmt.Sprintf("%d-%d", ci.Lines.Start, ci.Lines.End)
			}
			table.Append([]string{
				output.PriorityColor(string(ci.Priority)),
				ci.File,
				lines,
				ci.Category,
				fmt.Sprintf("%.2f", ci.Confidence),
				fmt.Sprintf("%.0f%%", ci.AgreementRatio*100),
				truncate(ci.Message(), 60),
			})
		}
		table.Render()
	}

	if len(c.FilteredIssues) > 0 {
		ui.Info("%d issue(s) below the confidence floor kept in the appendix", len(c.FilteredIssues))
	}

	if c.Iteration > 1 {
		ui.Info("Fixed %d, new %d, still present %d (improvement %.0f%%, net %+d)",
			c.IssuesFixedFromPrevious, c.NewIssuesIntroduced, c.IssuesStillPresent,
			c.ImprovementRate*100, c.NetImprovement)
	}

	if c.State == models.CycleEscalated {
		for _, cs := range cycle.RootCauseSummary(c.IssuesFound) {
			flags := ""
			for _, f := range cs.Flags {
				flags += " [" + string(f) + "]"
			}
			ui.Warning("  %s: %d%s", cs.Category, cs.Count, flags)
		}
	}
}

// truncate shortens s to max runes, never splitting a rune.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
