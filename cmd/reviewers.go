package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/reviewer"
)

var reviewersCmd = &cobra.Command{
	Use:   "reviewers",
	Short: "List the configured reviewer roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		roster, err := reviewer.LoadRoster(viper.GetString("roster_path"))
		if err != nil {
			return fmt.Errorf("load reviewer roster: %w", err)
		}

		table := ui.Table([]string{"ID", "KIND", "MODEL / COMMAND", "FOCUS", "WEIGHT"})
		for _, e := range roster.Reviewers {
			target := e.Model
			if e.Kind == "command" {
				target = e.Command
			}
			weight := "1.0"
			if e.Weight > 0 {
				weight = fmt.Sprintf("%.1f", e.Weight)
			}
			table.Append([]string{e.ID, e.Kind, target, e.Focus, weight})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewersCmd)
}
