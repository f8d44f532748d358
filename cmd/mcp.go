package cmd

import (
	"github.com/spf13/cobra"

	mcpint "github.com/joescharf/rc/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents query rc natively for cycle status and
consolidated reports, and trigger reviews. Configure with:

  {
    "mcpServers": {
      "rc": { "command": "rc", "args": ["mcp"] }
    }
  }

Available tools: rc_list_cycles, rc_cycle_status, rc_last_report,
rc_run_review`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		r, err := newRunner(s)
		if err != nil {
			return err
		}

		return mcpint.NewServer(s, r).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
