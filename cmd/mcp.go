package cmd

import (
	"github.com/spf13/cobra"

	"github.com/remedyhq/remedy/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients drive fix sessions natively. Configure with:

  {
    "mcpServers": {
      "remedy": { "command": "remedy", "args": ["mcp"] }
    }
  }

Available tools: remedy_create_session, remedy_get_session,
remedy_list_sessions, remedy_generate_fixes, remedy_refine_plan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := getStore()
		if err != nil {
			return err
		}
		orch, err := getOrchestrator(st)
		if err != nil {
			return err
		}

		srv := mcp.NewServer(orch)
		if err := srv.ServeStdio(cmd.Context()); err != nil {
			return err
		}
		orch.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
