package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/github"
	"github.com/joescharf/prarena/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding-agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a coding agent screen reviewer configurations and read the
leaderboard natively. Configure with:

  {
    "mcpServers": {
      "prarena": { "command": "prarena", "args": ["mcp"] }
    }
  }

Available tools: prarena_list_models, prarena_list_prompts,
prarena_fetch_prs, prarena_start_global_eval, prarena_eval_status,
prarena_eval_results, prarena_run_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sysPrompts, err := loadPrompts()
		if err != nil {
			return err
		}

		// Best-effort store; MCP tools degrade gracefully without it.
		s, err := getStore()
		if err != nil {
			ui.Warning("Run archive unavailable: %v", err)
			s = nil
		}

		var backend eval.Backend
		if c := newLLMClient(); c != nil {
			backend = c
		}

		srv := mcp.NewServer(s, github.NewRealClient(), backend,
			viper.GetStringSlice("models"), sysPrompts, evalConfig())
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
