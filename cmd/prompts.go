package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/prarena/internal/output"
)

var promptsShowContent bool

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the candidate system prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		sysPrompts, err := loadPrompts()
		if err != nil {
			return err
		}

		if promptsShowContent {
			for _, p := range sysPrompts {
				fmt.Fprintf(ui.Out, "%s\n%s\n\n", output.Cyan(p.ID), p.Content)
			}
			return nil
		}

		table := ui.Table([]string{"ID", "PREVIEW"})
		for _, p := range sysPrompts {
			_ = table.Append([]string{p.ID, preview(p.Content, 80)})
		}
		_ = table.Render()
		return nil
	},
}

func init() {
	promptsCmd.Flags().BoolVar(&promptsShowContent, "full", false, "Print full prompt content")
	rootCmd.AddCommand(promptsCmd)
}

func preview(s string, n int) string {
	for i := range s {
		if s[i] == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
