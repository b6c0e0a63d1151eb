package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/prarena/internal/github"
	"github.com/joescharf/prarena/internal/output"
)

var prsLimit int

var prsCmd = &cobra.Command{
	Use:   "prs <repo>",
	Short: "List recently closed PRs from a repository",
	Long: `Fetch recently closed pull requests from a GitHub repository via the
gh CLI and show which would be used for a repository evaluation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gh := github.NewRealClient()
		prs, err := gh.ClosedPRs(args[0], prsLimit)
		if err != nil {
			return err
		}

		table := ui.Table([]string{"PR", "TITLE", "MERGED", "DIFF"})
		for _, pr := range prs {
			merged := output.Red("no")
			if pr.Merged {
				merged = output.Green("yes")
			}
			diff := output.Green("yes")
			if pr.Diff == "" {
				diff = output.Yellow("empty")
			}
			_ = table.Append([]string{pr.ID, preview(pr.Title, 60), merged, diff})
		}
		_ = table.Render()
		ui.Info("%d closed PRs", len(prs))
		return nil
	},
}

func init() {
	prsCmd.Flags().IntVarP(&prsLimit, "limit", "l", 20, "Maximum number of PRs to fetch")
	rootCmd.AddCommand(prsCmd)
}
