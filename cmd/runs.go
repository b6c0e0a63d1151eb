package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/prarena/internal/models"
	"github.com/joescharf/prarena/internal/output"
)

var (
	runsStage string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived evaluation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		runs, err := s.ListRuns(cmd.Context(), models.RunStage(runsStage), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			ui.Info("No archived runs")
			return nil
		}

		table := ui.Table([]string{"ID", "STAGE", "STATUS", "STARTED", "DURATION"})
		for _, r := range runs {
			_ = table.Append([]string{
				r.ID,
				string(r.Stage),
				runStatusColor(r.Status),
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
			})
		}
		_ = table.Render()
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the archived leaderboard of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		run, err := s.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		results, err := s.GetRunResults(cmd.Context(), run.ID)
		if err != nil {
			return err
		}

		ui.Info("Run %s (%s, %s)", run.ID, run.Stage, run.Status)
		if run.FailReason != "" {
			ui.Warning("Fail reason: %s", run.FailReason)
		}
		ui.ResultsTable(results)
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStage, "stage", "", "Filter by stage: global or repo")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "Maximum number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runStatusColor(status models.RunStatus) string {
	switch status {
	case models.RunStatusComplete:
		return output.Green(string(status))
	case models.RunStatusFailed:
		return output.Red(string(status))
	default:
		return string(status)
	}
}
