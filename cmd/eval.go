package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/github"
	"github.com/joescharf/prarena/internal/models"
)

var (
	evalRepoURL string
	evalPRLimit int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run evaluations from the command line",
}

var evalGlobalCmd = &cobra.Command{
	Use:   "global",
	Short: "Screen every model x prompt combination against the probe dataset",
	Long: `Run the global screening evaluation: every configured model x prompt
combination reviews the built-in probe PRs, an LLM judge scores each
review, and the ranked leaderboard is printed when the run completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return evalGlobalRun(cmd.Context())
	},
}

var evalRepoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Evaluate screened combinations against a repository's closed PRs",
	Long: `Run the two-phase evaluation end to end: screen all combinations
against the probe dataset, then evaluate the survivors against real
closed PRs fetched from the given repository.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return evalRepoRun(cmd.Context())
	},
}

func init() {
	evalRepoCmd.Flags().StringVarP(&evalRepoURL, "repo", "r", "", "Repository URL or owner/name slug (required)")
	evalRepoCmd.Flags().IntVarP(&evalPRLimit, "limit", "l", 10, "Maximum number of closed PRs to fetch")
	_ = evalRepoCmd.MarkFlagRequired("repo")

	evalCmd.AddCommand(evalGlobalCmd)
	evalCmd.AddCommand(evalRepoCmd)
	rootCmd.AddCommand(evalCmd)
}

func evalGlobalRun(ctx context.Context) error {
	backend, err := requireBackend()
	if err != nil {
		return err
	}

	results, err := runGlobalStage(ctx, backend, archiver())
	if err != nil {
		return err
	}

	ui.Success("Global screening complete")
	ui.ResultsTable(results)
	passed := eval.PassedCombinations(results)
	ui.Info("%d/%d combinations passed", len(passed), len(results))
	return nil
}

func evalRepoRun(ctx context.Context) error {
	backend, err := requireBackend()
	if err != nil {
		return err
	}
	arch := archiver()

	// Phase 1: global screening.
	globalResults, err := runGlobalStage(ctx, backend, arch)
	if err != nil {
		return err
	}
	survivors := eval.PassedCombinations(globalResults)
	if len(survivors) == 0 {
		return errors.New("no combination passed the global screening")
	}
	ui.Success("Global screening: %d/%d combinations passed", len(survivors), len(globalResults))

	// Phase 2: fetch PRs and label expected focus.
	ui.Info("Fetching up to %d closed PRs from %s", evalPRLimit, evalRepoURL)
	gh := github.NewRealClient()
	prs, err := gh.ClosedPRs(evalRepoURL, evalPRLimit)
	if err != nil {
		return fmt.Errorf("fetch PRs: %w", err)
	}
	if len(prs) == 0 {
		return fmt.Errorf("no closed PRs found in %s", evalRepoURL)
	}

	cfg := evalConfig()
	ui.Info("Generating expected-focus labels for %d PRs", len(prs))
	focus := eval.GenerateFocus(ctx, backend, prs, cfg.Concurrency)
	for i := range prs {
		if f, ok := focus[prs[i].ID]; ok {
			prs[i].ExpectedFocus = f.Focus
			ui.VerboseLog("PR %s focus: %s", prs[i].ID, f.Focus)
		}
	}

	// Phase 3: repo-stage evaluation of the survivors.
	sysPrompts, err := loadPrompts()
	if err != nil {
		return err
	}
	ctrl := eval.NewController(models.StageRepo, backend, arch, cfg)
	if err := ctrl.Start(survivors, sysPrompts, prs); err != nil {
		return err
	}
	results, err := waitForRun(ctx, ctrl)
	if err != nil {
		return err
	}

	ui.Success("Repository evaluation complete")
	ui.ResultsTable(results)
	return nil
}

// runGlobalStage screens every configured combination against the probe
// dataset and blocks until the run finishes.
func runGlobalStage(ctx context.Context, backend eval.Backend, arch eval.Archiver) ([]models.CombinationResult, error) {
	sysPrompts, err := loadPrompts()
	if err != nil {
		return nil, err
	}
	probes, err := eval.GlobalDataset()
	if err != nil {
		return nil, err
	}

	modelNames := viper.GetStringSlice("models")
	combos := eval.Combinations(modelNames, sysPrompts)
	ui.Info("Screening %d combinations (%d models x %d prompts) against %d probe PRs",
		len(combos), len(modelNames), len(sysPrompts), len(probes))

	ctrl := eval.NewController(models.StageGlobal, backend, arch, evalConfig())
	if err := ctrl.Start(combos, sysPrompts, probes); err != nil {
		return nil, err
	}
	return waitForRun(ctx, ctrl)
}

// waitForRun polls the controller until the run reaches a terminal state.
func waitForRun(ctx context.Context, ctrl *eval.Controller) ([]models.CombinationResult, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastStep := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		snap := ctrl.Snapshot()
		if step := currentStep(snap); step != lastStep && step != "" {
			ui.VerboseLog("%s", step)
			lastStep = step
		}

		switch snap.Status {
		case models.RunStatusComplete:
			return ctrl.Results(), nil
		case models.RunStatusFailed:
			return nil, fmt.Errorf("evaluation failed: %s", snap.FailReason)
		}
	}
}

func currentStep(snap models.RunProgress) string {
	if snap.CurrentModel == "" {
		return ""
	}
	return fmt.Sprintf("[%d/%d] %s + %s: %s (%d/%d PRs)",
		snap.CurrentIndex, snap.Total, snap.CurrentModel, snap.CurrentPrompt,
		snap.CurrentStep, snap.SubProgress, snap.SubTotal)
}

// requireBackend returns the LLM backend or an actionable error.
func requireBackend() (eval.Backend, error) {
	c := newLLMClient()
	if c == nil {
		return nil, errors.New("no Anthropic API key configured (set ANTHROPIC_API_KEY or anthropic.api_key)")
	}
	return c, nil
}

// archiver returns the run archive, or nil when the database can't be
// opened. Archiving is best-effort for CLI runs.
func archiver() eval.Archiver {
	s, err := getStore()
	if err != nil {
		ui.Warning("Run archive unavailable: %v", err)
		return nil
	}
	return s
}
