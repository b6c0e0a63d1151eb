// Package eval implements the model/prompt evaluation engine: the
// combination space, the per-cell runner, the run controller with its
// pollable progress state, and the aggregation and ranking policy.
package eval

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/prarena/internal/llm"
	"github.com/joescharf/prarena/internal/models"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in flight.
	ErrAlreadyRunning = errors.New("evaluation already running")

	// ErrBadConfig is returned by Start when the model or prompt set is
	// unusable. The run never transitions out of its previous state.
	ErrBadConfig = errors.New("invalid evaluation configuration")
)

// Backend is the LLM capability surface the evaluator depends on.
// *llm.Client satisfies it; tests substitute stubs.
type Backend interface {
	GenerateReview(ctx context.Context, model, systemPrompt, diff string) (string, error)
	Judge(ctx context.Context, criterion models.Criterion, review, focus, diff string) (*llm.JudgeResult, error)
	GenerateFocus(ctx context.Context, title, diff string) (*llm.Focus, error)
}

// Thresholds holds the configurable scoring policy.
type Thresholds struct {
	// Global-stage pass gate.
	CriticalMin      float64
	HallucinationMax float64
	// Verdict tiers on the composite score.
	RecommendMin float64
	AcceptMin    float64
}

// Config controls run execution.
type Config struct {
	Thresholds  Thresholds
	Concurrency int           // concurrent cells within a combination
	Watchdog    time.Duration // abort the run after this long without a completed cell
}

// DefaultConfig returns the default thresholds and execution limits.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			CriticalMin:      0.6,
			HallucinationMax: 0.2,
			RecommendMin:     0.75,
			AcceptMin:        0.5,
		},
		Concurrency: 4,
		Watchdog:    5 * time.Minute,
	}
}

// Combinations returns the cartesian product of models and prompts in
// deterministic order: models outer, prompts inner. Progress numbering
// and ranking tie-breaks depend on this order being stable.
func Combinations(modelNames []string, sysPrompts []models.SystemPrompt) []models.Combination {
	combos := make([]models.Combination, 0, len(modelNames)*len(sysPrompts))
	for _, m := range modelNames {
		for _, p := range sysPrompts {
			combos = append(combos, models.Combination{Model: m, PromptID: p.ID})
		}
	}
	return combos
}

// PassedCombinations returns the combinations that survived the global
// screening, in result order.
func PassedCombinations(results []models.CombinationResult) []models.Combination {
	var out []models.Combination
	for _, r := range results {
		if r.Passed {
			out = append(out, r.Combination())
		}
	}
	return out
}
