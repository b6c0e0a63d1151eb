package eval

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/joescharf/prarena/internal/models"
)

// reviewDetailLimit caps the review text carried in a CellDetail row.
const reviewDetailLimit = 500

// cellResult is the outcome of one (combination, PR) cell.
type cellResult struct {
	records []models.JudgmentRecord
	detail  models.CellDetail
}

// logFunc receives one observability line per sub-step.
type logFunc func(format string, args ...any)

// runCell evaluates one (combination, PR) cell: generate a review, then
// judge it on each criterion. A generator failure yields an unevaluated
// cell with zero records; a single judge failure drops only that
// criterion's record.
func runCell(ctx context.Context, backend Backend, combo models.Combination, promptContent string, pr models.PullRequest, logf logFunc) cellResult {
	detail := models.CellDetail{
		PRID:          pr.ID,
		ExpectedFocus: pr.ExpectedFocus,
	}

	logf("  [%s] %s: generating review", combo.Key(), pr.ID)
	review, err := backend.GenerateReview(ctx, combo.Model, promptContent, pr.Diff)
	if err != nil {
		logf("  [%s] %s: review generation failed: %v", combo.Key(), pr.ID, err)
		detail.Error = fmt.Sprintf("review generation failed: %v", err)
		return cellResult{detail: detail}
	}
	logf("  [%s] %s: review generated (%d chars)", combo.Key(), pr.ID, len(review))

	detail.Evaluated = true
	detail.Review = clip(review, reviewDetailLimit)

	records := make([]models.JudgmentRecord, 0, len(models.Criteria))
	focus := pr.FocusContext()
	for _, criterion := range models.Criteria {
		res, err := backend.Judge(ctx, criterion, review, focus, pr.Diff)
		if err != nil {
			// Failed-to-evaluate: this criterion is excluded from the
			// rate denominator, the rest of the cell stands.
			logf("  [%s] %s: judge %s failed: %v", combo.Key(), pr.ID, criterion, err)
			continue
		}
		logf("  [%s] %s: %s = %v", combo.Key(), pr.ID, criterion, res.Verdict)
		records = append(records, models.JudgmentRecord{
			Combination: combo,
			PRID:        pr.ID,
			Criterion:   criterion,
			Verdict:     res.Verdict,
			Rationale:   res.Rationale,
		})

		switch criterion {
		case models.CriterionCriticalDetection:
			detail.CriticalDetected = res.Verdict
			if !res.Verdict {
				detail.CriticalReason = res.Rationale
			}
		case models.CriterionHallucination:
			detail.Hallucinated = res.Verdict
			if res.Verdict {
				detail.HallucinationNote = res.Rationale
			}
		case models.CriterionHelpfulness:
			detail.Helpful = res.Verdict
		}
	}

	return cellResult{records: records, detail: detail}
}

// clip shortens s to at most n bytes with an ellipsis marker. The cut
// backs up to a rune boundary so a multi-byte rune is never split.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
