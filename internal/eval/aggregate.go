package eval

import (
	"github.com/joescharf/prarena/internal/models"
)

// Aggregate reduces a combination's judgment records into per-criterion
// rates and applies the threshold policy. It is a pure function of its
// inputs: re-running it over the same record set yields an identical
// result regardless of the order cells completed in.
//
// ok is false when the combination has no evaluated records at all; such
// combinations have no rates and must not be ranked.
func Aggregate(combo models.Combination, promptContent string, records []models.JudgmentRecord, details []models.CellDetail, th Thresholds) (result models.CombinationResult, ok bool) {
	if len(records) == 0 {
		return models.CombinationResult{}, false
	}

	var yes, total [3]int
	for _, rec := range records {
		i := criterionIndex(rec.Criterion)
		if i < 0 {
			continue
		}
		total[i]++
		if rec.Verdict {
			yes[i]++
		}
	}

	critical := rate(yes[0], total[0])
	hallucination := rate(yes[1], total[1])
	helpfulness := rate(yes[2], total[2])

	composite := Composite(critical, hallucination, helpfulness)

	result = models.CombinationResult{
		Model:                 combo.Model,
		PromptID:              combo.PromptID,
		PromptContent:         promptContent,
		CriticalDetectionRate: critical,
		HallucinationRate:     hallucination,
		HelpfulnessRate:       helpfulness,
		Composite:             composite,
		Passed:                critical >= th.CriticalMin && hallucination <= th.HallucinationMax,
		Verdict:               verdict(composite, th),
		Details:               details,
	}
	return result, true
}

// Composite collapses the three rates into a single scalar: the mean of
// detection and helpfulness, discounted by the hallucination rate.
func Composite(critical, hallucination, helpfulness float64) float64 {
	return (critical + helpfulness) / 2 * (1 - hallucination)
}

func verdict(composite float64, th Thresholds) models.Verdict {
	switch {
	case composite >= th.RecommendMin:
		return models.VerdictRecommended
	case composite >= th.AcceptMin:
		return models.VerdictAcceptable
	default:
		return models.VerdictRejected
	}
}

func criterionIndex(c models.Criterion) int {
	switch c {
	case models.CriterionCriticalDetection:
		return 0
	case models.CriterionHallucination:
		return 1
	case models.CriterionHelpfulness:
		return 2
	default:
		return -1
	}
}

// rate returns yes/total, or 0 when the criterion has no evaluated records.
func rate(yes, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(yes) / float64(total)
}
