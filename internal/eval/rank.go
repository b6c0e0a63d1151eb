package eval

import (
	"sort"

	"github.com/joescharf/prarena/internal/models"
)

// Rank orders results best-first and assigns a dense 1..N rank. The order
// is a pure function of the result set: composite score descending, then
// higher critical detection, then lower hallucination, then lexicographic
// (model, prompt id) so ties never depend on cell completion order.
func Rank(results []models.CombinationResult) []models.CombinationResult {
	out := make([]models.CombinationResult, len(results))
	copy(out, results)

	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.CriticalDetectionRate != b.CriticalDetectionRate {
			return a.CriticalDetectionRate > b.CriticalDetectionRate
		}
		if a.HallucinationRate != b.HallucinationRate {
			return a.HallucinationRate < b.HallucinationRate
		}
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		return a.PromptID < b.PromptID
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
