package models

// Verdict is the tiered classification of a combination's repo-stage
// performance.
type Verdict string

const (
	VerdictRecommended Verdict = "recommended"
	VerdictAcceptable  Verdict = "acceptable"
	VerdictRejected    Verdict = "rejected"
)

// CombinationResult holds the aggregated rates and ranking for one
// (model, prompt) combination. Rates are fractions in [0,1] over the
// evaluated PR set; a combination with zero evaluated PRs never becomes
// a CombinationResult.
type CombinationResult struct {
	Model                 string       `json:"model"`
	PromptID              string       `json:"prompt_id"`
	PromptContent         string       `json:"prompt_content"`
	CriticalDetectionRate float64      `json:"critical_detection_rate"`
	HallucinationRate     float64      `json:"hallucination_rate"`
	HelpfulnessRate       float64      `json:"helpfulness_rate"`
	Composite             float64      `json:"composite"`
	Passed                bool         `json:"passed"`
	Verdict               Verdict      `json:"verdict"`
	Rank                  int          `json:"rank"`
	Details               []CellDetail `json:"details,omitempty"`
}

// Combination returns the identity key of this result.
func (r *CombinationResult) Combination() Combination {
	return Combination{Model: r.Model, PromptID: r.PromptID}
}
