package models

// Combination identifies one (model, system prompt) pair under evaluation.
type Combination struct {
	Model    string `json:"model"`
	PromptID string `json:"prompt_id"`
}

// Key returns a stable identity string for maps and logs.
func (c Combination) Key() string {
	return c.Model + "+" + c.PromptID
}

// Criterion is one of the three judged evaluation axes.
type Criterion string

const (
	CriterionCriticalDetection Criterion = "critical_detection"
	CriterionHallucination     Criterion = "hallucination"
	CriterionHelpfulness       Criterion = "helpfulness"
)

// Criteria lists all judged criteria in evaluation order.
var Criteria = []Criterion{
	CriterionCriticalDetection,
	CriterionHallucination,
	CriterionHelpfulness,
}

// JudgmentRecord is the atomic unit of evaluation evidence: one binary
// judge outcome for a (combination, PR, criterion) triple. Verdict is the
// judge's yes/no answer to the criterion question (critical issue detected,
// hallucination present, review helpful). Records are appended during a run
// and never mutated.
type JudgmentRecord struct {
	Combination Combination `json:"combination"`
	PRID        string      `json:"pr_id"`
	Criterion   Criterion   `json:"criterion"`
	Verdict     bool        `json:"verdict"`
	Rationale   string      `json:"rationale,omitempty"`
}

// CellDetail is the per-PR evidence row attached to a combination result.
// Review text is truncated for transport; the booleans mirror the three
// judge verdicts. Evaluated is false when the review generator failed and
// the PR contributed nothing to the rates.
type CellDetail struct {
	PRID              string `json:"pr_id"`
	ExpectedFocus     string `json:"expected_focus"`
	Review            string `json:"review"`
	Evaluated         bool   `json:"evaluated"`
	CriticalDetected  bool   `json:"critical_detected"`
	Hallucinated      bool   `json:"hallucinated"`
	Helpful           bool   `json:"helpful"`
	CriticalReason    string `json:"critical_reason,omitempty"`
	HallucinationNote string `json:"hallucination_reason,omitempty"`
	Error             string `json:"error,omitempty"`
}
