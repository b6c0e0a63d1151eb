package models

import "time"

// RunStatus is the lifecycle state of an evaluation run.
type RunStatus string

const (
	RunStatusIdle     RunStatus = "idle"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// RunStage distinguishes the repo-independent screening run from the
// repo-specific evaluation run.
type RunStage string

const (
	StageGlobal RunStage = "global"
	StageRepo   RunStage = "repo"
)

// RunProgress is the pollable snapshot of one evaluation run. One cell is
// one (combination, PR) pair; CurrentIndex counts completed cells and only
// ever increases, reaching Total exactly when the run completes.
type RunProgress struct {
	Stage         RunStage            `json:"stage"`
	Status        RunStatus           `json:"status"`
	CurrentIndex  int                 `json:"progress"`
	Total         int                 `json:"total"`
	CurrentModel  string              `json:"current_model,omitempty"`
	CurrentPrompt string              `json:"current_prompt,omitempty"`
	CurrentPR     string              `json:"current_pr,omitempty"`
	CurrentStep   string              `json:"current_step,omitempty"`
	SubProgress   int                 `json:"sub_progress,omitempty"`
	SubTotal      int                 `json:"sub_total,omitempty"`
	StartedAt     time.Time           `json:"started_at,omitzero"`
	Elapsed       time.Duration       `json:"elapsed"`
	Logs          []string            `json:"logs"`
	Results       []CombinationResult `json:"results,omitempty"`
	FailReason    string              `json:"fail_reason,omitempty"`
}
