package models

import "time"

// Run is the persisted record of a completed (or failed) evaluation run.
type Run struct {
	ID         string    `json:"id"`
	Stage      RunStage  `json:"stage"`
	Status     RunStatus `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}
