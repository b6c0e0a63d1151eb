package models

import "time"

// PullRequest is a closed PR fetched from the target repository.
// ID, Title, and Diff are fixed once fetched; Selected and ExpectedFocus
// are set by the user or the focus pipeline before a repo evaluation.
type PullRequest struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Diff          string    `json:"diff"`
	URL           string    `json:"url"`
	Merged        bool      `json:"merged"`
	Author        string    `json:"author"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	ClosedAt      time.Time `json:"closed_at,omitzero"`
	Selected      bool      `json:"selected"`
	ExpectedFocus string    `json:"expected_focus"`
}

// FocusContext returns the text the judge should treat as the expected
// review focus: the generated focus label when present, the title otherwise.
func (pr *PullRequest) FocusContext() string {
	if pr.ExpectedFocus != "" {
		return pr.ExpectedFocus
	}
	return pr.Title
}
