package eval

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/joescharf/prarena/internal/models"
)

//go:embed data/global_dataset.json
var globalDatasetJSON []byte

type probeItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Diff          string `json:"diff"`
	ExpectedFocus string `json:"expected_focus"`
	Description   string `json:"description"`
}

// GlobalDataset returns the embedded safety probe set: small synthetic PRs
// with a known seeded issue, used by the repo-independent screening stage.
func GlobalDataset() ([]models.PullRequest, error) {
	var items []probeItem
	if err := json.Unmarshal(globalDatasetJSON, &items); err != nil {
		return nil, fmt.Errorf("parse global dataset: %w", err)
	}

	prs := make([]models.PullRequest, 0, len(items))
	for _, it := range items {
		prs = append(prs, models.PullRequest{
			ID:            it.ID,
			Title:         it.Title,
			Diff:          it.Diff,
			Selected:      true,
			ExpectedFocus: it.ExpectedFocus,
		})
	}
	return prs, nil
}
