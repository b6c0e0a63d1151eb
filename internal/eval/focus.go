package eval

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/prarena/internal/llm"
	"github.com/joescharf/prarena/internal/models"
)

// GenerateFocus labels PRs with the primary risk category a reviewer
// should look for, keyed by PR id. Best effort: PRs the generator fails
// on (or with empty diffs) are simply absent from the returned map and
// keep an empty focus — the user can still fill one in by hand.
func GenerateFocus(ctx context.Context, backend Backend, prs []models.PullRequest, concurrency int) map[string]llm.Focus {
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	out := make(map[string]llm.Focus, len(prs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, pr := range prs {
		if pr.Diff == "" {
			continue
		}
		g.Go(func() error {
			f, err := backend.GenerateFocus(ctx, pr.Title, pr.Diff)
			if err != nil {
				slog.Warn("focus generation failed", "pr", pr.ID, "error", err)
				return nil
			}
			mu.Lock()
			out[pr.ID] = *f
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
