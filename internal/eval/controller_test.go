package eval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prarena/internal/llm"
	"github.com/joescharf/prarena/internal/models"
)

// memArchiver records archived runs for assertions.
type memArchiver struct {
	mu      sync.Mutex
	runs    []*models.Run
	results [][]models.CombinationResult
}

func (m *memArchiver) ArchiveRun(ctx context.Context, run *models.Run, results []models.CombinationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	m.results = append(m.results, results)
	return nil
}

func (m *memArchiver) archived() []*models.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Run(nil), m.runs...)
}

func waitComplete(t *testing.T, c *Controller) models.RunProgress {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return c.Snapshot()
}

func TestController_RunToCompletion(t *testing.T) {
	backend := &fakeBackend{}
	arch := &memArchiver{}
	c := NewController(models.StageGlobal, backend, arch, DefaultConfig())

	sysPrompts := testPrompts()
	combos := Combinations([]string{"model-a", "model-b"}, sysPrompts)
	prs := testPRs(3)

	require.NoError(t, c.Start(combos, sysPrompts, prs))

	snap := waitComplete(t, c)
	assert.Equal(t, models.RunStatusComplete, snap.Status)
	assert.Equal(t, len(combos)*len(prs), snap.CurrentIndex)
	assert.Equal(t, len(combos)*len(prs), snap.Total)

	results := c.Results()
	require.Len(t, results, len(combos))
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		// Every judge said yes, so every combination passes cleanly.
		assert.True(t, r.Passed)
		assert.Equal(t, models.VerdictRecommended, r.Verdict)
		assert.Len(t, r.Details, len(prs))
	}

	// One review per cell.
	assert.Equal(t, len(combos)*len(prs), backend.reviewCount())

	// Completed run was archived with its results.
	archived := arch.archived()
	require.Len(t, archived, 1)
	assert.Equal(t, models.StageGlobal, archived[0].Stage)
	assert.Equal(t, models.RunStatusComplete, archived[0].Status)
}

func TestController_Start_AlreadyRunning(t *testing.T) {
	block := make(chan struct{})
	backend := &fakeBackend{
		reviewFn: func(model, systemPrompt, diff string) (string, error) {
			<-block
			return "review", nil
		},
	}
	c := NewController(models.StageGlobal, backend, nil, DefaultConfig())

	sysPrompts := testPrompts()
	combos := Combinations([]string{"model-a"}, sysPrompts)
	prs := testPRs(1)

	require.NoError(t, c.Start(combos, sysPrompts, prs))
	err := c.Start(combos, sysPrompts, prs)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	waitComplete(t, c)

	// A terminal run can be superseded.
	assert.NoError(t, c.Start(combos, sysPrompts, prs))
	waitComplete(t, c)
}

func TestController_Start_BadConfig(t *testing.T) {
	c := NewController(models.StageGlobal, &fakeBackend{}, nil, DefaultConfig())
	sysPrompts := testPrompts()
	prs := testPRs(1)

	t.Run("no combinations", func(t *testing.T) {
		err := c.Start(nil, sysPrompts, prs)
		assert.ErrorIs(t, err, ErrBadConfig)
	})

	t.Run("no PRs", func(t *testing.T) {
		err := c.Start(Combinations([]string{"m"}, sysPrompts), sysPrompts, nil)
		assert.ErrorIs(t, err, ErrBadConfig)
	})

	t.Run("empty model", func(t *testing.T) {
		err := c.Start([]models.Combination{{Model: "", PromptID: "prompt-1"}}, sysPrompts, prs)
		assert.ErrorIs(t, err, ErrBadConfig)
	})

	t.Run("unknown prompt id", func(t *testing.T) {
		err := c.Start([]models.Combination{{Model: "m", PromptID: "nope"}}, sysPrompts, prs)
		assert.ErrorIs(t, err, ErrBadConfig)
	})

	t.Run("rejected start leaves progress idle", func(t *testing.T) {
		assert.Equal(t, models.RunStatusIdle, c.Snapshot().Status)
	})
}

func TestController_EmptyDiffSkipped(t *testing.T) {
	backend := &fakeBackend{}
	c := NewController(models.StageRepo, backend, nil, DefaultConfig())

	sysPrompts := testPrompts()[:1]
	combos := Combinations([]string{"model-a"}, sysPrompts)
	prs := testPRs(2)
	prs[1].Diff = ""

	require.NoError(t, c.Start(combos, sysPrompts, prs))
	snap := waitComplete(t, c)

	// The skipped cell still counts toward progress.
	assert.Equal(t, models.RunStatusComplete, snap.Status)
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.Equal(t, 1, backend.reviewCount())

	results := c.Results()
	require.Len(t, results, 1)
	assert.Len(t, results[0].Details, 1)
}

func TestController_GeneratorFailureExcludesCombination(t *testing.T) {
	backend := &fakeBackend{
		reviewFn: func(model, systemPrompt, diff string) (string, error) {
			if model == "broken" {
				return "", errors.New("boom")
			}
			return "review", nil
		},
	}
	c := NewController(models.StageGlobal, backend, nil, DefaultConfig())

	sysPrompts := testPrompts()[:1]
	combos := Combinations([]string{"broken", "model-a"}, sysPrompts)
	prs := testPRs(2)

	require.NoError(t, c.Start(combos, sysPrompts, prs))
	snap := waitComplete(t, c)

	assert.Equal(t, models.RunStatusComplete, snap.Status)
	// The combination with zero evaluated cells has no rates and is
	// excluded from the leaderboard entirely.
	results := c.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "model-a", results[0].Model)
}

func TestController_ProgressMonotonic(t *testing.T) {
	backend := &fakeBackend{
		reviewFn: func(model, systemPrompt, diff string) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "review", nil
		},
	}
	c := NewController(models.StageGlobal, backend, nil, DefaultConfig())

	sysPrompts := testPrompts()
	combos := Combinations([]string{"model-a", "model-b"}, sysPrompts)
	prs := testPRs(3)
	require.NoError(t, c.Start(combos, sysPrompts, prs))

	last := 0
	deadline := time.After(10 * time.Second)
	for {
		snap := c.Snapshot()
		assert.GreaterOrEqual(t, snap.CurrentIndex, last)
		assert.LessOrEqual(t, snap.CurrentIndex, snap.Total)
		last = snap.CurrentIndex
		if snap.Status.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run did not finish")
		case <-time.After(time.Millisecond):
		}
	}
	assert.Equal(t, c.Snapshot().Total, last)
}

func TestController_WatchdogAbortsStalledRun(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	backend := &fakeBackend{
		reviewFn: func(model, systemPrompt, diff string) (string, error) {
			<-block
			return "", errors.New("aborted")
		},
	}
	arch := &memArchiver{}
	cfg := DefaultConfig()
	cfg.Watchdog = 100 * time.Millisecond
	c := NewController(models.StageGlobal, backend, arch, cfg)

	sysPrompts := testPrompts()[:1]
	require.NoError(t, c.Start(Combinations([]string{"model-a"}, sysPrompts), sysPrompts, testPRs(1)))

	require.Eventually(t, func() bool {
		return c.Snapshot().Status == models.RunStatusFailed
	}, 10*time.Second, 50*time.Millisecond)

	snap := c.Snapshot()
	assert.Contains(t, snap.FailReason, "no progress")
	assert.Nil(t, c.Results())

	require.Eventually(t, func() bool {
		return len(arch.archived()) == 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, models.RunStatusFailed, arch.archived()[0].Status)
}

func TestController_FailedRunSnapshotFrozen(t *testing.T) {
	block := make(chan struct{})
	var drained sync.WaitGroup
	drained.Add(2)
	backend := &fakeBackend{
		reviewFn: func(model, systemPrompt, diff string) (string, error) {
			defer drained.Done()
			<-block
			return "", errors.New("aborted")
		},
	}
	cfg := DefaultConfig()
	cfg.Watchdog = 100 * time.Millisecond
	cfg.Concurrency = 2
	c := NewController(models.StageGlobal, backend, nil, cfg)

	sysPrompts := testPrompts()[:1]
	require.NoError(t, c.Start(Combinations([]string{"model-a"}, sysPrompts), sysPrompts, testPRs(2)))

	// Both cells are in flight when the watchdog fires.
	require.Eventually(t, func() bool {
		return backend.reviewCount() == 2
	}, 10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == models.RunStatusFailed
	}, 10*time.Second, 10*time.Millisecond)

	// Release the stuck cells and let them drain.
	close(block)
	drained.Wait()
	time.Sleep(100 * time.Millisecond)

	// The failed snapshot stays frozen: draining cells must not advance
	// the counter toward Total or overwrite the step text.
	snap := c.Snapshot()
	assert.Equal(t, models.RunStatusFailed, snap.Status)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Less(t, snap.CurrentIndex, snap.Total)
	assert.Equal(t, "Failed", snap.CurrentStep)
	assert.Contains(t, snap.Logs[len(snap.Logs)-1], "run failed")
}

func TestController_LogRingCapped(t *testing.T) {
	c := NewController(models.StageGlobal, &fakeBackend{}, nil, DefaultConfig())
	for i := 0; i < maxLogLines*3; i++ {
		c.logf("line %d", i)
	}
	snap := c.Snapshot()
	require.Len(t, snap.Logs, maxLogLines)
	assert.Equal(t, "line 149", snap.Logs[len(snap.Logs)-1])
}

func TestGenerateFocus(t *testing.T) {
	backend := &fakeBackend{
		focusFn: func(title, diff string) (*llm.Focus, error) {
			if title == "bad" {
				return nil, errors.New("no focus")
			}
			return &llm.Focus{Focus: "race condition", Explanation: "shared map"}, nil
		},
	}

	prs := []models.PullRequest{
		{ID: "1", Title: "good", Diff: "d"},
		{ID: "2", Title: "bad", Diff: "d"},
		{ID: "3", Title: "empty", Diff: ""},
	}

	out := GenerateFocus(context.Background(), backend, prs, 2)

	// Failures and empty diffs are simply absent.
	require.Len(t, out, 1)
	assert.Equal(t, "race condition", out["1"].Focus)
}
