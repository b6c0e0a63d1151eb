package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/prarena/internal/models"
)

// maxLogLines caps the progress log ring kept for pollers.
const maxLogLines = 50

// Archiver persists a finished run. Implemented by the store; may be nil.
type Archiver interface {
	ArchiveRun(ctx context.Context, run *models.Run, results []models.CombinationResult) error
}

// Controller owns the lifecycle of one evaluation stage (global or repo).
// At most one run is active at a time; a new run supersedes the previous
// progress object only from a terminal state. All progress mutations go
// through the controller's mutex so pollers always observe a consistent
// snapshot.
type Controller struct {
	stage   models.RunStage
	backend Backend
	archive Archiver
	cfg     Config

	mu          sync.Mutex
	progress    models.RunProgress
	lastAdvance time.Time
}

// NewController creates a controller for one stage. archive may be nil to
// disable run persistence.
func NewController(stage models.RunStage, backend Backend, archive Archiver, cfg Config) *Controller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Controller{
		stage:   stage,
		backend: backend,
		archive: archive,
		cfg:     cfg,
		progress: models.RunProgress{
			Stage:  stage,
			Status: models.RunStatusIdle,
			Logs:   []string{},
		},
	}
}

// Start validates the inputs, initializes a fresh progress object, and
// launches asynchronous execution. It returns ErrAlreadyRunning while a
// run is in flight and ErrBadConfig for an unusable combination space;
// in both cases existing progress is left untouched.
func (c *Controller) Start(combos []models.Combination, sysPrompts []models.SystemPrompt, prs []models.PullRequest) error {
	if len(combos) == 0 {
		return fmt.Errorf("%w: no combinations to evaluate", ErrBadConfig)
	}
	if len(prs) == 0 {
		return fmt.Errorf("%w: no PRs to evaluate", ErrBadConfig)
	}
	promptByID := make(map[string]string, len(sysPrompts))
	for _, p := range sysPrompts {
		promptByID[p.ID] = p.Content
	}
	for _, combo := range combos {
		if combo.Model == "" {
			return fmt.Errorf("%w: combination with empty model", ErrBadConfig)
		}
		if _, ok := promptByID[combo.PromptID]; !ok {
			return fmt.Errorf("%w: unknown prompt id %q", ErrBadConfig, combo.PromptID)
		}
	}

	c.mu.Lock()
	if c.progress.Status == models.RunStatusRunning {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	now := time.Now()
	c.progress = models.RunProgress{
		Stage:     c.stage,
		Status:    models.RunStatusRunning,
		Total:     len(combos) * len(prs),
		StartedAt: now,
		Logs:      []string{},
	}
	c.lastAdvance = now
	c.mu.Unlock()

	go c.run(combos, promptByID, prs)
	return nil
}

// Snapshot returns a copy of the current progress. It holds the lock only
// long enough to copy, so polling stays responsive during a long run.
func (c *Controller) Snapshot() models.RunProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.progress
	snap.Logs = append([]string(nil), c.progress.Logs...)
	snap.Results = append([]models.CombinationResult(nil), c.progress.Results...)
	if snap.Status == models.RunStatusRunning {
		snap.Elapsed = time.Since(snap.StartedAt)
	}
	return snap
}

// Results returns the ranked results of the last completed run, or nil if
// the controller is not in the complete state.
func (c *Controller) Results() []models.CombinationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.Status != models.RunStatusComplete {
		return nil
	}
	return append([]models.CombinationResult(nil), c.progress.Results...)
}

type comboData struct {
	records []models.JudgmentRecord
	details []models.CellDetail
}

func (c *Controller) run(combos []models.Combination, promptByID map[string]string, prs []models.PullRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchdogDone := make(chan struct{})
	go c.watchdog(cancel, watchdogDone)
	defer close(watchdogDone)

	c.logf("starting %s evaluation: %d combinations x %d PRs", c.stage, len(combos), len(prs))

	data := make([]comboData, len(combos))
	for ci, combo := range combos {
		if ctx.Err() != nil {
			break
		}
		c.setCurrent(combo, len(prs))
		c.logf("combination %d/%d: %s", ci+1, len(combos), combo.Key())

		// Cells within a combination fan out up to the concurrency
		// limit; each goroutine owns one slot of the results slice, so
		// collection needs no lock and stays in PR input order.
		results := make([]*cellResult, len(prs))
		var g errgroup.Group
		g.SetLimit(c.cfg.Concurrency)
		for pi, pr := range prs {
			if pr.Diff == "" {
				c.logf("  [%s] %s: empty diff, skipped", combo.Key(), pr.ID)
				c.advance(pr.ID)
				continue
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				res := runCell(ctx, c.backend, combo, promptByID[combo.PromptID], pr, c.logf)
				results[pi] = &res
				c.advance(pr.ID)
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			if res == nil {
				continue
			}
			data[ci].details = append(data[ci].details, res.detail)
			if len(res.records) > 0 {
				data[ci].records = append(data[ci].records, res.records...)
			}
		}
	}

	if ctx.Err() != nil {
		// Watchdog fired; the failure transition already happened.
		return
	}

	var aggregated []models.CombinationResult
	for ci, combo := range combos {
		res, ok := Aggregate(combo, promptByID[combo.PromptID], data[ci].records, data[ci].details, c.cfg.Thresholds)
		if !ok {
			c.logf("%s: no evaluated PRs, excluded from ranking", combo.Key())
			continue
		}
		aggregated = append(aggregated, res)
	}
	ranked := Rank(aggregated)

	passed := 0
	for _, r := range ranked {
		if r.Passed {
			passed++
		}
	}
	c.logf("%s evaluation complete: %d/%d combinations passed", c.stage, passed, len(ranked))

	if c.complete(ranked) {
		c.archiveRun(models.RunStatusComplete, "", ranked)
	}
}

// watchdog aborts the run if no cell completes within the configured
// window, guarding against a hung external dependency.
func (c *Controller) watchdog(cancel context.CancelFunc, done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			stalled := c.progress.Status == models.RunStatusRunning &&
				time.Since(c.lastAdvance) > c.cfg.Watchdog
			c.mu.Unlock()
			if stalled {
				reason := fmt.Sprintf("no progress within %s, run abandoned", c.cfg.Watchdog)
				if c.fail(reason) {
					c.archiveRun(models.RunStatusFailed, reason, nil)
				}
				cancel()
				return
			}
		}
	}
}

// setCurrent records the combination now being evaluated.
func (c *Controller) setCurrent(combo models.Combination, prCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.CurrentModel = combo.Model
	c.progress.CurrentPrompt = combo.PromptID
	c.progress.CurrentPR = ""
	c.progress.CurrentStep = "Starting combination"
	c.progress.SubProgress = 0
	c.progress.SubTotal = prCount
}

// advance counts one completed cell (evaluated, failed, or skipped).
// CurrentIndex is a count of completed cells, not a position pointer, so
// concurrent completions are safe to report in any order. Once the run is
// terminal the snapshot is frozen: cells still draining after a watchdog
// failure must not push CurrentIndex toward Total or overwrite the step.
func (c *Controller) advance(prID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.Status.Terminal() {
		return
	}
	c.progress.CurrentIndex++
	c.progress.SubProgress++
	c.progress.CurrentPR = prID
	c.progress.CurrentStep = fmt.Sprintf("Completed %d/%d cells", c.progress.CurrentIndex, c.progress.Total)
	c.lastAdvance = time.Now()
}

// complete transitions running -> complete. Returns false if the run
// already reached a terminal state (watchdog raced us).
func (c *Controller) complete(results []models.CombinationResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.Status != models.RunStatusRunning {
		return false
	}
	c.progress.Status = models.RunStatusComplete
	c.progress.Results = results
	c.progress.CurrentStep = "Complete"
	c.progress.CurrentPR = ""
	c.progress.Elapsed = time.Since(c.progress.StartedAt)
	return true
}

// fail transitions running -> failed, discarding partial results.
func (c *Controller) fail(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.Status != models.RunStatusRunning {
		return false
	}
	c.progress.Status = models.RunStatusFailed
	c.progress.FailReason = reason
	c.progress.CurrentStep = "Failed"
	c.progress.Elapsed = time.Since(c.progress.StartedAt)
	c.appendLog("run failed: " + reason)
	return true
}

// archiveRun persists the finished run, best effort.
func (c *Controller) archiveRun(status models.RunStatus, reason string, results []models.CombinationResult) {
	if c.archive == nil {
		return
	}
	c.mu.Lock()
	startedAt := c.progress.StartedAt
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run := &models.Run{
		Stage:      c.stage,
		Status:     status,
		FailReason: reason,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if err := c.archive.ArchiveRun(ctx, run, results); err != nil {
		slog.Warn("failed to archive run", "stage", c.stage, "error", err)
	}
}

func (c *Controller) logf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.Status.Terminal() {
		return
	}
	c.appendLog(fmt.Sprintf(format, args...))
}

// appendLog adds a line to the progress log ring. Caller holds c.mu.
func (c *Controller) appendLog(line string) {
	c.progress.Logs = append(c.progress.Logs, line)
	if len(c.progress.Logs) > maxLogLines {
		c.progress.Logs = c.progress.Logs[len(c.progress.Logs)-maxLogLines:]
	}
	slog.Debug(line)
}
