package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/github"
	"github.com/joescharf/prarena/internal/llm"
	"github.com/joescharf/prarena/internal/models"
	"github.com/joescharf/prarena/internal/store"
)

// fakeBackend answers instantly: canned review, yes on every criterion.
type fakeBackend struct {
	reviewFn func(model, systemPrompt, diff string) (string, error)
}

func (f *fakeBackend) GenerateReview(ctx context.Context, model, systemPrompt, diff string) (string, error) {
	if f.reviewFn != nil {
		return f.reviewFn(model, systemPrompt, diff)
	}
	return "Specific, actionable review.", nil
}

func (f *fakeBackend) Judge(ctx context.Context, criterion models.Criterion, review, focus, diff string) (*llm.JudgeResult, error) {
	verdict := criterion != models.CriterionHallucination
	return &llm.JudgeResult{Verdict: verdict, Rationale: "ok"}, nil
}

func (f *fakeBackend) GenerateFocus(ctx context.Context, title, diff string) (*llm.Focus, error) {
	return &llm.Focus{Focus: "error_handling", Explanation: "canned"}, nil
}

// fakeGH serves a fixed PR list.
type fakeGH struct {
	prs []models.PullRequest
	err error
}

func (f *fakeGH) ClosedPRs(repoURL string, limit int) ([]models.PullRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.prs) {
		return f.prs[:limit], nil
	}
	return f.prs, nil
}

func testPrompts() []models.SystemPrompt {
	return []models.SystemPrompt{
		{ID: "prompt-1", Content: "You are a code reviewer."},
	}
}

func fastConfig() eval.Config {
	cfg := eval.DefaultConfig()
	cfg.Concurrency = 8
	return cfg
}

type serverOpts struct {
	store   store.Store
	gh      github.Client
	backend eval.Backend
}

func setupTestServer(t *testing.T, opts serverOpts) *httptest.Server {
	t.Helper()
	if opts.gh == nil {
		opts.gh = &fakeGH{}
	}
	srv := NewServer(opts.store, opts.gh, opts.backend, []string{"model-a"}, testPrompts(), fastConfig())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func waitComplete(t *testing.T, ts *httptest.Server, stage string) models.RunProgress {
	t.Helper()
	var snap models.RunProgress
	require.Eventually(t, func() bool {
		code := getJSON(t, ts.URL+"/api/v1/eval/"+stage+"/status", &snap)
		return code == http.StatusOK && snap.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)
	return snap
}

func TestListModels(t *testing.T) {
	ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}})

	var out struct {
		Models []string `json:"models"`
	}
	code := getJSON(t, ts.URL+"/api/v1/models", &out)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"model-a"}, out.Models)
}

func TestListPrompts(t *testing.T) {
	ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}})

	var out struct {
		Prompts []models.SystemPrompt `json:"prompts"`
	}
	code := getJSON(t, ts.URL+"/api/v1/prompts", &out)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, out.Prompts, 1)
	assert.Equal(t, "prompt-1", out.Prompts[0].ID)
}

func TestListClosedPRs(t *testing.T) {
	gh := &fakeGH{prs: []models.PullRequest{
		{ID: "1", Title: "Fix bug", Diff: "+x"},
		{ID: "2", Title: "Add feature", Diff: "+y"},
	}}
	ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}, gh: gh})

	t.Run("missing repo param", func(t *testing.T) {
		code := getJSON(t, ts.URL+"/api/v1/github/prs", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("bad limit", func(t *testing.T) {
		code := getJSON(t, ts.URL+"/api/v1/github/prs?repo=o/r&limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("fetches PRs", func(t *testing.T) {
		var out struct {
			Repo string               `json:"repo"`
			PRs  []models.PullRequest `json:"prs"`
		}
		code := getJSON(t, ts.URL+"/api/v1/github/prs?repo=o/r", &out)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "o/r", out.Repo)
		assert.Len(t, out.PRs, 2)
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		ts404 := setupTestServer(t, serverOpts{backend: &fakeBackend{}, gh: &fakeGH{err: fmt.Errorf("gh: %w", github.ErrNotFound)}})
		code := getJSON(t, ts404.URL+"/api/v1/github/prs?repo=o/r", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestGlobalEval_Lifecycle(t *testing.T) {
	ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}})

	t.Run("results 404 before any run", func(t *testing.T) {
		code := getJSON(t, ts.URL+"/api/v1/eval/global/results", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("status idle before any run", func(t *testing.T) {
		var snap models.RunProgress
		code := getJSON(t, ts.URL+"/api/v1/eval/global/status", &snap)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, models.RunStatusIdle, snap.Status)
	})

	t.Run("start and run to completion", func(t *testing.T) {
		var started startResponse
		code := postJSON(t, ts.URL+"/api/v1/eval/global/start", nil, &started)
		assert.Equal(t, http.StatusAccepted, code)
		assert.Equal(t, "started", started.Status)
		assert.Equal(t, 1, started.TotalCombinations)

		snap := waitComplete(t, ts, "global")
		assert.Equal(t, models.RunStatusComplete, snap.Status)
		assert.Equal(t, snap.Total, snap.CurrentIndex)

		var out struct {
			Status  string                     `json:"status"`
			Results []models.CombinationResult `json:"results"`
		}
		code = getJSON(t, ts.URL+"/api/v1/eval/global/results", &out)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "complete", out.Status)
		require.Len(t, out.Results, 1)
		assert.True(t, out.Results[0].Passed)
		assert.Equal(t, 1, out.Results[0].Rank)
	})
}

func TestGlobalEval_NoBackend(t *testing.T) {
	ts := setupTestServer(t, serverOpts{backend: nil})

	code := postJSON(t, ts.URL+"/api/v1/eval/global/start", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code = postJSON(t, ts.URL+"/api/v1/focus/generate", map[string]any{"prs": []models.PullRequest{{ID: "1"}}}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestGlobalEval_AlreadyRunning(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	backend := &fakeBackend{
		reviewFn: func(model, systemPrompt, diff string) (string, error) {
			<-block
			return "review", nil
		},
	}
	ts := setupTestServer(t, serverOpts{backend: backend})

	code := postJSON(t, ts.URL+"/api/v1/eval/global/start", nil, nil)
	require.Equal(t, http.StatusAccepted, code)

	code = postJSON(t, ts.URL+"/api/v1/eval/global/start", nil, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestRepoEval_Lifecycle(t *testing.T) {
	ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}})

	repoPRs := []models.PullRequest{
		{ID: "101", Title: "Fix auth", Diff: "+check()", Selected: true, ExpectedFocus: "auth_bypass"},
		{ID: "102", Title: "Unselected", Diff: "+y", Selected: false},
	}

	t.Run("rejected before global completes", func(t *testing.T) {
		code := postJSON(t, ts.URL+"/api/v1/eval/repo/start", map[string]any{"prs": repoPRs}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	// Run the global screening to produce survivors.
	require.Equal(t, http.StatusAccepted, postJSON(t, ts.URL+"/api/v1/eval/global/start", nil, nil))
	waitComplete(t, ts, "global")

	t.Run("missing prs", func(t *testing.T) {
		code := postJSON(t, ts.URL+"/api/v1/eval/repo/start", map[string]any{"prs": []models.PullRequest{}}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/eval/repo/start", "application/json", bytes.NewBufferString("{nope"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("runs selected PRs against survivors", func(t *testing.T) {
		var started startResponse
		code := postJSON(t, ts.URL+"/api/v1/eval/repo/start", map[string]any{"prs": repoPRs}, &started)
		require.Equal(t, http.StatusAccepted, code)
		assert.Equal(t, 1, started.TotalCombinations)
		// Only the selected PR is evaluated.
		assert.Equal(t, 1, started.TotalCells)

		snap := waitComplete(t, ts, "repo")
		assert.Equal(t, models.RunStatusComplete, snap.Status)

		var out struct {
			Results []models.CombinationResult `json:"results"`
		}
		code = getJSON(t, ts.URL+"/api/v1/eval/repo/results", &out)
		assert.Equal(t, http.StatusOK, code)
		require.Len(t, out.Results, 1)
		require.Len(t, out.Results[0].Details, 1)
		assert.Equal(t, "101", out.Results[0].Details[0].PRID)
	})
}

func TestGenerateFocus(t *testing.T) {
	ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}})

	t.Run("missing prs", func(t *testing.T) {
		code := postJSON(t, ts.URL+"/api/v1/focus/generate", map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("labels each PR", func(t *testing.T) {
		var out struct {
			Focus map[string]llm.Focus `json:"focus"`
		}
		body := map[string]any{"prs": []models.PullRequest{
			{ID: "1", Title: "a", Diff: "+x"},
			{ID: "2", Title: "b", Diff: ""},
		}}
		code := postJSON(t, ts.URL+"/api/v1/focus/generate", body, &out)
		assert.Equal(t, http.StatusOK, code)
		require.Len(t, out.Focus, 1)
		assert.Equal(t, "error_handling", out.Focus["1"].Focus)
	})
}

func TestRunHistory(t *testing.T) {
	t.Run("503 without store", func(t *testing.T) {
		ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}})
		assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/v1/runs", nil))
		assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/v1/runs/xyz", nil))
	})

	t.Run("lists archived runs", func(t *testing.T) {
		s := setupTestStore(t)
		ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}, store: s})

		require.Equal(t, http.StatusAccepted, postJSON(t, ts.URL+"/api/v1/eval/global/start", nil, nil))
		waitComplete(t, ts, "global")

		// Archiving is asynchronous relative to status flipping complete.
		var runs []*models.Run
		require.Eventually(t, func() bool {
			getJSON(t, ts.URL+"/api/v1/runs", &runs)
			return len(runs) == 1
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, models.StageGlobal, runs[0].Stage)
		assert.Equal(t, models.RunStatusComplete, runs[0].Status)

		var out struct {
			Run     *models.Run                `json:"run"`
			Results []models.CombinationResult `json:"results"`
		}
		code := getJSON(t, ts.URL+"/api/v1/runs/"+runs[0].ID, &out)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, runs[0].ID, out.Run.ID)
		assert.NotEmpty(t, out.Results)
	})

	t.Run("unknown run id", func(t *testing.T) {
		s := setupTestStore(t)
		ts := setupTestServer(t, serverOpts{backend: &fakeBackend{}, store: s})
		assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/runs/01NOPE", nil))
	})
}
