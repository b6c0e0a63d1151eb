package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/github"
	"github.com/joescharf/prarena/internal/models"
	"github.com/joescharf/prarena/internal/store"
)

// statusLogLines is how many log lines a status snapshot carries.
const statusLogLines = 20

// Server provides the REST API handlers. It owns one eval controller per
// stage; clients start a run and poll its status.
type Server struct {
	store      store.Store
	gh         github.Client
	backend    eval.Backend
	modelNames []string
	prompts    []models.SystemPrompt
	cfg        eval.Config

	global *eval.Controller
	repo   *eval.Controller
}

// NewServer creates a new API server. The backend may be nil if no API key
// is configured; eval and focus endpoints then return 503. The store may be
// nil to disable run history.
func NewServer(s store.Store, gh github.Client, backend eval.Backend, modelNames []string, sysPrompts []models.SystemPrompt, cfg eval.Config) *Server {
	var arch eval.Archiver
	if s != nil {
		arch = s
	}
	return &Server{
		store:      s,
		gh:         gh,
		backend:    backend,
		modelNames: modelNames,
		prompts:    sysPrompts,
		cfg:        cfg,
		global:     eval.NewController(models.StageGlobal, backend, arch, cfg),
		repo:       eval.NewController(models.StageRepo, backend, arch, cfg),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/models", s.listModels)
	mux.HandleFunc("GET /api/v1/prompts", s.listPrompts)

	mux.HandleFunc("GET /api/v1/github/prs", s.listClosedPRs)

	mux.HandleFunc("POST /api/v1/eval/global/start", s.startGlobalEval)
	mux.HandleFunc("GET /api/v1/eval/global/status", s.globalStatus)
	mux.HandleFunc("GET /api/v1/eval/global/results", s.globalResults)

	mux.HandleFunc("POST /api/v1/eval/repo/start", s.startRepoEval)
	mux.HandleFunc("GET /api/v1/eval/repo/status", s.repoStatus)
	mux.HandleFunc("GET /api/v1/eval/repo/results", s.repoResults)

	mux.HandleFunc("POST /api/v1/focus/generate", s.generateFocus)

	mux.HandleFunc("GET /api/v1/runs", s.listRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.getRun)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Catalog ---

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.modelNames})
}

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": s.prompts})
}

// --- GitHub ---

func (s *Server) listClosedPRs(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		writeError(w, http.StatusBadRequest, "repo query parameter is required")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	prs, err := s.gh.ClosedPRs(repo, limit)
	if err != nil {
		switch {
		case errors.Is(err, github.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, github.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, github.ErrAuth):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repo": repo, "prs": prs})
}

// --- Evaluation ---

// startResponse is the JSON response for a successfully started run.
type startResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	TotalCombinations int    `json:"total_combinations"`
	TotalCells        int    `json:"total_cells"`
}

func (s *Server) startGlobalEval(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	probes, err := eval.GlobalDataset()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	combos := eval.Combinations(s.modelNames, s.prompts)

	if s.startRun(s.global, combos, probes, w) {
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{
		Status:            "started",
		Message:           "Global evaluation started",
		TotalCombinations: len(combos),
		TotalCells:        len(combos) * len(probes),
	})
}

// repoEvalRequest is the JSON body for POST /api/v1/eval/repo/start.
type repoEvalRequest struct {
	PRs []models.PullRequest `json:"prs"`
}

func (s *Server) startRepoEval(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	var req repoEvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	prs := selectedPRs(req.PRs)
	if len(prs) == 0 {
		writeError(w, http.StatusBadRequest, "prs is required")
		return
	}

	globalResults := s.global.Results()
	if globalResults == nil {
		writeError(w, http.StatusBadRequest, "global evaluation has not completed; run /eval/global/start first")
		return
	}
	combos := eval.PassedCombinations(globalResults)
	if len(combos) == 0 {
		writeError(w, http.StatusBadRequest, "no combination passed the global screening")
		return
	}

	if s.startRun(s.repo, combos, prs, w) {
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{
		Status:            "started",
		Message:           "Repository evaluation started",
		TotalCombinations: len(combos),
		TotalCells:        len(combos) * len(prs),
	})
}

// startRun starts a run on ctrl and writes the error response on failure.
// It reports whether an error response was written.
func (s *Server) startRun(ctrl *eval.Controller, combos []models.Combination, prs []models.PullRequest, w http.ResponseWriter) bool {
	err := ctrl.Start(combos, s.prompts, prs)
	switch {
	case err == nil:
		return false
	case errors.Is(err, eval.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, eval.ErrBadConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return true
}

// selectedPRs returns the PRs marked selected, or all of them when the
// caller didn't mark any.
func selectedPRs(prs []models.PullRequest) []models.PullRequest {
	var out []models.PullRequest
	for _, pr := range prs {
		if pr.Selected {
			out = append(out, pr)
		}
	}
	if out == nil {
		return prs
	}
	return out
}

func (s *Server) globalStatus(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, s.global.Snapshot())
}

func (s *Server) repoStatus(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, s.repo.Snapshot())
}

func writeStatus(w http.ResponseWriter, snap models.RunProgress) {
	if len(snap.Logs) > statusLogLines {
		snap.Logs = snap.Logs[len(snap.Logs)-statusLogLines:]
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) globalResults(w http.ResponseWriter, r *http.Request) {
	writeResults(w, s.global)
}

func (s *Server) repoResults(w http.ResponseWriter, r *http.Request) {
	writeResults(w, s.repo)
}

func writeResults(w http.ResponseWriter, ctrl *eval.Controller) {
	results := ctrl.Results()
	if results == nil {
		writeError(w, http.StatusNotFound, "no evaluation results available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "complete", "results": results})
}

// --- Focus ---

// focusRequest is the JSON body for POST /api/v1/focus/generate.
type focusRequest struct {
	PRs []models.PullRequest `json:"prs"`
}

func (s *Server) generateFocus(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.PRs) == 0 {
		writeError(w, http.StatusBadRequest, "prs is required")
		return
	}

	focus := eval.GenerateFocus(r.Context(), s.backend, req.PRs, s.cfg.Concurrency)
	writeJSON(w, http.StatusOK, map[string]any{"focus": focus})
}

// --- Run history ---

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}

	stage := models.RunStage(r.URL.Query().Get("stage"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), stage, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}

	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := s.store.GetRunResults(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "results": results})
}
