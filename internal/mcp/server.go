package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/github"
	"github.com/joescharf/prarena/internal/models"
	"github.com/joescharf/prarena/internal/store"
)

// Server wraps the evaluation engine and exposes it as MCP tools, so a
// coding agent can screen model/prompt combinations and read the
// leaderboard without going through the HTTP API.
type Server struct {
	store      store.Store
	gh         github.Client
	backend    eval.Backend
	modelNames []string
	prompts    []models.SystemPrompt

	global *eval.Controller
	repo   *eval.Controller
}

// NewServer creates the MCP server wrapper. The MCP process owns its own
// run controllers; it does not share state with a running daemon.
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
		global:     eval.NewController(models.StageGlobal, backend, arch, cfg),
		repo:       eval.NewController(models.StageRepo, backend, arch, cfg),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("prarena", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listModelsTool())
	srv.AddTool(s.listPromptsTool())
	srv.AddTool(s.fetchPRsTool())
	srv.AddTool(s.startGlobalEvalTool())
	srv.AddTool(s.evalStatusTool())
	srv.AddTool(s.evalResultsTool())
	srv.AddTool(s.runHistoryTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// prarena_list_models
func (s *Server) listModelsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_list_models",
		mcp.WithDescription("List the candidate reviewer models configured for evaluation. Returns a JSON array of model names."),
	)
	return tool, s.handleListModels
}

func (s *Server) handleListModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.modelNames)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal models: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// prarena_list_prompts
func (s *Server) listPromptsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_list_prompts",
		mcp.WithDescription("List the candidate reviewer system prompts. Returns a JSON array with id and content."),
	)
	return tool, s.handleListPrompts
}

func (s *Server) handleListPrompts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.prompts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal prompts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// prarena_fetch_prs
func (s *Server) fetchPRsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_fetch_prs",
		mcp.WithDescription("Fetch recently closed pull requests (with diffs) from a GitHub repository via the gh CLI. Returns a JSON array of PRs."),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Repository URL or owner/name slug")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of PRs to fetch (default 10)")),
	)
	return tool, s.handleFetchPRs
}

func (s *Server) handleFetchPRs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, err := request.RequireString("repo")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo"), nil
	}
	limit := request.GetInt("limit", 10)

	prs, err := s.gh.ClosedPRs(repo, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch PRs: %v", err)), nil
	}

	data, err := json.Marshal(prs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal PRs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// prarena_start_global_eval
func (s *Server) startGlobalEvalTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_start_global_eval",
		mcp.WithDescription("Start the global screening evaluation: every configured model x prompt combination reviews the built-in probe dataset and is judged on critical detection, hallucination, and helpfulness. Poll prarena_eval_status for progress."),
	)
	return tool, s.handleStartGlobalEval
}

func (s *Server) handleStartGlobalEval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.backend == nil {
		return mcp.NewToolResultError("LLM not configured (set ANTHROPIC_API_KEY)"), nil
	}

	probes, err := eval.GlobalDataset()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load probe dataset: %v", err)), nil
	}
	combos := eval.Combinations(s.modelNames, s.prompts)

	if err := s.global.Start(combos, s.prompts, probes); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start evaluation: %v", err)), nil
	}

	result := map[string]any{
		"status":             "started",
		"total_combinations": len(combos),
		"total_cells":        len(combos) * len(probes),
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// prarena_eval_status
func (s *Server) evalStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_eval_status",
		mcp.WithDescription("Get the progress of a running evaluation: stage, status, current combination, completed cells, and recent log lines."),
		mcp.WithString("stage", mcp.Description("Evaluation stage: global (default) or repo")),
	)
	return tool, s.handleEvalStatus
}

func (s *Server) handleEvalStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctrl, err := s.controllerFor(request.GetString("stage", "global"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(ctrl.Snapshot())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// prarena_eval_results
func (s *Server) evalResultsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_eval_results",
		mcp.WithDescription("Get the ranked results of a completed evaluation. Returns a JSON array sorted by rank, with per-criterion rates, composite score, and verdict."),
		mcp.WithString("stage", mcp.Description("Evaluation stage: global (default) or repo")),
	)
	return tool, s.handleEvalResults
}

func (s *Server) handleEvalResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctrl, err := s.controllerFor(request.GetString("stage", "global"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := ctrl.Results()
	if results == nil {
		return mcp.NewToolResultError("no evaluation results available; start a run and wait for it to complete"), nil
	}

	data, err := json.Marshal(results)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// prarena_run_history
func (s *Server) runHistoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prarena_run_history",
		mcp.WithDescription("List archived evaluation runs, newest first. Returns a JSON array with id, stage, status, and timestamps."),
		mcp.WithString("stage", mcp.Description("Filter by stage: global or repo")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
	)
	return tool, s.handleRunHistory
}

func (s *Server) handleRunHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history not configured"), nil
	}

	stage := models.RunStage(request.GetString("stage", ""))
	limit := request.GetInt("limit", 20)

	runs, err := s.store.ListRuns(ctx, stage, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	data, err := json.Marshal(runs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) controllerFor(stage string) (*eval.Controller, error) {
	switch models.RunStage(stage) {
	case models.StageGlobal:
		return s.global, nil
	case models.StageRepo:
		return s.repo, nil
	default:
		return nil, fmt.Errorf("invalid stage: %s (must be global or repo)", stage)
	}
}
