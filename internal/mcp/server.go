package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/rc/internal/cycle"
	"github.com/joescharf/rc/internal/models"
	"github.com/joescharf/rc/internal/store"
)

// ReviewRunner runs one review iteration. Satisfied by the pipeline,
// injectable for tests.
type ReviewRunner interface {
	Review(ctx context.Context, cycleID string, reviewerIDs []string, files []string) (*models.ReviewCycle, error)
}

// Server wraps the rc data layer and exposes it as MCP tools.
type Server struct {
	store  store.Store
	runner ReviewRunner
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, runner ReviewRunner) *Server {
	return &Server{store: s, runner: runner}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("rc", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listCyclesTool())
	srv.AddTool(s.cycleStatusTool())
	srv.AddTool(s.lastReportTool())
	srv.AddTool(s.runReviewTool())

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

// rc_list_cycles
func (s *Server) listCyclesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rc_list_cycles",
		mcp.WithDescription("List review cycle iterations, newest first. Returns a JSON array with cycle id, iteration, state, escalation reason, and issue counts."),
		mcp.WithString("cycle", mcp.Description("Filter by cycle ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records to return")),
	)
	return tool, s.handleListCycles
}

func (s *Server) handleListCycles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID := request.GetString("cycle", "")
	limit := request.GetInt("limit", 20)

	cycles, err := s.store.ListCycles(ctx, cycleID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list cycles: %v", err)), nil
	}

	out := make([]map[string]any, len(cycles))
	for i, c := range cycles {
		out[i] = cycleSummary(c)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal cycles: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rc_cycle_status
func (s *Server) cycleStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rc_cycle_status",
		mcp.WithDescription("Get the latest iteration of a review cycle: state, diff metrics, reviewer outcomes, and the root-cause summary when escalated."),
		mcp.WithString("cycle", mcp.Required(), mcp.Description("Cycle ID")),
	)
	return tool, s.handleCycleStatus
}

func (s *Server) handleCycleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := request.RequireString("cycle")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: cycle"), nil
	}

	c, err := s.store.LatestCycle(ctx, cycleID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load cycle: %v", err)), nil
	}
	if c == nil {
		return mcp.NewToolResultError(fmt.Sprintf("cycle not found: %s", cycleID)), nil
	}

	result := cycleSummary(c)
	result["metrics"] = map[string]any{
		"issues_fixed_from_previous": c.IssuesFixedFromPrevious,
		"new_issues_introduced":      c.NewIssuesIntroduced,
		"issues_still_present":       c.IssuesStillPresent,
		"improvement_rate":           c.ImprovementRate,
		"net_improvement":            c.NetImprovement,
	}

	if runs, err := s.store.ListReviewerRuns(ctx, c.ID); err == nil {
		outRuns := make([]map[string]any, len(runs))
		for i, r := range runs {
			outRuns[i] = map[string]any{
				"reviewer":    r.ReviewerID,
				"status":      string(r.Status),
				"issue_count": r.IssueCount,
				"error":       r.Error,
				"elapsed_ms":  r.ElapsedMs,
			}
		}
		result["reviewer_runs"] = outRuns
	}

	if c.State == models.CycleEscalated {
		summary := cycle.RootCauseSummary(c.IssuesFound)
		outSummary := make([]map[string]any, len(summary))
		for i, cs := range summary {
			flags := make([]string, len(cs.Flags))
			for j, f := range cs.Flags {
				flags[j] = string(f)
			}
			outSummary[i] = map[string]any{
				"category": cs.Category,
				"count":    cs.Count,
				"flags":    flags,
			}
		}
		result["root_cause"] = outSummary
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rc_last_report
func (s *Server) lastReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rc_last_report",
		mcp.WithDescription("Get the consolidated issues of a cycle's latest iteration, including sources and the confidence-floor appendix."),
		mcp.WithString("cycle", mcp.Required(), mcp.Description("Cycle ID")),
	)
	return tool, s.handleLastReport
}

func (s *Server) handleLastReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := request.RequireString("cycle")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: cycle"), nil
	}

	c, err := s.store.LatestCycle(ctx, cycleID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load cycle: %v", err)), nil
	}
	if c == nil {
		return mcp.NewToolResultError(fmt.Sprintf("cycle not found: %s", cycleID)), nil
	}

	result := map[string]any{
		"cycle":          c.CycleID,
		"iteration":      c.Iteration,
		"issues":         c.IssuesFound,
		"filtered":       c.FilteredIssues,
		"filtered_count": len(c.FilteredIssues),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rc_run_review
func (s *Server) runReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rc_run_review",
		mcp.WithDescription("Run one review iteration: launch the configured reviewers concurrently over the given files, consolidate their findings, and record the result."),
		mcp.WithString("cycle", mcp.Required(), mcp.Description("Cycle ID to record the iteration under")),
		mcp.WithString("files", mcp.Required(), mcp.Description("Comma-separated file paths to review")),
		mcp.WithString("reviewers", mcp.Description("Comma-separated reviewer IDs (default: entire roster)")),
	)
	return tool, s.handleRunReview
}

func (s *Server) handleRunReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("review runner not configured"), nil
	}

	cycleID, err := request.RequireString("cycle")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: cycle"), nil
	}
	filesArg, err := request.RequireString("files")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: files"), nil
	}

	files := splitList(filesArg)
	if len(files) == 0 {
		return mcp.NewToolResultError("files must name at least one path"), nil
	}
	reviewers := splitList(request.GetString("reviewers", ""))

	c, err := s.runner.Review(ctx, cycleID, reviewers, files)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	data, err := json.Marshal(cycleSummary(c))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func cycleSummary(c *models.ReviewCycle) map[string]any {
	return map[string]any{
		"id":             c.ID,
		"cycle":          c.CycleID,
		"iteration":      c.Iteration,
		"state":          string(c.State),
		"reason":         string(c.Reason),
		"issues_found":   len(c.IssuesFound),
		"p0_count":       c.P0Count(),
		"filtered_count": len(c.FilteredIssues),
		"created_at":     c.CreatedAt,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
