package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rc/internal/models"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockStore implements store.Store for testing.
type mockStore struct {
	cycles []*models.ReviewCycle
	runs   []*models.ReviewerRun

	listCyclesErr error
}

func (m *mockStore) CreateCycle(_ context.Context, c *models.ReviewCycle) error {
	if c.ID == "" {
		c.ID = fmt.Sprintf("row-%d", len(m.cycles)+1)
	}
	c.CreatedAt = time.Now()
	m.cycles = append(m.cycles, c)
	return nil
}
func (m *mockStore) GetCycle(_ context.Context, id string) (*models.ReviewCycle, error) {
	for _, c := range m.cycles {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("cycle not found: %s", id)
}
func (m *mockStore) LatestCycle(_ context.Context, cycleID string) (*models.ReviewCycle, error) {
	var latest *models.ReviewCycle
	for _, c := range m.cycles {
		if c.CycleID == cycleID && (latest == nil || c.Iteration > latest.Iteration) {
			latest = c
		}
	}
	return latest, nil
}
func (m *mockStore) ListCycles(_ context.Context, cycleID string, limit int) ([]*models.ReviewCycle, error) {
	if m.listCyclesErr != nil {
		return nil, m.listCyclesErr
	}
	var out []*models.ReviewCycle
	for _, c := range m.cycles {
		if cycleID == "" || c.CycleID == cycleID {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (m *mockStore) CreateReviewerRuns(_ context.Context, runs []*models.ReviewerRun) error {
	m.runs = append(m.runs, runs...)
	return nil
}
func (m *mockStore) ListReviewerRuns(_ context.Context, cycleRowID string) ([]*models.ReviewerRun, error) {
	var out []*models.ReviewerRun
	for _, r := range m.runs {
		if r.CycleRowID == cycleRowID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

// mockRunner implements ReviewRunner.
type mockRunner struct {
	cycle *models.ReviewCycle
	err   error

	gotCycleID   string
	gotReviewers []string
	gotFiles     []string
}

func (m *mockRunner) Review(_ context.Context, cycleID string, reviewerIDs, files []string) (*models.ReviewCycle, error) {
	m.gotCycleID = cycleID
	m.gotReviewers = reviewerIDs
	m.gotFiles = files
	return m.cycle, m.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedCycle(ms *mockStore, cycleID string, iteration int, state models.CycleState) *models.ReviewCycle {
	c := &models.ReviewCycle{
		CycleID:   cycleID,
		Iteration: iteration,
		State:     state,
		IssuesFound: []models.ConsolidatedIssue{
			{ID: "abc", File: "a.go", Lines: models.LineRange{Start: 1, End: 1}, Category: "bug", Priority: models.PriorityP0, Confidence: 0.9},
		},
	}
	_ = ms.CreateCycle(context.Background(), c)
	return c
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_RegistersTools(t *testing.T) {
	srv := NewServer(&mockStore{}, &mockRunner{}).MCPServer()
	assert.NotNil(t, srv)
}

func TestHandleListCycles(t *testing.T) {
	ms := &mockStore{}
	seedCycle(ms, "cy-1", 1, models.CycleInProgress)
	seedCycle(ms, "cy-1", 2, models.CycleResolved)
	seedCycle(ms, "cy-2", 1, models.CycleInProgress)
	s := NewServer(ms, nil)

	result, err := s.handleListCycles(context.Background(), callToolReq("rc_list_cycles", map[string]any{"cycle": "cy-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "cy-1", out[0]["cycle"])
	assert.Equal(t, float64(1), out[0]["p0_count"])
}

func TestHandleListCycles_StoreError(t *testing.T) {
	s := NewServer(&mockStore{listCyclesErr: errors.New("db locked")}, nil)

	result, err := s.handleListCycles(context.Background(), callToolReq("rc_list_cycles", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "db locked")
}

func TestHandleCycleStatus(t *testing.T) {
	ms := &mockStore{}
	c := seedCycle(ms, "cy-1", 2, models.CycleEscalated)
	c.Reason = models.EscalationCriticalPersist
	c.IssuesFixedFromPrevious = 3
	ms.runs = []*models.ReviewerRun{
		{CycleRowID: c.ID, ReviewerID: "sec", Status: models.OutcomeSuccess, IssueCount: 1},
	}
	s := NewServer(ms, nil)

	result, err := s.handleCycleStatus(context.Background(), callToolReq("rc_cycle_status", map[string]any{"cycle": "cy-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "escalated", out["state"])
	assert.Equal(t, string(models.EscalationCriticalPersist), out["reason"])

	metrics, ok := out["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), metrics["issues_fixed_from_previous"])

	runs, ok := out["reviewer_runs"].([]any)
	require.True(t, ok)
	assert.Len(t, runs, 1)

	rootCause, ok := out["root_cause"].([]any)
	require.True(t, ok, "escalated cycles carry a root-cause summary")
	assert.Len(t, rootCause, 1)
}

func TestHandleCycleStatus_NotFound(t *testing.T) {
	s := NewServer(&mockStore{}, nil)

	result, err := s.handleCycleStatus(context.Background(), callToolReq("rc_cycle_status", map[string]any{"cycle": "ghost"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "cycle not found")
}

func TestHandleCycleStatus_MissingParam(t *testing.T) {
	s := NewServer(&mockStore{}, nil)

	result, err := s.handleCycleStatus(context.Background(), callToolReq("rc_cycle_status", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleLastReport(t *testing.T) {
	ms := &mockStore{}
	c := seedCycle(ms, "cy-1", 1, models.CycleInProgress)
	c.FilteredIssues = []models.ConsolidatedIssue{
		{ID: "low", File: "b.go", Priority: models.PriorityP2, Confidence: 0.2},
	}
	s := NewServer(ms, nil)

	result, err := s.handleLastReport(context.Background(), callToolReq("rc_last_report", map[string]any{"cycle": "cy-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, float64(1), out["filtered_count"])

	issues, ok := out["issues"].([]any)
	require.True(t, ok)
	assert.Len(t, issues, 1)
}

func TestHandleRunReview(t *testing.T) {
	runner := &mockRunner{cycle: &models.ReviewCycle{ID: "row-9", CycleID: "cy-1", Iteration: 1, State: models.CycleResolved}}
	s := NewServer(&mockStore{}, runner)

	result, err := s.handleRunReview(context.Background(), callToolReq("rc_run_review", map[string]any{
		"cycle":     "cy-1",
		"files":     "a.go, b.go",
		"reviewers": "sec",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "cy-1", runner.gotCycleID)
	assert.Equal(t, []string{"a.go", "b.go"}, runner.gotFiles)
	assert.Equal(t, []string{"sec"}, runner.gotReviewers)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "resolved", out["state"])
}

func TestHandleRunReview_Failure(t *testing.T) {
	runner := &mockRunner{err: errors.New("insufficient coverage")}
	s := NewServer(&mockStore{}, runner)

	result, err := s.handleRunReview(context.Background(), callToolReq("rc_run_review", map[string]any{
		"cycle": "cy-1",
		"files": "a.go",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "insufficient coverage")
}

func TestHandleRunReview_NoFiles(t *testing.T) {
	s := NewServer(&mockStore{}, &mockRunner{})

	result, err := s.handleRunReview(context.Background(), callToolReq("rc_run_review", map[string]any{
		"cycle": "cy-1",
		"files": " , ",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Nil(t, splitList(" , "))
	assert.Nil(t, splitList(""))
}
