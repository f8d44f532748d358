package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rc/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func sampleCycle(cycleID string, iteration int) *models.ReviewCycle {
	return &models.ReviewCycle{
		CycleID:   cycleID,
		Iteration: iteration,
		State:     models.CycleInProgress,
		IssuesFound: []models.ConsolidatedIssue{
			{
				ID:             "deadbeef00000001",
				File:           "src/auth.go",
				Lines:          models.LineRange{Start: 42, End: 45},
				Category:       "security",
				Priority:       models.PriorityP0,
				Confidence:     0.85,
				AgreementRatio: 1.0,
				Rationale:      "ANY-P0 rule",
				Conflict:       &models.PriorityConflict{Highest: models.PriorityP0, Lowest: models.PriorityP2},
				Sources: []models.Source{
					{ReviewerID: "sec", Issue: models.Issue{
						File: "src/auth.go", Line: 42, ReviewerID: "sec",
						Priority: models.PriorityP0, Confidence: 0.9,
						Category: "security", Message: "missing input validation",
						Suggestion: "validate before use",
					}},
					{ReviewerID: "gen", Issue: models.Issue{
						File: "src/auth.go", Line: 45, ReviewerID: "gen",
						Priority: models.PriorityP2, Confidence: 0.8,
						Category: "security", Message: "input not validated",
					}},
				},
			},
		},
		FilteredIssues: []models.ConsolidatedIssue{
			{
				ID:         "deadbeef00000002",
				File:       "src/db.go",
				Lines:      models.LineRange{Start: 7, End: 7},
				Category:   "style",
				Priority:   models.PriorityP2,
				Confidence: 0.3,
				Rationale:  "default conservative",
				Sources: []models.Source{
					{ReviewerID: "gen", Issue: models.Issue{
						File: "src/db.go", Line: 7, ReviewerID: "gen",
						Priority: models.PriorityP2, Confidence: 0.3,
						Category: "style", Message: "long function",
					}},
				},
			},
		},
	}
}

func TestCreateCycle_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := sampleCycle("cy-1", 1)
	require.NoError(t, s.CreateCycle(ctx, c))
	assert.NotEmpty(t, c.ID, "row ID is assigned on create")
	assert.False(t, c.CreatedAt.IsZero())

	got, err := s.GetCycle(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, "cy-1", got.CycleID)
	assert.Equal(t, 1, got.Iteration)
	assert.Equal(t, models.CycleInProgress, got.State)

	require.Len(t, got.IssuesFound, 1)
	ci := got.IssuesFound[0]
	assert.Equal(t, "deadbeef00000001", ci.ID)
	assert.Equal(t, models.LineRange{Start: 42, End: 45}, ci.Lines)
	assert.InDelta(t, 0.85, ci.Confidence, 1e-9)
	require.NotNil(t, ci.Conflict)
	assert.Equal(t, models.PriorityP0, ci.Conflict.Highest)
	assert.Equal(t, models.PriorityP2, ci.Conflict.Lowest)

	require.Len(t, ci.Sources, 2, "sources survive in order")
	assert.Equal(t, "sec", ci.Sources[0].ReviewerID)
	assert.Equal(t, "missing input validation", ci.Sources[0].Issue.Message)
	assert.Equal(t, "validate before use", ci.Sources[0].Issue.Suggestion)

	require.Len(t, got.FilteredIssues, 1, "appendix issues are kept separately")
	assert.Equal(t, "deadbeef00000002", got.FilteredIssues[0].ID)
}

func TestGetCycle_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCycle(context.Background(), "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestLatestCycle_EmptyHistory(t *testing.T) {
	s := newTestStore(t)

	c, err := s.LatestCycle(context.Background(), "cy-1")
	require.NoError(t, err)
	assert.Nil(t, c, "no history is not an error")
}

func TestLatestCycle_PicksHighestIteration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCycle(ctx, sampleCycle("cy-1", 1)))
	second := sampleCycle("cy-1", 2)
	second.State = models.CycleEscalated
	second.Reason = models.EscalationRegression
	require.NoError(t, s.CreateCycle(ctx, second))
	require.NoError(t, s.CreateCycle(ctx, sampleCycle("cy-other", 1)))

	got, err := s.LatestCycle(ctx, "cy-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Iteration)
	assert.Equal(t, models.CycleEscalated, got.State)
	assert.Equal(t, models.EscalationRegression, got.Reason)
}

func TestCreateCycle_DuplicateIterationRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCycle(ctx, sampleCycle("cy-1", 1)))
	err := s.CreateCycle(ctx, sampleCycle("cy-1", 1))
	assert.Error(t, err, "iterations are unique within a cycle")
}

func TestListCycles_FilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCycle(ctx, sampleCycle("cy-1", 1)))
	require.NoError(t, s.CreateCycle(ctx, sampleCycle("cy-1", 2)))
	require.NoError(t, s.CreateCycle(ctx, sampleCycle("cy-2", 1)))

	all, err := s.ListCycles(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := s.ListCycles(ctx, "cy-1", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, 2, filtered[0].Iteration, "newest iteration first")

	limited, err := s.ListCycles(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReviewerRuns_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := sampleCycle("cy-1", 1)
	require.NoError(t, s.CreateCycle(ctx, c))

	runs := []*models.ReviewerRun{
		{CycleRowID: c.ID, ReviewerID: "sec", Status: models.OutcomeSuccess, IssueCount: 2, ElapsedMs: 1200},
		{CycleRowID: c.ID, ReviewerID: "gen", Status: models.OutcomeTimeout, ElapsedMs: 300000},
		{CycleRowID: c.ID, ReviewerID: "perf", Status: models.OutcomeError, Error: "model refused", ElapsedMs: 40},
	}
	require.NoError(t, s.CreateReviewerRuns(ctx, runs))

	got, err := s.ListReviewerRuns(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	byID := map[string]*models.ReviewerRun{}
	for _, r := range got {
		byID[r.ReviewerID] = r
	}
	assert.Equal(t, models.OutcomeSuccess, byID["sec"].Status)
	assert.Equal(t, 2, byID["sec"].IssueCount)
	assert.Equal(t, "model refused", byID["perf"].Error)
	assert.Equal(t, int64(300000), byID["gen"].ElapsedMs)
}
