package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rc/internal/aggregate"
	"github.com/joescharf/rc/internal/cycle"
	"github.com/joescharf/rc/internal/dedup"
	"github.com/joescharf/rc/internal/models"
	"github.com/joescharf/rc/internal/orchestrator"
	"github.com/joescharf/rc/internal/reviewer"
)

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	cycles []*models.ReviewCycle
	runs   []*models.ReviewerRun
}

func (m *memStore) CreateCycle(_ context.Context, c *models.ReviewCycle) error {
	c.ID = fmt.Sprintf("row-%d", len(m.cycles)+1)
	c.CreatedAt = time.Now().UTC()
	m.cycles = append(m.cycles, c)
	return nil
}

func (m *memStore) GetCycle(_ context.Context, id string) (*models.ReviewCycle, error) {
	for _, c := range m.cycles {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("cycle not found: %s", id)
}

func (m *memStore) LatestCycle(_ context.Context, cycleID string) (*models.ReviewCycle, error) {
	var latest *models.ReviewCycle
	for _, c := range m.cycles {
		if c.CycleID == cycleID && (latest == nil || c.Iteration > latest.Iteration) {
			latest = c
		}
	}
	return latest, nil
}

func (m *memStore) ListCycles(_ context.Context, cycleID string, limit int) ([]*models.ReviewCycle, error) {
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

func (m *memStore) CreateReviewerRuns(_ context.Context, runs []*models.ReviewerRun) error {
	m.runs = append(m.runs, runs...)
	return nil
}

func (m *memStore) ListReviewerRuns(_ context.Context, cycleRowID string) ([]*models.ReviewerRun, error) {
	var out []*models.ReviewerRun
	for _, r := range m.runs {
		if r.CycleRowID == cycleRowID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// cannedAdapter returns a fixed issue list.
type cannedAdapter struct {
	id     string
	issues []models.Issue
	err    error
}

func (a *cannedAdapter) ID() string { return a.id }

func (a *cannedAdapter) Invoke(context.Context, []string) ([]models.Issue, error) {
	return a.issues, a.err
}

func testPipeline(s *memStore) *Pipeline {
	return New(
		orchestrator.New(orchestrator.Config{Timeout: time.Second, MinCoverage: 2.0 / 3.0}),
		dedup.New(dedup.Config{Threshold: 0.80}),
		aggregate.New(aggregate.Config{DefaultWeight: 1.0}),
		cycle.New(s, cycle.Config{MaxIterations: 2, MinImprovementRate: 0.5}),
		s,
		Config{ConfidenceFloor: 0.60},
	)
}

func TestRun_EndToEnd(t *testing.T) {
	s := &memStore{}
	p := testPipeline(s)

	adapters := []reviewer.Adapter{
		&cannedAdapter{id: "sec", issues: []models.Issue{
			{File: "src/auth.go", Line: 42, ReviewerID: "sec", Priority: models.PriorityP0, Confidence: 0.9, Category: "security", Message: "missing input validation"},
		}},
		&cannedAdapter{id: "gen", issues: []models.Issue{
			{File: "./src/auth.go", Line: 42, ReviewerID: "gen", Priority: models.PriorityP1, Confidence: 0.8, Category: "security", Message: "input is not validated"},
			{File: "src/db.go", Line: 7, ReviewerID: "gen", Priority: models.PriorityP2, Confidence: 0.4, Category: "style", Message: "long function"},
		}},
		&cannedAdapter{id: "perf", issues: nil},
	}

	result, err := p.Run(context.Background(), "cy-1", adapters, []string{"src/auth.go", "src/db.go"})
	require.NoError(t, err)

	c := result.Cycle
	require.NotNil(t, c)
	assert.Equal(t, 1, c.Iteration)
	assert.Equal(t, models.CycleInProgress, c.State)

	require.Len(t, c.IssuesFound, 1, "the merged security finding clears the floor")
	ci := c.IssuesFound[0]
	assert.Equal(t, "src/auth.go", ci.File)
	assert.Equal(t, models.PriorityP0, ci.Priority)
	assert.Len(t, ci.Sources, 2)
	assert.InDelta(t, 0.85, ci.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, ci.AgreementRatio, 1e-9)

	require.Len(t, c.FilteredIssues, 1, "the low-confidence style finding goes to the appendix")
	assert.Equal(t, "src/db.go", c.FilteredIssues[0].File)

	require.Len(t, s.runs, 3, "every reviewer outcome is logged")
	for _, r := range s.runs {
		assert.Equal(t, c.ID, r.CycleRowID)
		assert.Equal(t, models.OutcomeSuccess, r.Status)
	}
	assert.InDelta(t, 1.0, result.Coverage, 1e-9)
}

func TestRun_LowConfidenceP0NotFiltered(t *testing.T) {
	s := &memStore{}
	p := testPipeline(s)
	ctx := context.Background()

	critical := models.Issue{File: "src/auth.go", Line: 42, ReviewerID: "sec", Priority: models.PriorityP0, Confidence: 0.55, Category: "security", Message: "hardcoded credentials"}
	adapters := []reviewer.Adapter{&cannedAdapter{id: "sec", issues: []models.Issue{critical}}}

	result, err := p.Run(ctx, "cy-1", adapters, []string{"src/auth.go"})
	require.NoError(t, err)

	c := result.Cycle
	require.Len(t, c.IssuesFound, 1, "a critical is reported even below the confidence floor")
	assert.Equal(t, models.PriorityP0, c.IssuesFound[0].Priority)
	assert.InDelta(t, 0.55, c.IssuesFound[0].Confidence, 1e-9)
	assert.Empty(t, c.FilteredIssues)

	// The same critical at the iteration ceiling escalates rather than
	// falling through to resolved.
	result, err = p.Run(ctx, "cy-1", adapters, []string{"src/auth.go"})
	require.NoError(t, err)

	c = result.Cycle
	assert.Equal(t, 2, c.Iteration)
	assert.Equal(t, models.CycleEscalated, c.State)
	assert.Equal(t, models.EscalationCriticalPersist, c.Reason)
}

func TestRun_InsufficientCoveragePropagates(t *testing.T) {
	s := &memStore{}
	p := testPipeline(s)

	adapters := []reviewer.Adapter{
		&cannedAdapter{id: "a", err: errors.New("down")},
		&cannedAdapter{id: "b", err: errors.New("down")},
		&cannedAdapter{id: "c"},
	}

	_, err := p.Run(context.Background(), "cy-1", adapters, []string{"x.go"})
	var ice *orchestrator.InsufficientCoverageError
	require.ErrorAs(t, err, &ice)
	assert.Empty(t, s.cycles, "no iteration is recorded on a failed run")
	assert.Empty(t, s.runs)
}

func TestRun_SecondIterationDiffs(t *testing.T) {
	s := &memStore{}
	p := testPipeline(s)
	ctx := context.Background()

	issue := models.Issue{File: "src/auth.go", Line: 42, Priority: models.PriorityP1, Confidence: 0.9, Category: "security", Message: "missing input validation"}

	first := []reviewer.Adapter{&cannedAdapter{id: "sec", issues: []models.Issue{issue}}}
	_, err := p.Run(ctx, "cy-1", first, []string{"src/auth.go"})
	require.NoError(t, err)

	second := []reviewer.Adapter{&cannedAdapter{id: "sec"}}
	result, err := p.Run(ctx, "cy-1", second, []string{"src/auth.go"})
	require.NoError(t, err)

	c := result.Cycle
	assert.Equal(t, 2, c.Iteration)
	assert.Equal(t, models.CycleResolved, c.State)
	assert.Equal(t, 1, c.IssuesFixedFromPrevious)
	assert.InDelta(t, 1.0, c.ImprovementRate, 1e-9)
}
