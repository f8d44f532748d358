// Package pipeline wires one full review run: concurrent orchestration,
// deduplication, priority/confidence aggregation, confidence-floor
// filtering, and cycle recording.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/aggregate"
	"github.com/joescharf/rc/internal/cycle"
	"github.com/joescharf/rc/internal/dedup"
	"github.com/joescharf/rc/internal/models"
	"github.com/joescharf/rc/internal/orchestrator"
	"github.com/joescharf/rc/internal/reviewer"
	"github.com/joescharf/rc/internal/store"
)

// Config holds report-level settings.
type Config struct {
	// ConfidenceFloor excludes consolidated issues whose aggregated
	// confidence falls below it from the main report. Filtered issues
	// are kept as appendix data, never dropped silently. Critical
	// issues are exempt: a P0 always reaches the main report so the
	// escalation policy can see it.
	ConfidenceFloor float64
}

// DefaultConfig returns report settings, reading from viper when
// available.
func DefaultConfig() Config {
	floor := viper.GetFloat64("report.confidence_floor")
	if floor <= 0 || floor > 1 {
		floor = 0.60
	}
	return Config{ConfidenceFloor: floor}
}

// Result is the outcome of one review iteration.
type Result struct {
	Cycle           *models.ReviewCycle
	Outcomes        []models.ReviewerOutcome
	Coverage        float64
	ConsolidationMs int64
}

// Pipeline runs reviews end to end and records them as cycle
// iterations.
type Pipeline struct {
	orch    *orchestrator.Orchestrator
	engine  *dedup.Engine
	agg     *aggregate.Aggregator
	tracker *cycle.Tracker
	store   store.Store
	cfg     Config
}

// New assembles a pipeline from its stages.
func New(orch *orchestrator.Orchestrator, engine *dedup.Engine, agg *aggregate.Aggregator, tracker *cycle.Tracker, s store.Store, cfg Config) *Pipeline {
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.60
	}
	return &Pipeline{orch: orch, engine: engine, agg: agg, tracker: tracker, store: s, cfg: cfg}
}

// Run executes one review iteration for cycleID. It fails hard with
// InsufficientCoverageError when too few reviewers succeed; partial
// success is recorded in the result's coverage and outcomes, never
// presented as complete.
func (p *Pipeline) Run(ctx context.Context, cycleID string, adapters []reviewer.Adapter, files []string) (*Result, error) {
	orchResult, err := p.orch.Run(ctx, adapters, files)
	if err != nil {
		return nil, err
	}

	consolidationStart := time.Now()

	consolidated := p.engine.Deduplicate(orchResult.RawIssues(), orchResult.Invoked)
	for i := range consolidated {
		consolidated[i] = p.agg.Aggregate(consolidated[i])
	}

	var kept, filtered []models.ConsolidatedIssue
	for _, ci := range consolidated {
		// The floor never filters a P0; the critical-persist check
		// reads the main report only.
		if ci.Priority != models.PriorityP0 && ci.Confidence < p.cfg.ConfidenceFloor {
			filtered = append(filtered, ci)
		} else {
			kept = append(kept, ci)
		}
	}

	c, err := p.tracker.RecordIteration(ctx, cycleID, kept, filtered)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.ReviewerRun, 0, len(orchResult.Outcomes))
	for _, o := range orchResult.Outcomes {
		runs = append(runs, &models.ReviewerRun{
			CycleRowID: c.ID,
			ReviewerID: o.ReviewerID,
			Status:     o.Status,
			IssueCount: len(o.Issues),
			Error:      o.Err,
			ElapsedMs:  o.Elapsed.Milliseconds(),
		})
	}
	if err := p.store.CreateReviewerRuns(ctx, runs); err != nil {
		return nil, fmt.Errorf("log reviewer runs: %w", err)
	}

	return &Result{
		Cycle:           c,
		Outcomes:        orchResult.Outcomes,
		Coverage:        orchResult.Coverage,
		ConsolidationMs: time.Since(consolidationStart).Milliseconds(),
	}, nil
}
