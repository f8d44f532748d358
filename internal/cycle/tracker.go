// Package cycle tracks review-fix-re-review iterations and decides when
// to stop automated cycling and hand off to a human.
package cycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/models"
)

// systemicThreshold is the occurrence count at which a remaining-issue
// category is flagged systemic in a root-cause summary.
const systemicThreshold = 5

// HistoryStore is the subset of store.Store needed by the tracker. The
// history is append-only; the store must allow concurrent reads while a
// new iteration is being written.
type HistoryStore interface {
	LatestCycle(ctx context.Context, cycleID string) (*models.ReviewCycle, error)
	CreateCycle(ctx context.Context, c *models.ReviewCycle) error
}

// Config holds cycle policy.
type Config struct {
	// MaxIterations is the hard ceiling on automated rounds. At or past
	// it the cycle always escalates, even on good progress.
	MaxIterations int

	// MinImprovementRate is the fraction of previous issues that must
	// be fixed per round to keep cycling.
	MinImprovementRate float64
}

// DefaultConfig returns cycle policy, reading from viper when available.
func DefaultConfig() Config {
	cfg := Config{MaxIterations: 2, MinImprovementRate: 0.5}
	if n := viper.GetInt("cycle.max_iterations"); n > 0 {
		cfg.MaxIterations = n
	}
	if f := viper.GetFloat64("cycle.min_improvement_rate"); f > 0 && f <= 1 {
		cfg.MinImprovementRate = f
	}
	return cfg
}

// Tracker records iterations and evaluates the escalation policy.
type Tracker struct {
	store HistoryStore
	cfg   Config
}

// New creates a tracker backed by the given history store.
func New(s HistoryStore, cfg Config) *Tracker {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 2
	}
	if cfg.MinImprovementRate <= 0 {
		cfg.MinImprovementRate = 0.5
	}
	return &Tracker{store: s, cfg: cfg}
}

// RecordIteration appends one iteration's consolidated result to the
// cycle history, computes diff metrics against the previous iteration,
// evaluates the escalation policy, and persists the record.
func (t *Tracker) RecordIteration(ctx context.Context, cycleID string, issues, filtered []models.ConsolidatedIssue) (*models.ReviewCycle, error) {
	prev, err := t.store.LatestCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("load cycle history: %w", err)
	}

	c := &models.ReviewCycle{
		CycleID:        cycleID,
		Iteration:      1,
		IssuesFound:    issues,
		FilteredIssues: filtered,
	}

	if prev != nil {
		if prev.State != models.CycleInProgress {
			return nil, fmt.Errorf("cycle %s already terminal (%s)", cycleID, prev.State)
		}
		c.Iteration = prev.Iteration + 1
		diff(c, prev)
	}

	c.State, c.Reason = t.evaluate(c)

	if err := t.store.CreateCycle(ctx, c); err != nil {
		return nil, fmt.Errorf("persist cycle: %w", err)
	}
	return c, nil
}

// diff computes fixed/new/still-present counts against the previous
// iteration, keyed by the normalized (file, line, category) signature.
func diff(c, prev *models.ReviewCycle) {
	prevSigs := make(map[string]bool, len(prev.IssuesFound))
	for i := range prev.IssuesFound {
		prevSigs[prev.IssuesFound[i].Signature()] = true
	}
	curSigs := make(map[string]bool, len(c.IssuesFound))
	for i := range c.IssuesFound {
		curSigs[c.IssuesFound[i].Signature()] = true
	}

	for sig := range prevSigs {
		if curSigs[sig] {
			c.IssuesStillPresent++
		} else {
			c.IssuesFixedFromPrevious++
		}
	}
	for sig := range curSigs {
		if !prevSigs[sig] {
			c.NewIssuesIntroduced++
		}
	}

	if len(prev.IssuesFound) > 0 {
		c.ImprovementRate = float64(c.IssuesFixedFromPrevious) / float64(len(prev.IssuesFound))
	}
	c.NetImprovement = c.IssuesFixedFromPrevious - c.NewIssuesIntroduced
}

// evaluate applies the transition rules in order. The max-cycle ceiling
// is the catch-all terminal condition: past it the cycle escalates even
// on good progress, a deliberate policy of always handing off to a
// human after the configured number of automated rounds.
func (t *Tracker) evaluate(c *models.ReviewCycle) (models.CycleState, models.EscalationReason) {
	switch {
	case c.Iteration >= t.cfg.MaxIterations && c.P0Count() > 0:
		return models.CycleEscalated, models.EscalationCriticalPersist
	case c.Iteration > 1 && c.NetImprovement < 0:
		return models.CycleEscalated, models.EscalationRegression
	case c.Iteration > 1 && c.ImprovementRate < t.cfg.MinImprovementRate:
		return models.CycleEscalated, models.EscalationLowImprovement
	case len(c.IssuesFound) == 0:
		return models.CycleResolved, ""
	case c.Iteration >= t.cfg.MaxIterations:
		return models.CycleEscalated, models.EscalationMaxCycles
	default:
		return models.CycleInProgress, ""
	}
}

// RootCauseSummary groups remaining issues by category for an
// escalation report. Categories with systemicThreshold or more
// occurrences are flagged systemic; categories tied to missing
// configuration or registration are flagged blocking.
func RootCauseSummary(issues []models.ConsolidatedIssue) []models.CategorySummary {
	counts := make(map[string]int)
	for i := range issues {
		counts[issues[i].Category]++
	}

	out := make([]models.CategorySummary, 0, len(counts))
	for category, count := range counts {
		s := models.CategorySummary{Category: category, Count: count}
		if count >= systemicThreshold {
			s.Flags = append(s.Flags, models.CategorySystemic)
		}
		if isBlockingCategory(category) {
			s.Flags = append(s.Flags, models.CategoryBlocking)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func isBlockingCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "config") || strings.Contains(c, "registration") || strings.Contains(c, "registry")
}
