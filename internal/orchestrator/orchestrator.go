// Package orchestrator launches reviewer adapters concurrently, races
// each against its timeout, and enforces the minimum-coverage policy
// before consolidation is allowed to proceed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/models"
	"github.com/joescharf/rc/internal/reviewer"
)

// Config holds orchestration policy.
type Config struct {
	// Timeout is the per-reviewer budget. A reviewer still running at
	// the deadline is abandoned and its eventual result discarded.
	Timeout time.Duration

	// MinCoverage is the fraction of reviewers that must succeed for
	// the run to proceed. With a single reviewer it degenerates to
	// "that reviewer must succeed".
	MinCoverage float64

	// CancelOnP0 abandons still-running reviewers as soon as one
	// success reports a critical issue. Off by default; when it fires,
	// the coverage check is skipped because the missing results were
	// cut off deliberately.
	CancelOnP0 bool
}

// DefaultConfig returns orchestration policy, reading from viper when
// available.
func DefaultConfig() Config {
	cfg := Config{
		Timeout:     reviewer.DefaultConfig().Timeout,
		MinCoverage: 2.0 / 3.0,
	}
	if f := viper.GetFloat64("orchestrator.min_coverage"); f > 0 && f <= 1 {
		cfg.MinCoverage = f
	}
	cfg.CancelOnP0 = viper.GetBool("orchestrator.cancel_on_p0")
	return cfg
}

// InsufficientCoverageError is the hard failure returned when too few
// reviewers succeeded. No report is produced; the message names every
// missing reviewer, whether it timed out or errored, and what to try.
type InsufficientCoverageError struct {
	Coverage float64
	Minimum  float64
	Outcomes []models.ReviewerOutcome
}

func (e *InsufficientCoverageError) Error() string {
	var failed []string
	for _, o := range e.Outcomes {
		switch o.Status {
		case models.OutcomeTimeout:
			failed = append(failed, fmt.Sprintf("%s (timeout after %s)", o.ReviewerID, o.Elapsed.Round(time.Millisecond)))
		case models.OutcomeError:
			failed = append(failed, fmt.Sprintf("%s (error: %s)", o.ReviewerID, o.Err))
		}
	}
	return fmt.Sprintf(
		"insufficient coverage: %.0f%% of reviewers succeeded (minimum %.0f%%); failed: %s; try increasing the reviewer timeout, reducing the file set, or retrying",
		e.Coverage*100, e.Minimum*100, strings.Join(failed, ", "),
	)
}

// Orchestrator runs a set of reviewer adapters as one logical review.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator with the given policy.
func New(cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = reviewer.DefaultTimeout
	}
	if cfg.MinCoverage <= 0 || cfg.MinCoverage > 1 {
		cfg.MinCoverage = 2.0 / 3.0
	}
	return &Orchestrator{cfg: cfg}
}

// Run launches every adapter concurrently and collects outcomes. All
// adapters start at the same logical instant and never wait on each
// other; each operates on its own copy of the file list. The deadline
// is hard: an adapter that ignores its context is abandoned when the
// timer fires and whatever it produces later is discarded. Returns
// InsufficientCoverageError when fewer than the configured fraction
// succeed.
func (o *Orchestrator) Run(ctx context.Context, adapters []reviewer.Adapter, files []string) (*models.OrchestrationResult, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no reviewers to run")
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to review")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		idx     int
		outcome models.ReviewerOutcome
	}
	// Buffered so abandoned adapters can still finish and exit.
	results := make(chan indexed, len(adapters))

	for i, adapter := range adapters {
		go func(i int, a reviewer.Adapter) {
			fileCopy := make([]string, len(files))
			copy(fileCopy, files)

			invokeCtx, invokeCancel := context.WithTimeout(runCtx, o.cfg.Timeout)
			defer invokeCancel()

			start := time.Now()
			issues, err := a.Invoke(invokeCtx, fileCopy)
			elapsed := time.Since(start)

			outcome := models.ReviewerOutcome{ReviewerID: a.ID(), Elapsed: elapsed}
			switch {
			case err == nil:
				outcome.Status = models.OutcomeSuccess
				outcome.Issues = issues
			case errors.Is(err, context.DeadlineExceeded) || errors.Is(invokeCtx.Err(), context.DeadlineExceeded):
				outcome.Status = models.OutcomeTimeout
			case errors.Is(err, context.Canceled):
				outcome.Status = models.OutcomeError
				outcome.Err = "canceled"
			default:
				outcome.Status = models.OutcomeError
				outcome.Err = err.Error()
			}
			results <- indexed{idx: i, outcome: outcome}
		}(i, adapter)
	}

	deadline := time.NewTimer(o.cfg.Timeout)
	defer deadline.Stop()

	outcomes := make([]models.ReviewerOutcome, len(adapters))
	reported := make([]bool, len(adapters))
	var earlyStop bool
	pending := len(adapters)
collect:
	for pending > 0 {
		select {
		case r := <-results:
			outcomes[r.idx] = r.outcome
			reported[r.idx] = true
			pending--
			if o.cfg.CancelOnP0 && r.outcome.Succeeded() && hasP0(r.outcome.Issues) {
				earlyStop = true
				cancel()
			}
		case <-deadline.C:
			break collect
		}
	}
	for i, a := range adapters {
		if !reported[i] {
			outcomes[i] = models.ReviewerOutcome{
				ReviewerID: a.ID(),
				Status:     models.OutcomeTimeout,
				Elapsed:    o.cfg.Timeout,
			}
		}
	}

	// Outcome order must not depend on completion order.
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].ReviewerID < outcomes[j].ReviewerID
	})

	succeeded := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	result := &models.OrchestrationResult{
		Outcomes: outcomes,
		Coverage: float64(succeeded) / float64(len(adapters)),
		Invoked:  len(adapters),
	}

	if !earlyStop && result.Coverage < o.cfg.MinCoverage {
		return nil, &InsufficientCoverageError{
			Coverage: result.Coverage,
			Minimum:  o.cfg.MinCoverage,
			Outcomes: outcomes,
		}
	}
	return result, nil
}

func hasP0(issues []models.Issue) bool {
	for _, issue := range issues {
		if issue.Priority == models.PriorityP0 {
			return true
		}
	}
	return false
}
