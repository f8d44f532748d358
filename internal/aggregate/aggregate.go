// Package aggregate assigns the final priority and confidence to a
// consolidated issue from the priorities and confidences of its merged
// sources. The aggregator is pure: identical input always produces
// identical output regardless of call order.
package aggregate

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/models"
)

// Config holds aggregation tuning.
type Config struct {
	// Weights maps reviewer ID to its confidence weight. Reviewers not
	// in the map weigh DefaultWeight. A specialized reviewer whose
	// domain expertise is more reliable can carry a higher weight,
	// e.g. 1.2.
	Weights map[string]float64

	// DefaultWeight applies to reviewers without an explicit weight.
	DefaultWeight float64
}

// DefaultConfig returns the default aggregation config, reading the
// per-reviewer weight map from viper when available.
func DefaultConfig() Config {
	weights := map[string]float64{}
	for id, w := range viper.GetStringMap("aggregate.reviewer_weights") {
		// YAML decodes whole-number weights as int.
		if f := cast.ToFloat64(w); f > 0 {
			weights[id] = f
		}
	}
	return Config{Weights: weights, DefaultWeight: 1.0}
}

// Aggregator combines source priorities and confidences.
type Aggregator struct {
	cfg Config
}

// New creates an aggregator with the given config.
func New(cfg Config) *Aggregator {
	if cfg.DefaultWeight <= 0 {
		cfg.DefaultWeight = 1.0
	}
	return &Aggregator{cfg: cfg}
}

// Aggregate fills in the final priority, confidence, and rationale of a
// consolidated issue and returns the updated copy. The priority rule is
// evaluated in order:
//
//  1. Any P0 source wins outright: a false negative on a critical issue
//     is costlier than a false positive.
//  2. P1 when the count of P1 sources is at least half the distinct
//     reviewers on the issue, ties rounding in favor of P1.
//  3. P2 otherwise.
func (a *Aggregator) Aggregate(ci models.ConsolidatedIssue) models.ConsolidatedIssue {
	reviewers := ci.Reviewers()

	p0, p1 := 0, 0
	for _, s := range ci.Sources {
		switch s.Issue.Priority {
		case models.PriorityP0:
			p0++
		case models.PriorityP1:
			p1++
		}
	}

	switch {
	case p0 > 0:
		ci.Priority = models.PriorityP0
		ci.Rationale = "ANY-P0 rule"
	case len(reviewers) > 0 && 2*p1 >= len(reviewers):
		ci.Priority = models.PriorityP1
		ci.Rationale = fmt.Sprintf("majority consensus %d/%d", p1, len(reviewers))
	default:
		ci.Priority = models.PriorityP2
		ci.Rationale = "default conservative"
	}

	ci.Confidence = a.weightedConfidence(ci.Sources)
	return ci
}

// weightedConfidence averages source confidences by per-reviewer weight,
// clamped to [0,1].
func (a *Aggregator) weightedConfidence(sources []models.Source) float64 {
	var sum, total float64
	for _, s := range sources {
		w := a.cfg.DefaultWeight
		if override, ok := a.cfg.Weights[s.ReviewerID]; ok {
			w = override
		}
		sum += w * s.Issue.Confidence
		total += w
	}
	if total == 0 {
		return 0
	}
	c := sum / total
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
