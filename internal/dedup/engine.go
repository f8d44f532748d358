package dedup

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/models"
)

// Config holds deduplication tuning.
type Config struct {
	// Threshold is the minimum combined similarity score at which two
	// issues merge. The comparison is inclusive: a score of exactly
	// Threshold merges.
	Threshold float64
}

// DefaultConfig returns the default dedup config, reading from viper
// when available.
func DefaultConfig() Config {
	threshold := viper.GetFloat64("dedup.similarity_threshold")
	if threshold <= 0 || threshold > 1 {
		threshold = 0.80
	}
	return Config{Threshold: threshold}
}

// Engine merges near-identical issues reported by multiple reviewers
// into consolidated issues.
type Engine struct {
	cfg Config
}

// New creates a dedup engine with the given config.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Deduplicate merges raw issues across reviewers into consolidated
// issues. Every input issue lands in exactly one consolidated issue's
// sources. The result is independent of input order: issues are sorted
// canonically before grouping and the output carries a deterministic
// ordering and deterministic IDs.
func (e *Engine) Deduplicate(all []models.Issue, totalReviewers int) []models.ConsolidatedIssue {
	if len(all) == 0 {
		return []models.ConsolidatedIssue{}
	}

	issues := make([]models.Issue, len(all))
	copy(issues, all)
	sortIssues(issues)

	// Phase 1: exact-match grouping by (normalized path, line, category).
	byKey := make(map[string][]models.Issue)
	var keys []string
	for _, issue := range issues {
		key := models.IssueSignature(issue.File, issue.Line, issue.Category)
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], issue)
	}

	var groups [][]models.Issue
	var singles []models.Issue
	for _, key := range keys {
		group := byKey[key]
		if len(group) >= 2 {
			groups = append(groups, group)
		} else {
			singles = append(singles, group[0])
		}
	}

	// Phase 2: similarity clustering of the remaining ungrouped issues.
	// Merging is transitive: if A matches B and B matches C, all three
	// become one consolidated issue even if A and C alone score below
	// the threshold.
	uf := newUnionFind(len(singles))
	for i := 0; i < len(singles); i++ {
		for j := i + 1; j < len(singles); j++ {
			if Similarity(singles[i], singles[j]) >= e.cfg.Threshold {
				uf.union(i, j)
			}
		}
	}
	components := make(map[int][]models.Issue)
	var roots []int
	for i, issue := range singles {
		root := uf.find(i)
		if _, ok := components[root]; !ok {
			roots = append(roots, root)
		}
		components[root] = append(components[root], issue)
	}
	for _, root := range roots {
		groups = append(groups, components[root])
	}

	out := make([]models.ConsolidatedIssue, 0, len(groups))
	for _, group := range groups {
		out = append(out, consolidate(group, totalReviewers))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Lines.Start != out[j].Lines.Start {
			return out[i].Lines.Start < out[j].Lines.Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// consolidate merges one group of raw issues into a single consolidated
// issue. Priority takes the highest severity found; the line is recorded
// as a range spanning all sources; messages stay verbatim in the source
// list. Confidence is left for the aggregator.
func consolidate(group []models.Issue, totalReviewers int) models.ConsolidatedIssue {
	sortIssues(group)

	first := group[0]
	ci := models.ConsolidatedIssue{
		File:     models.NormalizePath(first.File),
		Category: first.Category,
		Priority: first.Priority,
		Lines:    models.LineRange{Start: first.Line, End: first.Line},
	}

	highest, lowest := first.Priority, first.Priority
	for _, issue := range group {
		ci.Sources = append(ci.Sources, models.Source{ReviewerID: issue.ReviewerID, Issue: issue})
		if issue.Line < ci.Lines.Start {
			ci.Lines.Start = issue.Line
		}
		if issue.Line > ci.Lines.End {
			ci.Lines.End = issue.Line
		}
		if models.PriorityRank(issue.Priority) > models.PriorityRank(highest) {
			highest = issue.Priority
		}
		if models.PriorityRank(issue.Priority) < models.PriorityRank(lowest) {
			lowest = issue.Priority
		}
	}
	ci.Priority = highest
	if models.PriorityRank(highest)-models.PriorityRank(lowest) >= 2 {
		ci.Conflict = &models.PriorityConflict{Highest: highest, Lowest: lowest}
	}

	if totalReviewers > 0 {
		ci.AgreementRatio = float64(len(distinctReviewers(group))) / float64(totalReviewers)
	}

	ci.ID = consolidatedID(ci)
	return ci
}

// consolidatedID derives a stable identifier from the issue's location
// and category so that identical input sets always produce identical
// reports.
func consolidatedID(ci models.ConsolidatedIssue) string {
	data := fmt.Sprintf("%s:%d:%d:%s", ci.File, ci.Lines.Start, ci.Lines.End, ci.Category)
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", h[:8])
}

func distinctReviewers(group []models.Issue) []string {
	seen := make(map[string]bool, len(group))
	var ids []string
	for _, issue := range group {
		if !seen[issue.ReviewerID] {
			seen[issue.ReviewerID] = true
			ids = append(ids, issue.ReviewerID)
		}
	}
	return ids
}

// sortIssues orders issues canonically so grouping and merge tie-breaks
// never depend on reviewer completion order.
func sortIssues(issues []models.Issue) {
	sort.Slice(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.ReviewerID != b.ReviewerID {
			return a.ReviewerID < b.ReviewerID
		}
		return a.Message < b.Message
	})
}

// unionFind is a plain disjoint-set with path compression, used for
// transitive merge components.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		if rb < ra {
			ra, rb = rb, ra
		}
		u.parent[rb] = ra
	}
}
