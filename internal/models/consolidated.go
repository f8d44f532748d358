package models

import (
	"fmt"
	"strings"
)

// LineRange spans the lines covered by a consolidated issue's sources.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Source ties a merged raw issue back to the reviewer that reported it,
// preserving the original wording for traceability.
type Source struct {
	ReviewerID string `json:"reviewer_id"`
	Issue      Issue  `json:"issue"`
}

// PriorityConflict records a sharp disagreement between sources (e.g. one
// reviewer said P0, another P2). Informational, not an error: the ANY-P0
// rule resolves it deterministically, but both original values are kept
// for auditability.
type PriorityConflict struct {
	Highest Priority `json:"highest"`
	Lowest  Priority `json:"lowest"`
}

// ConsolidatedIssue is the merged representation of one or more raw
// issues judged to refer to the same underlying problem. Created once per
// report generation and read-only afterward.
type ConsolidatedIssue struct {
	ID             string            `json:"id"`
	File           string            `json:"file"`
	Lines          LineRange         `json:"lines"`
	Category       string            `json:"category"`
	Priority       Priority          `json:"priority"`
	Confidence     float64           `json:"confidence"`
	AgreementRatio float64           `json:"agreement_ratio"`
	Rationale      string            `json:"rationale"`
	Sources        []Source          `json:"sources"`
	Conflict       *PriorityConflict `json:"conflict,omitempty"`
}

// Message concatenates the unique source messages, separated by " | ",
// without paraphrasing any of them.
func (c *ConsolidatedIssue) Message() string {
	seen := make(map[string]bool, len(c.Sources))
	var parts []string
	for _, s := range c.Sources {
		if !seen[s.Issue.Message] {
			seen[s.Issue.Message] = true
			parts = append(parts, s.Issue.Message)
		}
	}
	return strings.Join(parts, " | ")
}

// Reviewers returns the distinct reviewer IDs that reported this issue,
// in source order.
func (c *ConsolidatedIssue) Reviewers() []string {
	seen := make(map[string]bool, len(c.Sources))
	var ids []string
	for _, s := range c.Sources {
		if !seen[s.ReviewerID] {
			seen[s.ReviewerID] = true
			ids = append(ids, s.ReviewerID)
		}
	}
	return ids
}

// Signature is the normalized (file, line, category) key used to match
// an issue across cycle iterations.
func (c *ConsolidatedIssue) Signature() string {
	return IssueSignature(c.File, c.Lines.Start, c.Category)
}

// IssueSignature builds the normalized diff key for a finding.
func IssueSignature(file string, line int, category string) string {
	return fmt.Sprintf("%s:%d:%s", NormalizePath(file), line, strings.ToLower(strings.TrimSpace(category)))
}

// NormalizePath canonicalizes a file path for grouping: forward slashes,
// no leading "./", case preserved.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return p
}
