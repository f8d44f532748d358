package models

// Priority represents the severity of a review finding.
type Priority string

const (
	PriorityP0 Priority = "P0" // critical
	PriorityP1 Priority = "P1" // warning
	PriorityP2 Priority = "P2" // improvement
)

// PriorityRank returns a numeric rank for comparison (higher = more severe).
func PriorityRank(p Priority) int {
	switch p {
	case PriorityP0:
		return 3
	case PriorityP1:
		return 2
	case PriorityP2:
		return 1
	default:
		return 0
	}
}

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p Priority) bool {
	return PriorityRank(p) > 0
}

// Issue is a single raw finding reported by one reviewer. Issues are
// immutable after creation; the Message field preserves the reviewer's
// original wording verbatim and is never rewritten.
type Issue struct {
	File       string   `json:"file"`
	Line       int      `json:"line"`
	ReviewerID string   `json:"reviewer_id"`
	Priority   Priority `json:"priority"`
	Confidence float64  `json:"confidence"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}
