package dedup

import (
	"strings"

	"github.com/joescharf/rc/internal/models"
)

// Similarity weights. Messages dominate because two reviewers flagging
// the same problem rarely land on the same line but usually describe it
// in overlapping words.
const (
	weightFile    = 0.25
	weightLine    = 0.25
	weightMessage = 0.50

	// lineWindow is the maximum line distance at which two issues can
	// still refer to the same problem. Farther apart never merges.
	lineWindow = 10
)

// Similarity scores how likely two raw issues describe the same
// underlying problem, in [0,1]. Issues in different files never match.
func Similarity(a, b models.Issue) float64 {
	if models.NormalizePath(a.File) != models.NormalizePath(b.File) {
		return 0
	}

	dist := a.Line - b.Line
	if dist < 0 {
		dist = -dist
	}
	if dist > lineWindow {
		return 0
	}
	lineDecay := 1.0 - float64(dist)/float64(lineWindow)

	return weightFile + weightLine*lineDecay + weightMessage*messageSimilarity(a.Message, b.Message)
}

// messageSimilarity is the normalized edit-distance ratio of the two
// messages after whitespace/case normalization.
func messageSimilarity(a, b string) float64 {
	a = normalizeMessage(a)
	b = normalizeMessage(b)
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(longest)
}

func normalizeMessage(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming form.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
