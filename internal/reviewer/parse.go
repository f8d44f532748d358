package reviewer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joescharf/rc/internal/models"
)

// salvageConfidenceCap is the ceiling applied to issues recovered by
// best-effort parsing of malformed reviewer output. A reviewer that
// can't produce clean JSON doesn't get full trust on what was salvaged.
const salvageConfidenceCap = 0.5

// rawIssue is the JSON shape reviewers emit, one element per finding.
type rawIssue struct {
	File       string  `json:"file"`
	Line       int     `json:"line"`
	Priority   string  `json:"priority"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Message    string  `json:"message"`
	Suggestion string  `json:"suggestion"`
}

// ParseIssues decodes a reviewer's output into issues attributed to
// reviewerID. When the payload is not a clean JSON array it attempts a
// best-effort salvage: any array elements that decode individually are
// returned with their confidence capped, alongside the parse error.
func ParseIssues(reviewerID, content string) ([]models.Issue, error) {
	content = stripFences(content)

	var raw []rawIssue
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		salvaged := salvageIssues(reviewerID, content)
		return salvaged, fmt.Errorf("invalid JSON array: %w", err)
	}

	issues := make([]models.Issue, 0, len(raw))
	for _, r := range raw {
		issue, ok := normalizeIssue(reviewerID, r, 1.0)
		if !ok {
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// salvageIssues decodes whatever array elements it can from a malformed
// payload. Salvaged issues are capped at salvageConfidenceCap.
func salvageIssues(reviewerID, content string) []models.Issue {
	dec := json.NewDecoder(strings.NewReader(content))

	// Expect an opening bracket; if even that is missing there is
	// nothing to salvage.
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil
	}

	var issues []models.Issue
	for dec.More() {
		var r rawIssue
		if err := dec.Decode(&r); err != nil {
			break
		}
		if issue, ok := normalizeIssue(reviewerID, r, salvageConfidenceCap); ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

// normalizeIssue validates and converts one raw element. Findings with
// no file, a non-positive line, or an unknown priority are rejected.
func normalizeIssue(reviewerID string, r rawIssue, confidenceCap float64) (models.Issue, bool) {
	priority := models.Priority(strings.ToUpper(strings.TrimSpace(r.Priority)))
	if r.File == "" || r.Line <= 0 || !models.ValidPriority(priority) {
		return models.Issue{}, false
	}

	confidence := r.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > confidenceCap {
		confidence = confidenceCap
	}

	return models.Issue{
		File:       models.NormalizePath(r.File),
		Line:       r.Line,
		ReviewerID: reviewerID,
		Priority:   priority,
		Confidence: confidence,
		Category:   strings.ToLower(strings.TrimSpace(r.Category)),
		Message:    r.Message,
		Suggestion: r.Suggestion,
	}, true
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.SplitN(content, "\n", 2)
	if len(lines) > 1 {
		content = lines[1]
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}
