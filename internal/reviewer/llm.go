package reviewer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/rc/internal/models"
)

// LLMAdapter reviews files through the Anthropic API. The analysis
// itself is delegated entirely to the model; this adapter only builds
// the prompt and normalizes the response.
type LLMAdapter struct {
	id    string
	api   *anthropic.Client
	model anthropic.Model
	focus string
}

// NewLLMAdapter creates an Anthropic-backed reviewer. focus is an
// optional instruction biasing the review toward one concern (security,
// performance, style).
func NewLLMAdapter(id, apiKey, model, focus string) *LLMAdapter {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &LLMAdapter{
		id:    id,
		api:   &client,
		model: anthropic.Model(model),
		focus: focus,
	}
}

// ID returns the reviewer identifier.
func (a *LLMAdapter) ID() string { return a.id }

const reviewSystemPrompt = `You are a code reviewer. Analyze the provided files and return ONLY a JSON array of findings with these fields:
- "file": path of the file the finding applies to
- "line": positive integer line number
- "priority": "P0" (critical), "P1" (warning), or "P2" (improvement)
- "confidence": number between 0.0 and 1.0
- "category": short classification such as "naming", "error-handling", "security", "configuration"
- "message": human-readable description of the finding
- "suggestion": optional fix recommendation

Rules:
- Return valid JSON only, no markdown fencing or explanation
- Return [] when there is nothing to report
- Do not invent findings for files you were not given`

// Invoke reads the files, sends them for review, and parses the
// response. Malformed responses go through best-effort salvage; when
// nothing can be salvaged the parse error is returned.
func (a *LLMAdapter) Invoke(ctx context.Context, files []string) ([]models.Issue, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to review")
	}

	userPrompt, err := buildReviewPrompt(files, a.focus)
	if err != nil {
		return nil, err
	}

	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: reviewSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	issues, err := ParseIssues(a.id, text)
	if err != nil && len(issues) == 0 {
		return nil, fmt.Errorf("parse reviewer response: %w", err)
	}
	// Salvaged issues are returned even when the full payload failed to
	// parse; their confidence is already capped by the parser.
	return issues, nil
}

// buildReviewPrompt inlines each file's content with a path header.
func buildReviewPrompt(files []string, focus string) (string, error) {
	var sb strings.Builder
	if focus != "" {
		sb.WriteString("Review focus: ")
		sb.WriteString(focus)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Review the following files:\n")
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		sb.WriteString("\n--- ")
		sb.WriteString(path)
		sb.WriteString(" ---\n")
		sb.Write(data)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
