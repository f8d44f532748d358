package reviewer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/joescharf/rc/internal/models"
)

// CommandAdapter runs an external review binary. The binary receives the
// file paths as arguments and must write a JSON array of findings to
// stdout, in the same schema the LLM adapter expects.
type CommandAdapter struct {
	id      string
	command string
	args    []string
}

// NewCommandAdapter creates a reviewer backed by an external command.
func NewCommandAdapter(id, command string, args ...string) *CommandAdapter {
	return &CommandAdapter{id: id, command: command, args: args}
}

// ID returns the reviewer identifier.
func (a *CommandAdapter) ID() string { return a.id }

// Invoke runs the command with the file list appended to its arguments.
// The process is killed when ctx is cancelled, which is how the
// orchestrator enforces the reviewer timeout.
func (a *CommandAdapter) Invoke(ctx context.Context, files []string) ([]models.Issue, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to review")
	}

	args := append(append([]string{}, a.args...), files...)
	cmd := exec.CommandContext(ctx, a.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reviewer command %s: %w (stderr: %s)", a.command, err, bytes.TrimSpace(stderr.Bytes()))
	}

	issues, err := ParseIssues(a.id, stdout.String())
	if err != nil && len(issues) == 0 {
		return nil, fmt.Errorf("parse reviewer output: %w", err)
	}
	return issues, nil
}
