package models

import "time"

// OutcomeStatus tags a ReviewerOutcome variant.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeTimeout OutcomeStatus = "timeout"
	OutcomeError   OutcomeStatus = "error"
)

// ReviewerOutcome is the result of invoking one reviewer adapter.
// Exactly one variant applies: Success carries issues, Timeout means the
// reviewer exceeded its budget, Error means it crashed or returned
// unparsable output. Issues may be non-empty on Error when best-effort
// salvage recovered some findings.
type ReviewerOutcome struct {
	ReviewerID string
	Status     OutcomeStatus
	Issues     []Issue
	Err        string
	Elapsed    time.Duration
}

// Succeeded reports whether the reviewer completed within budget.
func (o ReviewerOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// OrchestrationResult is the collected output of a concurrent review run.
type OrchestrationResult struct {
	Outcomes []ReviewerOutcome // all outcomes, successful or not
	Coverage float64           // fraction of reviewers that succeeded
	Invoked  int               // number of reviewers launched
}

// Successful returns only the outcomes that completed within budget.
func (r *OrchestrationResult) Successful() []ReviewerOutcome {
	var out []ReviewerOutcome
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the outcomes that timed out or errored.
func (r *OrchestrationResult) Failed() []ReviewerOutcome {
	var out []ReviewerOutcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// RawIssues flattens the issues of all successful outcomes.
func (r *OrchestrationResult) RawIssues() []Issue {
	var issues []Issue
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			issues = append(issues, o.Issues...)
		}
	}
	return issues
}
