package models

import "time"

// CycleState is the state of a review-fix-re-review loop.
type CycleState string

const (
	CycleInProgress CycleState = "in_progress"
	CycleResolved   CycleState = "resolved"
	CycleEscalated  CycleState = "escalated"
)

// EscalationReason explains why a cycle was handed off to a human.
type EscalationReason string

const (
	EscalationCriticalPersist EscalationReason = "critical issues persist"
	EscalationRegression      EscalationReason = "regression"
	EscalationLowImprovement  EscalationReason = "low improvement rate"
	EscalationMaxCycles       EscalationReason = "max cycles reached"
)

// ReviewCycle records one iteration of a fix-review loop. Iterations
// strictly increase within a CycleID; diff metrics are zero for the
// first iteration, which has no previous set to compare against.
type ReviewCycle struct {
	ID          string
	CycleID     string
	Iteration   int
	State       CycleState
	Reason      EscalationReason
	IssuesFound []ConsolidatedIssue

	IssuesFixedFromPrevious int
	NewIssuesIntroduced     int
	IssuesStillPresent      int
	ImprovementRate         float64
	NetImprovement          int

	// FilteredIssues are the consolidated issues excluded from the main
	// report by the confidence floor. Kept as raw appendix data so the
	// filtering is never silent.
	FilteredIssues []ConsolidatedIssue

	CreatedAt time.Time
}

// P0Count returns the number of critical issues found this iteration.
func (c *ReviewCycle) P0Count() int {
	n := 0
	for i := range c.IssuesFound {
		if c.IssuesFound[i].Priority == PriorityP0 {
			n++
		}
	}
	return n
}

// ReviewerRun logs one reviewer's outcome within a cycle iteration, for
// coverage reporting and audit.
type ReviewerRun struct {
	ID         string
	CycleRowID string // ReviewCycle.ID this run belongs to
	ReviewerID string
	Status     OutcomeStatus
	IssueCount int
	Error      string
	ElapsedMs  int64
	CreatedAt  time.Time
}

// CategoryFlag classifies a remaining-issue category in a root-cause
// summary.
type CategoryFlag string

const (
	// CategorySystemic marks categories with five or more occurrences.
	CategorySystemic CategoryFlag = "systemic"
	// CategoryBlocking marks categories tied to missing configuration or
	// registration.
	CategoryBlocking CategoryFlag = "blocking"
)

// CategorySummary is one row of an escalation root-cause summary.
type CategorySummary struct {
	Category string
	Count    int
	Flags    []CategoryFlag
}
