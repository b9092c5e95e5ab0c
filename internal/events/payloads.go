package events

import (
	"time"

	"github.com/antinvestor/releasegate/internal/risk"
)

// =============================================================================
// Assessment Request
// =============================================================================

// UnitPayload is one source unit submitted for assessment.
type UnitPayload struct {
	// ID names the unit, usually its path.
	ID string `json:"id" validate:"required,max=512"`

	// Original is the current source text.
	Original string `json:"original"`

	// Candidate is the proposed text; absent means the unit is unmodified.
	Candidate *string `json:"candidate,omitempty"`
}

// AssessmentRequestedPayload asks for a batch of units to be assessed.
type AssessmentRequestedPayload struct {
	// Units are assessed independently.
	Units []UnitPayload `json:"units" validate:"required,min=1,max=500,dive"`

	// Intent is handed to the modification engine for units without a candidate.
	Intent string `json:"intent,omitempty" validate:"max=10240"`

	// RequestedBy identifies the caller.
	RequestedBy string `json:"requested_by,omitempty"`

	// RequestedAt is when the request was accepted.
	RequestedAt time.Time `json:"requested_at"`
}

// =============================================================================
// Assessment Result
// =============================================================================

// UnitOutcome is the compact per-unit result published to consumers.
type UnitOutcome struct {
	UnitID   string `json:"unit_id"`
	Modified bool   `json:"modified"`
	Empty    bool   `json:"empty,omitempty"`

	OriginalComplexity  int  `json:"original_complexity"`
	CandidateComplexity *int `json:"candidate_complexity,omitempty"`

	OriginalMaintainability  float64  `json:"original_maintainability"`
	CandidateMaintainability *float64 `json:"candidate_maintainability,omitempty"`

	IssueCount    int    `json:"issue_count"`
	ChangeSummary string `json:"change_summary"`

	Score risk.Score `json:"score"`
}

// AssessmentCompletedPayload carries the scored result of one request.
type AssessmentCompletedPayload struct {
	// RequestID is the event ID of the originating request.
	RequestID EventID `json:"request_id"`

	// RunID identifies the pipeline run that produced the result.
	RunID RunID `json:"run_id"`

	// Gate is the aggregate release gate.
	Gate risk.Gate `json:"gate"`

	// Aggregate summarizes every unit.
	Aggregate risk.AggregateScore `json:"aggregate"`

	// Units are the per-unit outcomes in request order.
	Units []UnitOutcome `json:"units"`

	// CompletedAt is when scoring finished.
	CompletedAt time.Time `json:"completed_at"`

	// DurationMS is how long the run took.
	DurationMS int64 `json:"duration_ms"`
}

// AssessmentFailedPayload reports a request that could not be assessed.
type AssessmentFailedPayload struct {
	RequestID EventID   `json:"request_id"`
	RunID     RunID     `json:"run_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	FailedAt  time.Time `json:"failed_at"`
}
