// Package pipeline runs the metrics analyzer, change detector and risk
// assessor over a batch of units and aggregates the outcome into a report.
package pipeline

import (
	"time"

	"github.com/antinvestor/releasegate/internal/changes"
	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/metrics"
	"github.com/antinvestor/releasegate/internal/risk"
)

// Unit is one file-sized piece of source offered for assessment. A nil
// Candidate means no modified version exists.
type Unit struct {
	ID        string
	Original  string
	Candidate *string
}

// UnitResult is the assessment of one unit.
type UnitResult struct {
	UnitID string `json:"unit_id"`

	// Modified records whether a candidate was supplied, even when it is
	// identical to the original.
	Modified bool `json:"modified"`

	// Empty marks a unit whose original and candidate were both empty.
	Empty bool `json:"empty,omitempty"`

	Original  metrics.Result    `json:"original"`
	Candidate *metrics.Result   `json:"candidate,omitempty"`
	Changes   changes.ChangeSet `json:"changes"`
	Score     risk.Score        `json:"score"`
}

// Report is the outcome of one run.
type Report struct {
	RunID      events.RunID        `json:"run_id"`
	Units      []UnitResult        `json:"units"`
	Aggregate  risk.AggregateScore `json:"aggregate"`
	StartedAt  time.Time           `json:"started_at"`
	DurationMS int64               `json:"duration_ms"`
}

// Gate is the release verdict of the run.
func (r *Report) Gate() risk.Gate {
	return r.Aggregate.Gate
}
