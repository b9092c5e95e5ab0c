package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/llm"
	"github.com/antinvestor/releasegate/internal/pipeline"
)

// ErrModificationUnavailable is returned when a request carries an intent but
// no modification engine is configured.
var ErrModificationUnavailable = errors.New("modification engine not configured")

// Runner is the part of pipeline.Runner the evaluator needs.
type Runner interface {
	RunWithID(ctx context.Context, runID events.RunID, units []pipeline.Unit) (*pipeline.Report, error)
}

// Evaluator turns assessment requests into completed assessment payloads.
// It is shared by the HTTP handler and the queue subscriber.
type Evaluator struct {
	runner  Runner
	engine  llm.Engine
	timeout time.Duration
}

// NewEvaluator creates an evaluator. engine may be nil, in which case
// requests carrying an intent are rejected. A non-positive timeout disables
// the per-run limit.
func NewEvaluator(runner Runner, engine llm.Engine, timeout time.Duration) *Evaluator {
	return &Evaluator{runner: runner, engine: engine, timeout: timeout}
}

// CanModify reports whether intents can be honoured.
func (e *Evaluator) CanModify() bool {
	return e.engine != nil
}

// Evaluate runs one request under runID.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	requestID events.EventID,
	runID events.RunID,
	req *events.AssessmentRequestedPayload,
) (*events.AssessmentCompletedPayload, error) {
	log := util.Log(ctx).WithField("request_id", requestID.String()).WithField("run_id", runID.String())

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var provider pipeline.Provider = pipeline.NewMemoryProvider(UnitsFromPayload(req.Units)...)
	if req.Intent != "" {
		if e.engine == nil {
			return nil, ErrModificationUnavailable
		}
		provider = pipeline.NewModifyingProvider(provider, e.engine, req.Intent)
	}

	units, err := provider.Units(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect units: %w", err)
	}

	report, err := e.runner.RunWithID(ctx, runID, units)
	if err != nil {
		return nil, fmt.Errorf("run assessment: %w", err)
	}

	log.Info("assessment evaluated",
		"units", len(report.Units),
		"gate", report.Aggregate.Gate,
		"requested_by", req.RequestedBy,
	)

	return &events.AssessmentCompletedPayload{
		RequestID:   requestID,
		RunID:       report.RunID,
		Gate:        report.Aggregate.Gate,
		Aggregate:   report.Aggregate,
		Units:       Outcomes(report),
		CompletedAt: time.Now(),
		DurationMS:  report.DurationMS,
	}, nil
}

// UnitsFromPayload converts wire units into pipeline units.
func UnitsFromPayload(in []events.UnitPayload) []pipeline.Unit {
	units := make([]pipeline.Unit, 0, len(in))
	for _, u := range in {
		units = append(units, pipeline.Unit{ID: u.ID, Original: u.Original, Candidate: u.Candidate})
	}
	return units
}

// Outcomes summarizes the units of a report for publication.
func Outcomes(report *pipeline.Report) []events.UnitOutcome {
	out := make([]events.UnitOutcome, 0, len(report.Units))
	for _, u := range report.Units {
		o := events.UnitOutcome{
			UnitID:                  u.UnitID,
			Modified:                u.Modified,
			Empty:                   u.Empty,
			OriginalComplexity:      u.Original.CyclomaticComplexity,
			OriginalMaintainability: u.Original.MaintainabilityIndex,
			IssueCount:              len(u.Original.Issues),
			ChangeSummary:           u.Changes.Summary,
			Score:                   u.Score,
		}
		if u.Candidate != nil {
			cc := u.Candidate.CyclomaticComplexity
			mi := u.Candidate.MaintainabilityIndex
			o.CandidateComplexity = &cc
			o.CandidateMaintainability = &mi
			o.IssueCount = len(u.Candidate.Issues)
		}
		out = append(out, o)
	}
	return out
}
