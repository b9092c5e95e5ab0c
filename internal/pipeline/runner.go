package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/sync/errgroup"

	"github.com/antinvestor/releasegate/internal/changes"
	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/metrics"
	"github.com/antinvestor/releasegate/internal/policy"
	"github.com/antinvestor/releasegate/internal/risk"
)

// ErrDuplicateUnit is returned when two units share an identifier.
var ErrDuplicateUnit = errors.New("duplicate unit id")

// Runner assesses batches of units concurrently. It holds no per-run state
// and may serve several runs at once.
type Runner struct {
	assessor  *risk.Assessor
	detector  *changes.Detector
	batchSize int
	analyzers map[metrics.Language]*metrics.Analyzer
}

// NewRunner validates the policy and builds a runner from it.
func NewRunner(pol policy.Policy) (*Runner, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	assessor, err := risk.NewAssessor(pol.Risk)
	if err != nil {
		return nil, err
	}

	analyzers := make(map[metrics.Language]*metrics.Analyzer, 4)
	for _, lang := range []metrics.Language{
		metrics.LanguagePython,
		metrics.LanguageJava,
		metrics.LanguageCPP,
		metrics.LanguageJavaScript,
	} {
		analyzers[lang] = metrics.NewAnalyzerFor(lang, metrics.WithThresholds(pol.Thresholds))
	}

	return &Runner{
		assessor:  assessor,
		detector:  changes.NewDetector(0),
		batchSize: pol.BatchSize,
		analyzers: analyzers,
	}, nil
}

// Assessor exposes the risk assessor bound to this runner.
func (r *Runner) Assessor() *risk.Assessor {
	return r.assessor
}

// Run assesses every unit and aggregates the outcome. Units keep their input
// order in the report. When ctx is cancelled no partial report is returned.
func (r *Runner) Run(ctx context.Context, units []Unit) (*Report, error) {
	runID := events.NewRunID()
	return r.RunWithID(ctx, runID, units)
}

// RunWithID is Run with a caller-chosen run identifier.
func (r *Runner) RunWithID(ctx context.Context, runID events.RunID, units []Unit) (*Report, error) {
	log := util.Log(ctx).WithField("run_id", runID.String())
	started := time.Now()

	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if _, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUnit, u.ID)
		}
		seen[u.ID] = struct{}{}
	}

	log.Info("assessment run started", "units", len(units), "batch_size", r.batchSize)

	results := make([]UnitResult, len(units))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.batchSize)
	for i := range units {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = r.AssessUnit(gCtx, units[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("assessment run aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("assessment run aborted")
		return nil, err
	}

	scores := make([]risk.UnitScore, 0, len(results))
	for _, res := range results {
		scores = append(scores, risk.UnitScore{UnitID: res.UnitID, Score: res.Score})
	}

	report := &Report{
		RunID:      runID,
		Units:      results,
		Aggregate:  risk.Aggregate(scores),
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	}

	log.Info("assessment run completed",
		"gate", report.Aggregate.Gate,
		"mean_score", report.Aggregate.WeightedTotal,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

// AssessUnit analyzes one unit in isolation.
func (r *Runner) AssessUnit(ctx context.Context, u Unit) UnitResult {
	res := UnitResult{
		UnitID:   u.ID,
		Modified: u.Candidate != nil,
	}

	analyzer := r.analyzerFor(u.ID)
	res.Original = analyzer.Analyze(ctx, u.Original)
	if u.Candidate != nil {
		cand := analyzer.Analyze(ctx, *u.Candidate)
		res.Candidate = &cand
	}
	res.Changes = r.detector.Diff(u.ID, u.Original, u.Candidate)

	if u.Original == "" && (u.Candidate == nil || *u.Candidate == "") {
		res.Empty = true
		res.Score = r.assessor.EmptyScore()
		return res
	}

	res.Score = r.assessor.Assess(res.Original, res.Candidate, res.Changes)
	return res
}

// analyzerFor picks the analyzer by the unit's extension. Identifiers without
// a known extension are treated as Python.
func (r *Runner) analyzerFor(unitID string) *metrics.Analyzer {
	if a, ok := r.analyzers[metrics.LanguageForPath(unitID)]; ok {
		return a
	}
	return r.analyzers[metrics.LanguagePython]
}
