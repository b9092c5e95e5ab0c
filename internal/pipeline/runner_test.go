package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/metrics"
	"github.com/antinvestor/releasegate/internal/pipeline"
	"github.com/antinvestor/releasegate/internal/policy"
	"github.com/antinvestor/releasegate/internal/risk"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const greetSource = `def greet(name):
    """Say hello."""
    return "Hello, " + name
`

const authOriginal = `def authenticate_user(username, password):
    """Check credentials."""
    if not username:
        return False
    if not password:
        return False
    return True
`

const authCandidate = `def authenticate_user(username, password):
    """Check credentials."""
    if not username:
        return False
    if not password:
        return False
    if len(username) > 64:
        return False
    if len(password) < 8:
        return False
    if username.startswith("admin"):
        return False
    if " " in username:
        return False
    if password == username:
        return False
    if password.isdigit():
        return False
    return True
`

func ptr(s string) *string {
	return &s
}

func newTestRunner(t *testing.T) *pipeline.Runner {
	t.Helper()
	r, err := pipeline.NewRunner(policy.Default())
	require.NoError(t, err)
	return r
}

func TestRun_UnmodifiedUnitPasses(t *testing.T) {
	r := newTestRunner(t)

	report, err := r.Run(context.Background(), []pipeline.Unit{{ID: "greet.py", Original: greetSource}})
	require.NoError(t, err)
	require.Len(t, report.Units, 1)

	u := report.Units[0]
	assert.False(t, u.Modified)
	assert.Nil(t, u.Candidate)
	assert.InDelta(t, 0.0, u.Score.WeightedTotal, 1e-9)
	assert.Equal(t, risk.GatePass, u.Score.Gate)
	assert.InDelta(t, 1.0, u.Changes.SimilarityRatio, 1e-9)
	assert.Equal(t, risk.GatePass, report.Gate())
	assert.False(t, report.RunID.IsZero())
}

func TestRun_CriticalComplexityIncreaseBlocks(t *testing.T) {
	r := newTestRunner(t)

	report, err := r.Run(context.Background(), []pipeline.Unit{
		{ID: "auth.py", Original: authOriginal, Candidate: ptr(authCandidate)},
	})
	require.NoError(t, err)

	u := report.Units[0]
	assert.True(t, u.Modified)
	require.NotNil(t, u.Candidate)
	assert.Equal(t, 3, u.Original.CyclomaticComplexity)
	assert.Equal(t, 9, u.Candidate.CyclomaticComplexity)
	assert.Equal(t, risk.GateBlock, u.Score.Gate)
	assert.GreaterOrEqual(t, u.Score.WeightedTotal, 70.0)
	assert.Equal(t, []string{"authenticate_user"}, u.Score.CriticalTouched)
	assert.Equal(t, risk.GateBlock, report.Gate())
}

func TestRun_IdenticalCandidateIsModifiedButScoresZero(t *testing.T) {
	r := newTestRunner(t)

	report, err := r.Run(context.Background(), []pipeline.Unit{
		{ID: "greet.py", Original: greetSource, Candidate: ptr(greetSource)},
	})
	require.NoError(t, err)

	u := report.Units[0]
	assert.True(t, u.Modified)
	assert.False(t, u.Changes.HasChanges())
	assert.Equal(t, risk.GatePass, u.Score.Gate)
	assert.InDelta(t, 0.0, u.Score.WeightedTotal, 1e-9)
}

func TestRun_EmptyUnit(t *testing.T) {
	r := newTestRunner(t)

	report, err := r.Run(context.Background(), []pipeline.Unit{{ID: "empty.py", Candidate: ptr("")}})
	require.NoError(t, err)

	u := report.Units[0]
	assert.True(t, u.Empty)
	assert.True(t, u.Score.Empty)
	assert.Equal(t, risk.GatePass, u.Score.Gate)
	assert.InDelta(t, 0.0, u.Score.WeightedTotal, 1e-9)
}

func TestRun_KeepsInputOrderUnderConcurrency(t *testing.T) {
	pol := policy.Default()
	pol.BatchSize = 3
	r, err := pipeline.NewRunner(pol)
	require.NoError(t, err)

	units := make([]pipeline.Unit, 0, 20)
	for i := range 20 {
		u := pipeline.Unit{ID: fmt.Sprintf("unit_%02d.py", i), Original: greetSource}
		if i == 7 {
			u.Original = authOriginal
			u.Candidate = ptr(authCandidate)
		}
		units = append(units, u)
	}

	report, err := r.Run(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, report.Units, len(units))

	for i, u := range report.Units {
		assert.Equal(t, units[i].ID, u.UnitID)
		assert.Equal(t, units[i].ID, report.Aggregate.Units[i].UnitID)
	}
	assert.Equal(t, risk.GateBlock, report.Gate(), "one blocked unit blocks the run")
	assert.Less(t, report.Aggregate.WeightedTotal, 30.0, "the mean does not drive the gate")
	assert.Equal(t, 1, report.Aggregate.GateCounts[risk.GateBlock])
	assert.Equal(t, 19, report.Aggregate.GateCounts[risk.GatePass])
}

func TestRun_Deterministic(t *testing.T) {
	r := newTestRunner(t)
	units := []pipeline.Unit{
		{ID: "auth.py", Original: authOriginal, Candidate: ptr(authCandidate)},
		{ID: "greet.py", Original: greetSource},
	}

	first, err := r.Run(context.Background(), units)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), units)
	require.NoError(t, err)

	a, err := json.Marshal(first.Units)
	require.NoError(t, err)
	b, err := json.Marshal(second.Units)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Aggregate, second.Aggregate)
}

func TestRun_CancelledContextDiscardsResults(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, []pipeline.Unit{
		{ID: "a.py", Original: greetSource},
		{ID: "b.py", Original: greetSource},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestRun_DuplicateUnitIDs(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.Run(context.Background(), []pipeline.Unit{
		{ID: "a.py", Original: greetSource},
		{ID: "a.py", Original: greetSource},
	})
	require.ErrorIs(t, err, pipeline.ErrDuplicateUnit)
}

func TestRun_NoUnits(t *testing.T) {
	r := newTestRunner(t)

	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Units)
	assert.Equal(t, risk.GatePass, report.Gate())
	assert.Equal(t, []string{"No units assessed"}, report.Aggregate.Recommendations)
}

func TestRunWithID_UsesGivenID(t *testing.T) {
	r := newTestRunner(t)
	id := events.NewRunID()

	report, err := r.RunWithID(context.Background(), id, []pipeline.Unit{{ID: "a.py", Original: greetSource}})
	require.NoError(t, err)
	assert.Equal(t, id, report.RunID)
}

func TestAssessUnit_LanguageFromExtension(t *testing.T) {
	r := newTestRunner(t)

	res := r.AssessUnit(context.Background(), pipeline.Unit{
		ID:       "web/app.js",
		Original: "function f() { return 1; }\n",
	})
	assert.Equal(t, metrics.LanguageJavaScript, res.Original.Language)

	res = r.AssessUnit(context.Background(), pipeline.Unit{ID: "greet", Original: greetSource})
	assert.Equal(t, metrics.LanguagePython, res.Original.Language)
	assert.Equal(t, 1, res.Original.FunctionCount)
}

func TestNewRunner_RejectsInvalidPolicy(t *testing.T) {
	pol := policy.Default()
	pol.Risk.Weights.Complexity = 0.9

	_, err := pipeline.NewRunner(pol)
	require.ErrorIs(t, err, risk.ErrConfiguration)
}
