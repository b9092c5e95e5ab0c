package assessment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/releasegate/apps/gatekeeper/service/assessment"
	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/llm"
	"github.com/antinvestor/releasegate/internal/pipeline"
	"github.com/antinvestor/releasegate/internal/policy"
	"github.com/antinvestor/releasegate/internal/risk"
)

const greet = "def greet(name):\n    \"\"\"Say hello.\"\"\"\n    return name\n"

func ptr(s string) *string {
	return &s
}

func newTestRunner(t *testing.T) *pipeline.Runner {
	t.Helper()
	r, err := pipeline.NewRunner(policy.Default())
	require.NoError(t, err)
	return r
}

type stubEngine struct {
	err error
}

func (s *stubEngine) Modify(_ context.Context, req llm.ModifyRequest) (*llm.ModifyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ModifyResult{Candidate: req.Source + "print(name)\n", Provider: llm.ProviderAnthropic}, nil
}

func TestEvaluate_Outcomes(t *testing.T) {
	ev := assessment.NewEvaluator(newTestRunner(t), nil, time.Minute)
	reqID := events.NewEventID()
	runID := events.NewRunID()

	result, err := ev.Evaluate(context.Background(), reqID, runID, &events.AssessmentRequestedPayload{
		Units: []events.UnitPayload{
			{ID: "a.py", Original: greet},
			{ID: "b.py", Original: greet, Candidate: ptr(greet + "\ndef extra():\n    \"\"\"Doc.\"\"\"\n    return 1\n")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, reqID, result.RequestID)
	assert.Equal(t, runID, result.RunID)
	assert.Equal(t, result.Aggregate.Gate, result.Gate)
	require.Len(t, result.Units, 2)

	a, b := result.Units[0], result.Units[1]
	assert.Equal(t, "a.py", a.UnitID)
	assert.False(t, a.Modified)
	assert.Nil(t, a.CandidateComplexity)
	assert.Equal(t, "No changes detected", a.ChangeSummary)

	assert.True(t, b.Modified)
	require.NotNil(t, b.CandidateComplexity)
	assert.Equal(t, 2, *b.CandidateComplexity)
	require.NotNil(t, b.CandidateMaintainability)
}

func TestEvaluate_IntentWithoutEngine(t *testing.T) {
	ev := assessment.NewEvaluator(newTestRunner(t), nil, 0)
	assert.False(t, ev.CanModify())

	_, err := ev.Evaluate(context.Background(), events.NewEventID(), events.NewRunID(), &events.AssessmentRequestedPayload{
		Units:  []events.UnitPayload{{ID: "a.py", Original: greet}},
		Intent: "log the name",
	})
	require.ErrorIs(t, err, assessment.ErrModificationUnavailable)
}

func TestEvaluate_IntentGeneratesCandidates(t *testing.T) {
	ev := assessment.NewEvaluator(newTestRunner(t), &stubEngine{}, 0)
	assert.True(t, ev.CanModify())

	result, err := ev.Evaluate(context.Background(), events.NewEventID(), events.NewRunID(), &events.AssessmentRequestedPayload{
		Units:  []events.UnitPayload{{ID: "a.py", Original: greet}},
		Intent: "log the name",
	})
	require.NoError(t, err)
	require.Len(t, result.Units, 1)
	assert.True(t, result.Units[0].Modified)
	assert.Contains(t, result.Units[0].ChangeSummary, "+1 additions")
}

func TestEvaluate_EngineFailureLeavesUnitUnmodified(t *testing.T) {
	ev := assessment.NewEvaluator(newTestRunner(t), &stubEngine{err: llm.ErrAllProvidersFailed}, 0)

	result, err := ev.Evaluate(context.Background(), events.NewEventID(), events.NewRunID(), &events.AssessmentRequestedPayload{
		Units:  []events.UnitPayload{{ID: "a.py", Original: greet}},
		Intent: "log the name",
	})
	require.NoError(t, err)
	assert.False(t, result.Units[0].Modified)
	assert.Equal(t, risk.GatePass, result.Gate)
}

type failingRunner struct{}

func (failingRunner) RunWithID(context.Context, events.RunID, []pipeline.Unit) (*pipeline.Report, error) {
	return nil, errors.New("runner down")
}

func TestEvaluate_RunnerError(t *testing.T) {
	ev := assessment.NewEvaluator(failingRunner{}, nil, 0)

	_, err := ev.Evaluate(context.Background(), events.NewEventID(), events.NewRunID(), &events.AssessmentRequestedPayload{
		Units: []events.UnitPayload{{ID: "a.py", Original: greet}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner down")
}
