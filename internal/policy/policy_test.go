package policy_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/releasegate/internal/metrics"
	"github.com/antinvestor/releasegate/internal/policy"
	"github.com/antinvestor/releasegate/internal/risk"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	p := policy.Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, policy.DefaultBatchSize, p.BatchSize)
	assert.InDelta(t, 30.0, p.Risk.Gates.Pass, 1e-9)
	assert.InDelta(t, 70.0, p.Risk.Gates.Warn, 1e-9)
	assert.Equal(t, 10, p.Thresholds.Medium)
	assert.Equal(t, 20, p.Thresholds.High)
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	p, err := policy.Load("")
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), p)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writePolicy(t, `
risk:
  gates:
    pass: 20
    warn: 60
  critical_patterns: [admin, login]
  severity_weights:
    low: 0.1
thresholds:
  medium: 8
batch_size: 2
`)

	p, err := policy.Load(path)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.InDelta(t, 20.0, p.Risk.Gates.Pass, 1e-9)
	assert.InDelta(t, 60.0, p.Risk.Gates.Warn, 1e-9)
	assert.Equal(t, []string{"admin", "login"}, p.Risk.CriticalPatterns)
	assert.InDelta(t, 0.1, p.Risk.SeverityWeights[metrics.SeverityLow], 1e-9)
	assert.InDelta(t, 0.8, p.Risk.SeverityWeights[metrics.SeverityHigh], 1e-9, "unlisted severities keep defaults")
	assert.InDelta(t, 0.3, p.Risk.Weights.Complexity, 1e-9, "unlisted weights keep defaults")
	assert.Equal(t, 8, p.Thresholds.Medium)
	assert.Equal(t, 20, p.Thresholds.High)
	assert.Equal(t, 2, p.BatchSize)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writePolicy(t, "risk:\n  weigths:\n    complexity: 0.5\n")

	_, err := policy.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weigths")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := policy.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDecode_EmptyDocument(t *testing.T) {
	p, err := policy.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), p)
}

func TestWithEnv_Overrides(t *testing.T) {
	p, err := policy.Default().WithEnv(map[string]string{
		"RISK_PASS_CEILING":             "25",
		"RISK_WARN_CEILING":             "65.5",
		"RISK_WEIGHT_COMPLEXITY":        "0.4",
		"RISK_WEIGHT_VOLUME":            "0.1",
		"RISK_WEIGHT_CRITICAL_FUNCTION": "0.3",
		"RISK_WEIGHT_ISSUE_SEVERITY":    "0.2",
		"RISK_COMPLEXITY_CEILING":       "10",
		"RISK_VOLUME_CEILING":           "0.25",
		"RISK_ISSUE_CEILING":            "3",
		"RISK_CRITICAL_PATTERNS":        "auth,billing",
		"RISK_CRITICAL_MODE":            "binary",
		"RISK_COMPLEXITY_MEDIUM":        "6",
		"RISK_COMPLEXITY_HIGH":          "12",
		"RELEASEGATE_BATCH_SIZE":        "16",
	})
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.InDelta(t, 25.0, p.Risk.Gates.Pass, 1e-9)
	assert.InDelta(t, 65.5, p.Risk.Gates.Warn, 1e-9)
	assert.InDelta(t, 0.4, p.Risk.Weights.Complexity, 1e-9)
	assert.InDelta(t, 0.1, p.Risk.Weights.Volume, 1e-9)
	assert.InDelta(t, 10.0, p.Risk.Ceilings.ComplexityIncrease, 1e-9)
	assert.InDelta(t, 0.25, p.Risk.Ceilings.Volume, 1e-9)
	assert.InDelta(t, 3.0, p.Risk.Ceilings.IssueSeverity, 1e-9)
	assert.Equal(t, []string{"auth", "billing"}, p.Risk.CriticalPatterns)
	assert.Equal(t, risk.CriticalBinary, p.Risk.CriticalMode)
	assert.Equal(t, 6, p.Thresholds.Medium)
	assert.Equal(t, 12, p.Thresholds.High)
	assert.Equal(t, 16, p.BatchSize)
}

func TestWithEnv_UnsetLeavesPolicyAlone(t *testing.T) {
	base := policy.Default()
	p, err := base.WithEnv(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, base, p)
}

func TestWithEnv_DoesNotMutateReceiver(t *testing.T) {
	base := policy.Default()
	_, err := base.WithEnv(map[string]string{"RISK_CRITICAL_PATTERNS": "x"})
	require.NoError(t, err)
	assert.Equal(t, risk.DefaultConfig().CriticalPatterns, base.Risk.CriticalPatterns)
}

func TestWithEnv_MalformedNumber(t *testing.T) {
	_, err := policy.Default().WithEnv(map[string]string{"RISK_PASS_CEILING": "thirty"})
	require.Error(t, err)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *policy.Policy)
		invariant string
	}{
		{
			name:      "weights do not sum to one",
			mutate:    func(p *policy.Policy) { p.Risk.Weights.Volume = 0.5 },
			invariant: "weights_sum",
		},
		{
			name:      "pass above warn",
			mutate:    func(p *policy.Policy) { p.Risk.Gates.Pass = 80 },
			invariant: "gate_ceilings",
		},
		{
			name:      "medium threshold above high",
			mutate:    func(p *policy.Policy) { p.Thresholds.Medium = 25 },
			invariant: "complexity_thresholds",
		},
		{
			name:      "zero batch size",
			mutate:    func(p *policy.Policy) { p.BatchSize = 0 },
			invariant: "batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := policy.Default()
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, risk.ErrConfiguration)

			var cfgErr *risk.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.invariant, cfgErr.Invariant)
		})
	}
}

func TestResolve_InvalidFileFails(t *testing.T) {
	path := writePolicy(t, "risk:\n  weights:\n    complexity: 0.9\n")

	_, err := policy.Resolve(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, risk.ErrConfiguration)
}

func TestYAML_RoundTrips(t *testing.T) {
	p := policy.Default()
	p.BatchSize = 3

	data, err := p.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "batch_size: 3")

	back, err := policy.Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, p, back)
}
