// Package policy loads the release policy: risk weights, gates, normalization
// ceilings, critical patterns and complexity thresholds. Values start from the
// built-in defaults, are overlaid by an optional YAML file and finally by
// environment variables.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/antinvestor/releasegate/internal/metrics"
	"github.com/antinvestor/releasegate/internal/risk"
)

// DefaultBatchSize is the number of units assessed concurrently.
const DefaultBatchSize = 4

// Policy is the complete, file-representable release policy.
type Policy struct {
	Risk       risk.Config        `json:"risk" yaml:"risk"`
	Thresholds metrics.Thresholds `json:"thresholds" yaml:"thresholds"`
	BatchSize  int                `json:"batch_size" yaml:"batch_size"`
}

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		Risk:       risk.DefaultConfig(),
		Thresholds: metrics.DefaultThresholds(),
		BatchSize:  DefaultBatchSize,
	}
}

// envOverrides are the environment variables that may override a policy.
// Unset variables leave the corresponding policy value untouched.
type envOverrides struct {
	PassCeiling *float64 `env:"RISK_PASS_CEILING"`
	WarnCeiling *float64 `env:"RISK_WARN_CEILING"`

	WeightComplexity       *float64 `env:"RISK_WEIGHT_COMPLEXITY"`
	WeightVolume           *float64 `env:"RISK_WEIGHT_VOLUME"`
	WeightCriticalFunction *float64 `env:"RISK_WEIGHT_CRITICAL_FUNCTION"`
	WeightIssueSeverity    *float64 `env:"RISK_WEIGHT_ISSUE_SEVERITY"`

	ComplexityCeiling *float64 `env:"RISK_COMPLEXITY_CEILING"`
	VolumeCeiling     *float64 `env:"RISK_VOLUME_CEILING"`
	IssueCeiling      *float64 `env:"RISK_ISSUE_CEILING"`

	CriticalPatterns []string `env:"RISK_CRITICAL_PATTERNS" envSeparator:","`
	CriticalMode     string   `env:"RISK_CRITICAL_MODE"`

	ComplexityMedium *int `env:"RISK_COMPLEXITY_MEDIUM"`
	ComplexityHigh   *int `env:"RISK_COMPLEXITY_HIGH"`

	BatchSize *int `env:"RELEASEGATE_BATCH_SIZE"`
}

// Load reads the YAML policy at path over the defaults. An empty path yields
// the defaults.
func Load(path string) (Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	p, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Decode parses a YAML policy over the defaults. Unknown keys are rejected so
// that a misspelt weight does not silently fall back to its default.
func Decode(r io.Reader) (Policy, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}

// WithEnv applies environment overrides. A nil environ reads the process
// environment.
func (p Policy) WithEnv(environ map[string]string) (Policy, error) {
	o, err := env.ParseAsWithOptions[envOverrides](env.Options{Environment: environ})
	if err != nil {
		return Policy{}, fmt.Errorf("parse policy environment: %w", err)
	}

	p.Risk = cloneConfig(p.Risk)
	setFloat(&p.Risk.Gates.Pass, o.PassCeiling)
	setFloat(&p.Risk.Gates.Warn, o.WarnCeiling)
	setFloat(&p.Risk.Weights.Complexity, o.WeightComplexity)
	setFloat(&p.Risk.Weights.Volume, o.WeightVolume)
	setFloat(&p.Risk.Weights.CriticalFunction, o.WeightCriticalFunction)
	setFloat(&p.Risk.Weights.IssueSeverity, o.WeightIssueSeverity)
	setFloat(&p.Risk.Ceilings.ComplexityIncrease, o.ComplexityCeiling)
	setFloat(&p.Risk.Ceilings.Volume, o.VolumeCeiling)
	setFloat(&p.Risk.Ceilings.IssueSeverity, o.IssueCeiling)

	if len(o.CriticalPatterns) > 0 {
		p.Risk.CriticalPatterns = o.CriticalPatterns
	}
	if o.CriticalMode != "" {
		p.Risk.CriticalMode = risk.CriticalMode(o.CriticalMode)
	}
	if o.ComplexityMedium != nil {
		p.Thresholds.Medium = *o.ComplexityMedium
	}
	if o.ComplexityHigh != nil {
		p.Thresholds.High = *o.ComplexityHigh
	}
	if o.BatchSize != nil {
		p.BatchSize = *o.BatchSize
	}
	return p, nil
}

// Validate checks the risk configuration, the complexity thresholds and the
// batch size, reporting every violation.
func (p Policy) Validate() error {
	var errs []error
	if err := p.Risk.Validate(); err != nil {
		errs = append(errs, err)
	}
	if p.Thresholds.Medium <= 0 || p.Thresholds.Medium >= p.Thresholds.High {
		errs = append(errs, &risk.ConfigurationError{
			Invariant: "complexity_thresholds",
			Detail:    fmt.Sprintf("want 0 < medium < high, got medium=%d high=%d", p.Thresholds.Medium, p.Thresholds.High),
		})
	}
	if p.BatchSize <= 0 {
		errs = append(errs, &risk.ConfigurationError{
			Invariant: "batch_size",
			Detail:    fmt.Sprintf("batch size must be positive, got %d", p.BatchSize),
		})
	}
	return errors.Join(errs...)
}

// Resolve loads the file at path, applies the process environment and
// validates the outcome.
func Resolve(path string) (Policy, error) {
	p, err := Load(path)
	if err != nil {
		return Policy{}, err
	}
	p, err = p.WithEnv(nil)
	if err != nil {
		return Policy{}, err
	}
	if err = p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// YAML renders the policy in the file format accepted by Load.
func (p Policy) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return buf.Bytes(), nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func cloneConfig(c risk.Config) risk.Config {
	c.CriticalPatterns = append([]string(nil), c.CriticalPatterns...)
	weights := make(map[metrics.Severity]float64, len(c.SeverityWeights))
	for k, v := range c.SeverityWeights {
		weights[k] = v
	}
	c.SeverityWeights = weights
	return c
}
