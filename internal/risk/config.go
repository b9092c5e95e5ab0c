// Package risk combines metrics and change statistics into a weighted risk score and gate.
package risk

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/antinvestor/releasegate/internal/metrics"
)

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 1e-6

// Errors reported by the risk package.
var (
	ErrConfiguration = errors.New("invalid risk configuration")
	ErrEmptyInput    = errors.New("original and candidate are both empty")
)

// ConfigurationError names the configuration invariant that was violated.
type ConfigurationError struct {
	Invariant string
	Detail    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Invariant, e.Detail)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// CriticalMode selects how touched critical symbols map to a component value.
type CriticalMode string

// Critical modes.
const (
	// CriticalFraction scores the share of critical symbols touched.
	CriticalFraction CriticalMode = "fraction"
	// CriticalBinary scores 1.0 as soon as one critical symbol is touched.
	CriticalBinary CriticalMode = "binary"
)

// Weights combine the components into the weighted total. They must sum to 1.0.
type Weights struct {
	Complexity       float64 `json:"complexity" yaml:"complexity"`
	Volume           float64 `json:"volume" yaml:"volume"`
	CriticalFunction float64 `json:"critical_function" yaml:"critical_function"`
	IssueSeverity    float64 `json:"issue_severity" yaml:"issue_severity"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Complexity + w.Volume + w.CriticalFunction + w.IssueSeverity
}

// GateCeilings are the exclusive upper bounds of the PASS and WARN bands.
type GateCeilings struct {
	Pass float64 `json:"pass" yaml:"pass"`
	Warn float64 `json:"warn" yaml:"warn"`
}

// Ceilings normalize raw component inputs into [0,1].
type Ceilings struct {
	// ComplexityIncrease is the complexity growth that counts as maximal risk.
	ComplexityIncrease float64 `json:"complexity_increase" yaml:"complexity_increase"`
	// Volume is the changed-lines ratio at which volume risk reaches 1-1/e.
	Volume float64 `json:"volume" yaml:"volume"`
	// IssueSeverity is the weighted issue count that counts as maximal risk.
	IssueSeverity float64 `json:"issue_severity" yaml:"issue_severity"`
}

// Config is the immutable risk policy. Build it once, validate it, and pass it
// to NewAssessor.
type Config struct {
	Weights          Weights                      `json:"weights" yaml:"weights"`
	Gates            GateCeilings                 `json:"gates" yaml:"gates"`
	Ceilings         Ceilings                     `json:"ceilings" yaml:"ceilings"`
	CriticalPatterns []string                     `json:"critical_patterns" yaml:"critical_patterns"`
	CriticalMode     CriticalMode                 `json:"critical_mode" yaml:"critical_mode"`
	SeverityWeights  map[metrics.Severity]float64 `json:"severity_weights" yaml:"severity_weights"`
}

// DefaultConfig returns the standard release policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Complexity:       0.3,
			Volume:           0.2,
			CriticalFunction: 0.3,
			IssueSeverity:    0.2,
		},
		Gates: GateCeilings{Pass: 30, Warn: 70},
		Ceilings: Ceilings{
			ComplexityIncrease: 5,
			Volume:             0.5,
			IssueSeverity:      5,
		},
		CriticalPatterns: []string{
			"auth", "password", "token", "secret", "security", "permission",
			"payment", "billing", "encrypt", "decrypt", "crypto",
			"sql", "query", "database", "validate",
		},
		CriticalMode: CriticalFraction,
		SeverityWeights: map[metrics.Severity]float64{
			metrics.SeverityCritical: 1.0,
			metrics.SeverityHigh:     0.8,
			metrics.SeverityMedium:   0.5,
			metrics.SeverityLow:      0.2,
		},
	}
}

// Validate checks every invariant and reports all violations at once.
func (c Config) Validate() error {
	var errs []error
	violate := func(invariant, format string, args ...any) {
		errs = append(errs, &ConfigurationError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
	}

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"complexity", c.Weights.Complexity},
		{"volume", c.Weights.Volume},
		{"critical_function", c.Weights.CriticalFunction},
		{"issue_severity", c.Weights.IssueSeverity},
	} {
		if w.value < 0 || w.value > 1 || math.IsNaN(w.value) {
			violate("weight_range", "weight %s=%v must be within [0,1]", w.name, w.value)
		}
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > weightTolerance {
		violate("weights_sum", "weights sum to %v, want 1.0", sum)
	}

	if c.Gates.Pass < 0 {
		violate("gate_ceilings", "pass ceiling %v must not be negative", c.Gates.Pass)
	}
	if c.Gates.Pass >= c.Gates.Warn {
		violate("gate_ceilings", "pass ceiling %v must be below warn ceiling %v", c.Gates.Pass, c.Gates.Warn)
	}

	if c.Ceilings.ComplexityIncrease <= 0 {
		violate("normalization_ceiling", "complexity increase ceiling must be positive, got %v", c.Ceilings.ComplexityIncrease)
	}
	if c.Ceilings.Volume <= 0 {
		violate("normalization_ceiling", "volume ceiling must be positive, got %v", c.Ceilings.Volume)
	}
	if c.Ceilings.IssueSeverity <= 0 {
		violate("normalization_ceiling", "issue severity ceiling must be positive, got %v", c.Ceilings.IssueSeverity)
	}

	for _, p := range c.CriticalPatterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			violate("critical_patterns", "pattern %q does not compile: %v", p, err)
		}
	}

	switch c.CriticalMode {
	case CriticalFraction, CriticalBinary:
	default:
		violate("critical_mode", "unknown mode %q", c.CriticalMode)
	}

	order := []metrics.Severity{metrics.SeverityLow, metrics.SeverityMedium, metrics.SeverityHigh, metrics.SeverityCritical}
	prev := 0.0
	for _, sev := range order {
		w, ok := c.SeverityWeights[sev]
		if !ok {
			violate("severity_weights", "missing weight for %s", sev)
			continue
		}
		if w < 0 {
			violate("severity_weights", "weight for %s must not be negative, got %v", sev, w)
		}
		if w < prev {
			violate("severity_weights", "weight for %s (%v) is below a lower severity (%v)", sev, w, prev)
		}
		prev = w
	}

	return errors.Join(errs...)
}

func (c Config) compilePatterns() []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(c.CriticalPatterns))
	for _, p := range c.CriticalPatterns {
		compiled = append(compiled, regexp.MustCompile("(?i)"+p))
	}
	return compiled
}
