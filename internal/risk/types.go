package risk

// Gate is the release-readiness verdict.
type Gate string

// Gate values, least severe first.
const (
	GatePass  Gate = "PASS"
	GateWarn  Gate = "WARN"
	GateBlock Gate = "BLOCK"
)

// Severity orders gates; higher is worse.
func (g Gate) Severity() int {
	switch g {
	case GatePass:
		return 0
	case GateWarn:
		return 1
	case GateBlock:
		return 2
	default:
		return -1
	}
}

// Worse returns the more severe of two gates.
func Worse(a, b Gate) Gate {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// ParseGate converts a gate name into a Gate.
func ParseGate(s string) (Gate, bool) {
	switch g := Gate(s); g {
	case GatePass, GateWarn, GateBlock:
		return g, true
	default:
		return "", false
	}
}

// Factor names one risk component.
type Factor string

// Factors in their tie-breaking order.
const (
	FactorCriticalFunction Factor = "critical_function"
	FactorComplexity       Factor = "complexity"
	FactorIssueSeverity    Factor = "issue_severity"
	FactorVolume           Factor = "volume"
)

// Components are the normalized risk inputs, each within [0,1].
type Components struct {
	Complexity       float64 `json:"complexity"`
	Volume           float64 `json:"volume"`
	CriticalFunction float64 `json:"critical_function"`
	IssueSeverity    float64 `json:"issue_severity"`
}

// Get returns the value of one factor.
func (c Components) Get(f Factor) float64 {
	switch f {
	case FactorComplexity:
		return c.Complexity
	case FactorVolume:
		return c.Volume
	case FactorCriticalFunction:
		return c.CriticalFunction
	case FactorIssueSeverity:
		return c.IssueSeverity
	default:
		return 0
	}
}

// Score is the final assessment of one unit.
type Score struct {
	Components      Components `json:"components"`
	WeightedTotal   float64    `json:"weighted_total"`
	Gate            Gate       `json:"gate"`
	Recommendations []string   `json:"recommendations"`

	// Dominant is the factor contributing most to the total, empty when nothing contributes.
	Dominant Factor `json:"dominant,omitempty"`

	// CriticalTouched lists the critical symbols whose lines changed.
	CriticalTouched []string `json:"critical_touched,omitempty"`

	// Empty marks a unit whose original and candidate were both empty.
	Empty bool `json:"empty,omitempty"`
}
