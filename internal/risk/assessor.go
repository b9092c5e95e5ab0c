package risk

import (
	"maps"
	"math"
	"regexp"
	"slices"

	"github.com/antinvestor/releasegate/internal/changes"
	"github.com/antinvestor/releasegate/internal/metrics"
)

// dominanceOrder breaks ties between equally contributing factors.
var dominanceOrder = []Factor{
	FactorCriticalFunction,
	FactorComplexity,
	FactorIssueSeverity,
	FactorVolume,
}

// Assessor scores units against a validated policy. It is safe for concurrent use.
type Assessor struct {
	cfg      Config
	patterns []*regexp.Regexp
	rules    []recommendationRule
}

// NewAssessor validates cfg and binds it to a new assessor.
func NewAssessor(cfg Config) (*Assessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()
	return &Assessor{
		cfg:      cfg,
		patterns: cfg.compilePatterns(),
		rules:    initRecommendationRules(),
	}, nil
}

// Config returns a copy of the bound policy.
func (a *Assessor) Config() Config {
	return a.cfg.clone()
}

// Assess scores one unit from the metrics of both versions and their change set.
// A nil candidate means the unit was not modified.
func (a *Assessor) Assess(original metrics.Result, candidate *metrics.Result, cs changes.ChangeSet) Score {
	touched, total := a.criticalTouched(original, candidate, cs)

	components := Components{
		Complexity:       a.complexityRisk(original, candidate),
		Volume:           a.volumeRisk(cs),
		CriticalFunction: a.criticalRisk(len(touched), total),
		IssueSeverity:    a.issueRisk(issuesOf(original, candidate)),
	}

	score := a.ScoreComponents(components)
	score.CriticalTouched = touched
	score.Recommendations = a.recommend(recommendationInput{
		Score:        score.WeightedTotal,
		Gate:         score.Gate,
		Components:   components,
		Dominant:     score.Dominant,
		SevereIssues: countAtLeast(issuesOf(original, candidate), metrics.SeverityMedium),
		Touched:      touched,
	})
	return score
}

// EmptyScore is the zero-risk result for a unit whose versions are both empty.
func (a *Assessor) EmptyScore() Score {
	score := a.ScoreComponents(Components{})
	score.Empty = true
	score.Recommendations = a.recommend(recommendationInput{Gate: score.Gate})
	return score
}

// ScoreComponents weights components into a total and selects the gate.
// Recommendations are left empty.
func (a *Assessor) ScoreComponents(c Components) Score {
	w := a.cfg.Weights
	raw := 100 * (w.Complexity*c.Complexity +
		w.Volume*c.Volume +
		w.CriticalFunction*c.CriticalFunction +
		w.IssueSeverity*c.IssueSeverity)

	// The gate sees the unrounded total; only float noise is removed.
	return Score{
		Components:      c,
		WeightedTotal:   round2(raw),
		Gate:            a.GateFor(math.Round(raw*gateEpsilonScale) / gateEpsilonScale),
		Recommendations: []string{},
		Dominant:        a.dominant(c),
	}
}

// GateFor maps a weighted total onto the gate bands. Each band includes its
// lower bound.
func (a *Assessor) GateFor(total float64) Gate {
	switch {
	case total < a.cfg.Gates.Pass:
		return GatePass
	case total < a.cfg.Gates.Warn:
		return GateWarn
	default:
		return GateBlock
	}
}

func (a *Assessor) complexityRisk(original metrics.Result, candidate *metrics.Result) float64 {
	if candidate == nil {
		return 0
	}
	increase := candidate.CyclomaticComplexity - original.CyclomaticComplexity
	if increase <= 0 {
		return 0
	}
	return clamp01(float64(increase) / a.cfg.Ceilings.ComplexityIncrease)
}

// volumeRisk saturates toward 1.0 for wholesale rewrites.
func (a *Assessor) volumeRisk(cs changes.ChangeSet) float64 {
	changed := cs.TotalChanges()
	if changed == 0 {
		return 0
	}
	ratio := float64(changed) / float64(max(cs.OriginalLines, 1))
	return clamp01(1 - math.Exp(-ratio/a.cfg.Ceilings.Volume))
}

func (a *Assessor) criticalRisk(touched, total int) float64 {
	if touched == 0 || total == 0 {
		return 0
	}
	if a.cfg.CriticalMode == CriticalBinary {
		return 1
	}
	return clamp01(float64(touched) / float64(total))
}

func (a *Assessor) issueRisk(issues []metrics.Issue) float64 {
	weighted := 0.0
	for _, issue := range issues {
		weighted += a.cfg.SeverityWeights[issue.Severity]
	}
	return clamp01(weighted / a.cfg.Ceilings.IssueSeverity)
}

// criticalTouched returns the critical symbols whose line ranges intersect the
// changed lines, and the number of distinct critical symbols across both versions.
func (a *Assessor) criticalTouched(original metrics.Result, candidate *metrics.Result, cs changes.ChangeSet) ([]string, int) {
	status := make(map[string]bool)
	var order []string

	visit := func(symbols []metrics.SymbolMetrics, changed []changes.LineRange) {
		for _, s := range symbols {
			if !a.isCritical(s.Qualified) {
				continue
			}
			if _, seen := status[s.Qualified]; !seen {
				status[s.Qualified] = false
				order = append(order, s.Qualified)
			}
			if changes.Touches(changed, s.StartLine, s.EndLine) {
				status[s.Qualified] = true
			}
		}
	}
	visit(original.Symbols, cs.OriginalChanged)
	if candidate != nil {
		visit(candidate.Symbols, cs.CandidateChanged)
	}

	var touched []string
	for _, name := range order {
		if status[name] {
			touched = append(touched, name)
		}
	}
	return touched, len(order)
}

func (a *Assessor) isCritical(name string) bool {
	for _, p := range a.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func (a *Assessor) dominant(c Components) Factor {
	w := a.cfg.Weights
	weights := map[Factor]float64{
		FactorComplexity:       w.Complexity,
		FactorVolume:           w.Volume,
		FactorCriticalFunction: w.CriticalFunction,
		FactorIssueSeverity:    w.IssueSeverity,
	}

	var best Factor
	bestValue := 0.0
	for _, f := range dominanceOrder {
		if contribution := weights[f] * c.Get(f); contribution > bestValue {
			best, bestValue = f, contribution
		}
	}
	return best
}

func (c Config) clone() Config {
	out := c
	out.CriticalPatterns = slices.Clone(c.CriticalPatterns)
	out.SeverityWeights = maps.Clone(c.SeverityWeights)
	return out
}

func issuesOf(original metrics.Result, candidate *metrics.Result) []metrics.Issue {
	if candidate != nil {
		return candidate.Issues
	}
	return original.Issues
}

func countAtLeast(issues []metrics.Issue, floor metrics.Severity) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity.AtLeast(floor) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// gateEpsilonScale trims float noise such as 0.3*100 = 30.000000000000004.
const gateEpsilonScale = 1e9

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
