package metrics

import (
	"context"
	"sort"
)

// Thresholds are the per-function complexity limits used by the issue rules.
type Thresholds struct {
	Medium int `json:"medium" yaml:"medium"`
	High   int `json:"high" yaml:"high"`
}

// DefaultThresholds returns the standard complexity limits.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 10, High: 20}
}

// Analyzer computes a Result from source text. It holds no mutable state
// and is safe for concurrent use.
type Analyzer struct {
	language   Language
	extractor  FactsExtractor
	thresholds Thresholds
	rules      []issueRule
	patterns   []sourcePattern
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExtractor replaces the structural facts extractor.
func WithExtractor(language Language, extractor FactsExtractor) Option {
	return func(a *Analyzer) {
		a.language = language
		a.extractor = extractor
	}
}

// WithThresholds sets the complexity thresholds.
func WithThresholds(t Thresholds) Option {
	return func(a *Analyzer) {
		a.thresholds = t
	}
}

// NewAnalyzer creates a Python analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		language:   LanguagePython,
		extractor:  NewPythonExtractor(),
		thresholds: DefaultThresholds(),
		rules:      initIssueRules(),
		patterns:   initSourcePatterns(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes metrics for one unit. Unparseable text degrades to a
// result carrying a single critical PARSE_ERROR issue.
func (a *Analyzer) Analyze(ctx context.Context, src string) Result {
	result := Result{
		Language: a.language,
		Lines:    CountLines(src),
	}

	facts, err := a.extractor.Extract(ctx, []byte(src))
	if err != nil {
		result.Issues = []Issue{{
			Kind:     KindParseError,
			Severity: SeverityCritical,
			Message:  "unable to analyze source: " + err.Error(),
		}}
		return result
	}

	result.Symbols = make([]SymbolMetrics, 0, len(facts.Symbols))
	for _, s := range facts.Symbols {
		sm := SymbolMetrics{
			Name:      s.Name,
			Qualified: s.Qualified,
			Kind:      s.Kind,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		}
		switch s.Kind {
		case SymbolFunction:
			sm.Complexity = s.Decisions + 1
			sm.Rank = ComplexityRank(sm.Complexity)
			result.FunctionCount++
			result.CyclomaticComplexity += sm.Complexity
		case SymbolClass:
			result.ClassCount++
		}
		result.Symbols = append(result.Symbols, sm)
	}
	if result.FunctionCount == 0 {
		result.CyclomaticComplexity = facts.TopLevelDecisions + 1
	}

	result.MaintainabilityIndex = MaintainabilityIndex(
		HalsteadVolume(facts.Halstead),
		result.CyclomaticComplexity,
		result.Lines.Code,
	)
	result.Issues = a.detectIssues(facts, src)
	return result
}

func (a *Analyzer) detectIssues(facts *Facts, src string) []Issue {
	issues := make([]Issue, 0)
	for i := range a.rules {
		issues = append(issues, a.rules[i].evaluate(facts, a.thresholds)...)
	}

	lines := SplitLines(src)
	for i := range a.patterns {
		if a.patterns[i].appliesTo(a.language) {
			issues = append(issues, a.patterns[i].evaluate(lines)...)
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Location.Line < issues[j].Location.Line
	})
	return issues
}
