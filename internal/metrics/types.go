// Package metrics computes static metrics and issue findings for a single source unit.
package metrics

// Severity classifies how serious an issue is.
type Severity string

// Severity constants, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so that callers can compare them.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// IssueKind identifies the rule that produced an issue.
type IssueKind string

// Issue kinds.
const (
	KindParseError            IssueKind = "PARSE_ERROR"
	KindMissingDocstring      IssueKind = "MISSING_DOCSTRING"
	KindBareExcept            IssueKind = "BARE_EXCEPT"
	KindDebugPrint            IssueKind = "DEBUG_PRINT"
	KindHighComplexity        IssueKind = "HIGH_COMPLEXITY"
	KindTodoComment           IssueKind = "TODO_COMMENT"
	KindHardcodedSecret       IssueKind = "HARDCODED_SECRET"
	KindDynamicExecution      IssueKind = "DYNAMIC_EXECUTION"
	KindUnsafeDeserialization IssueKind = "UNSAFE_DESERIALIZATION"
	KindShellInjection        IssueKind = "SHELL_INJECTION"
	KindSQLInjection          IssueKind = "SQL_INJECTION"
)

// Location points at the site of an issue.
type Location struct {
	// Line is 1-based; zero when the issue concerns the whole unit.
	Line int `json:"line"`

	// Symbol is the qualified name of the enclosing function or class, if any.
	Symbol string `json:"symbol,omitempty"`
}

// Issue is a discrete finding produced by one rule at one site.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Location Location  `json:"location"`
	Message  string    `json:"message"`
}

// SymbolKind distinguishes functions from classes.
type SymbolKind string

// Symbol kinds.
const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
)

// SymbolMetrics describes one function or class of the unit.
type SymbolMetrics struct {
	Name      string     `json:"name"`
	Qualified string     `json:"qualified"`
	Kind      SymbolKind `json:"kind"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`

	// Complexity is zero for classes.
	Complexity int    `json:"complexity,omitempty"`
	Rank       string `json:"rank,omitempty"`
}

// LineCounts breaks down the physical lines of a unit.
type LineCounts struct {
	Total   int `json:"total"`
	Code    int `json:"code"`
	Comment int `json:"comment"`
	Blank   int `json:"blank"`
}

// Result is the metrics outcome for one version of one unit.
type Result struct {
	Language             Language        `json:"language"`
	CyclomaticComplexity int             `json:"cyclomatic_complexity"`
	MaintainabilityIndex float64         `json:"maintainability_index"`
	FunctionCount        int             `json:"function_count"`
	ClassCount           int             `json:"class_count"`
	Symbols              []SymbolMetrics `json:"symbols,omitempty"`
	Lines                LineCounts      `json:"lines"`
	Issues               []Issue         `json:"issues"`
}

// Parsed reports whether the unit was structurally analyzed.
func (r *Result) Parsed() bool {
	for _, issue := range r.Issues {
		if issue.Kind == KindParseError {
			return false
		}
	}
	return true
}

// CountBySeverity tallies issues per severity.
func (r *Result) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}
