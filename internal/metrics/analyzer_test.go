package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/releasegate/internal/metrics"
)

func newTestAnalyzer() *metrics.Analyzer {
	return metrics.NewAnalyzer()
}

func kindsOf(issues []metrics.Issue) []metrics.IssueKind {
	kinds := make([]metrics.IssueKind, 0, len(issues))
	for _, issue := range issues {
		kinds = append(kinds, issue.Kind)
	}
	return kinds
}

func TestAnalyze_SimpleDocumentedFunction(t *testing.T) {
	src := `def add(a, b):
    """Add two numbers."""
    if a > b:
        return a + b
    return b + a
`
	result := newTestAnalyzer().Analyze(context.Background(), src)

	assert.Equal(t, metrics.LanguagePython, result.Language)
	assert.Equal(t, 2, result.CyclomaticComplexity)
	assert.Equal(t, 1, result.FunctionCount)
	assert.Equal(t, 0, result.ClassCount)
	assert.Empty(t, result.Issues)
	assert.True(t, result.Parsed())
	assert.Greater(t, result.MaintainabilityIndex, 0.0)
	assert.LessOrEqual(t, result.MaintainabilityIndex, 100.0)

	require.Len(t, result.Symbols, 1)
	assert.Equal(t, "add", result.Symbols[0].Name)
	assert.Equal(t, 1, result.Symbols[0].StartLine)
	assert.Equal(t, 5, result.Symbols[0].EndLine)
	assert.Equal(t, "A", result.Symbols[0].Rank)
}

func TestAnalyze_DecisionPoints(t *testing.T) {
	src := `def classify(n, items):
    """Classify n."""
    if n < 0 and n > -10:
        return "small negative"
    elif n == 0:
        return "zero"
    for i in items:
        while i > 0:
            i -= 1
    try:
        pass
    except ValueError:
        pass
    result = [x for x in items if x]
    return "pos" if n > 0 else "neg"
`
	result := newTestAnalyzer().Analyze(context.Background(), src)

	// if, and, elif, for, while, except, comprehension for, comprehension if, ternary
	assert.Equal(t, 10, result.CyclomaticComplexity)
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, "B", result.Symbols[0].Rank)
	assert.Empty(t, result.Issues)
}

func TestAnalyze_NestedFunctionsCountedSeparately(t *testing.T) {
	src := `def outer():
    """Outer."""
    def inner(x):
        """Inner."""
        if x:
            return 1
        return 0
    return inner
`
	result := newTestAnalyzer().Analyze(context.Background(), src)

	assert.Equal(t, 2, result.FunctionCount)
	assert.Equal(t, 3, result.CyclomaticComplexity)
	require.Len(t, result.Symbols, 2)
	assert.Equal(t, "outer", result.Symbols[0].Qualified)
	assert.Equal(t, 1, result.Symbols[0].Complexity)
	assert.Equal(t, "outer.inner", result.Symbols[1].Qualified)
	assert.Equal(t, 2, result.Symbols[1].Complexity)
}

func TestAnalyze_StructuralIssues(t *testing.T) {
	src := `class Account:
    def deposit(self, amount):
        print(amount)
        try:
            self.balance += amount
        except:
            pass
`
	result := newTestAnalyzer().Analyze(context.Background(), src)

	assert.Equal(t, 1, result.ClassCount)
	assert.Equal(t, 1, result.FunctionCount)
	assert.Equal(t, 2, result.CyclomaticComplexity)

	require.Len(t, result.Issues, 4)
	assert.Equal(t, []metrics.IssueKind{
		metrics.KindMissingDocstring,
		metrics.KindMissingDocstring,
		metrics.KindDebugPrint,
		metrics.KindBareExcept,
	}, kindsOf(result.Issues))

	assert.Equal(t, metrics.SeverityLow, result.Issues[0].Severity)
	assert.Equal(t, "Account", result.Issues[0].Location.Symbol)
	assert.Contains(t, result.Issues[0].Message, "class 'Account'")
	assert.Equal(t, "Account.deposit", result.Issues[1].Location.Symbol)
	assert.Equal(t, 3, result.Issues[2].Location.Line)
	assert.Equal(t, metrics.SeverityHigh, result.Issues[3].Severity)
	assert.Equal(t, 6, result.Issues[3].Location.Line)
}

func TestAnalyze_TypedExceptIsNotBare(t *testing.T) {
	src := `def load():
    """Load."""
    try:
        return 1
    except (KeyError, ValueError) as err:
        return err
`
	result := newTestAnalyzer().Analyze(context.Background(), src)

	assert.NotContains(t, kindsOf(result.Issues), metrics.KindBareExcept)
}

func TestAnalyze_ParseError(t *testing.T) {
	result := newTestAnalyzer().Analyze(context.Background(), "def broken(:\n    pass\n")

	assert.Equal(t, 0, result.CyclomaticComplexity)
	assert.Zero(t, result.MaintainabilityIndex)
	assert.False(t, result.Parsed())
	require.Len(t, result.Issues, 1)
	assert.Equal(t, metrics.KindParseError, result.Issues[0].Kind)
	assert.Equal(t, metrics.SeverityCritical, result.Issues[0].Severity)
}

func TestAnalyze_NoFunctionsUsesTopLevel(t *testing.T) {
	src := "x = 1\nif x:\n    y = 2\n"
	result := newTestAnalyzer().Analyze(context.Background(), src)

	assert.Equal(t, 0, result.FunctionCount)
	assert.Equal(t, 2, result.CyclomaticComplexity)
}

func TestAnalyze_TodoComment(t *testing.T) {
	src := "# TODO: remove the fallback\nx = 1\n"
	result := newTestAnalyzer().Analyze(context.Background(), src)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, metrics.KindTodoComment, result.Issues[0].Kind)
	assert.Equal(t, 1, result.Issues[0].Location.Line)
	assert.Contains(t, result.Issues[0].Message, "TODO: remove the fallback")
}

func branchyFunction(branches int) string {
	var b strings.Builder
	b.WriteString("def branchy(x):\n    \"\"\"Branchy.\"\"\"\n")
	for i := range branches {
		fmt.Fprintf(&b, "    if x == %d:\n        return %d\n", i, i)
	}
	b.WriteString("    return -1\n")
	return b.String()
}

func TestAnalyze_HighComplexitySeverity(t *testing.T) {
	tests := []struct {
		name     string
		branches int
		severity metrics.Severity
		flagged  bool
	}{
		{name: "at medium threshold", branches: 9, flagged: false},
		{name: "above medium threshold", branches: 12, severity: metrics.SeverityMedium, flagged: true},
		{name: "at high threshold", branches: 19, severity: metrics.SeverityMedium, flagged: true},
		{name: "above high threshold", branches: 21, severity: metrics.SeverityHigh, flagged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newTestAnalyzer().Analyze(context.Background(), branchyFunction(tt.branches))
			assert.Equal(t, tt.branches+1, result.CyclomaticComplexity)

			var found []metrics.Issue
			for _, issue := range result.Issues {
				if issue.Kind == metrics.KindHighComplexity {
					found = append(found, issue)
				}
			}
			if !tt.flagged {
				assert.Empty(t, found)
				return
			}
			require.Len(t, found, 1)
			assert.Equal(t, tt.severity, found[0].Severity)
			assert.Equal(t, "branchy", found[0].Location.Symbol)
		})
	}
}

func TestAnalyze_SourcePatterns(t *testing.T) {
	src := `def run(data):
    """Run."""
    password = "hunter22"
    # eval(data) in a comment is ignored
    return eval(data)
`
	result := newTestAnalyzer().Analyze(context.Background(), src)

	require.Len(t, result.Issues, 2)
	assert.Equal(t, metrics.KindHardcodedSecret, result.Issues[0].Kind)
	assert.Equal(t, metrics.SeverityCritical, result.Issues[0].Severity)
	assert.Equal(t, 3, result.Issues[0].Location.Line)
	assert.Equal(t, metrics.KindDynamicExecution, result.Issues[1].Kind)
	assert.Equal(t, 5, result.Issues[1].Location.Line)
}

func TestAnalyze_Deterministic(t *testing.T) {
	src := branchyFunction(15) + "\nclass Thing:\n    pass\n"
	a := newTestAnalyzer()

	first := a.Analyze(context.Background(), src)
	second := a.Analyze(context.Background(), src)

	assert.Equal(t, first, second)
}

type fakeExtractor struct {
	facts *metrics.Facts
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte) (*metrics.Facts, error) {
	return f.facts, f.err
}

func TestAnalyze_SwappableExtractor(t *testing.T) {
	facts := &metrics.Facts{
		Symbols: []metrics.Symbol{
			{Name: "a", Qualified: "a", Kind: metrics.SymbolFunction, StartLine: 1, EndLine: 3, Decisions: 2, HasDocstring: true},
			{Name: "b", Qualified: "b", Kind: metrics.SymbolFunction, StartLine: 4, EndLine: 6, Decisions: 0},
		},
		Halstead: metrics.Halstead{DistinctOperators: 4, DistinctOperands: 4, TotalOperators: 10, TotalOperands: 10},
	}
	a := metrics.NewAnalyzer(metrics.WithExtractor(metrics.LanguagePython, &fakeExtractor{facts: facts}))

	result := a.Analyze(context.Background(), "irrelevant\n")

	assert.Equal(t, 4, result.CyclomaticComplexity)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, metrics.KindMissingDocstring, result.Issues[0].Kind)
	assert.Equal(t, "b", result.Issues[0].Location.Symbol)
}

func TestAnalyze_ExtractorFailureDegrades(t *testing.T) {
	a := metrics.NewAnalyzer(metrics.WithExtractor(metrics.LanguagePython, &fakeExtractor{err: errors.New("boom")}))

	result := a.Analyze(context.Background(), "x = 1\n")

	require.Len(t, result.Issues, 1)
	assert.Equal(t, metrics.KindParseError, result.Issues[0].Kind)
	assert.Contains(t, result.Issues[0].Message, "boom")
}

func TestAnalyze_CustomThresholds(t *testing.T) {
	a := metrics.NewAnalyzer(metrics.WithThresholds(metrics.Thresholds{Medium: 2, High: 4}))

	result := a.Analyze(context.Background(), branchyFunction(4))

	require.Len(t, result.Issues, 1)
	assert.Equal(t, metrics.KindHighComplexity, result.Issues[0].Kind)
	assert.Equal(t, metrics.SeverityHigh, result.Issues[0].Severity)
}

func TestNewAnalyzerFor_LineOnlyLanguage(t *testing.T) {
	src := "// login helper\nconst password = \"hunter22\";\neval(payload);\n"

	result := metrics.NewAnalyzerFor(metrics.LanguageJavaScript).Analyze(context.Background(), src)

	assert.Equal(t, metrics.LanguageJavaScript, result.Language)
	assert.Equal(t, 1, result.CyclomaticComplexity)
	assert.Zero(t, result.FunctionCount)
	assert.Equal(t, metrics.LineCounts{Total: 3, Code: 2, Comment: 1}, result.Lines)
	assert.Equal(t,
		[]metrics.IssueKind{metrics.KindHardcodedSecret, metrics.KindDynamicExecution},
		kindsOf(result.Issues))
}

func TestNewAnalyzerFor_Python(t *testing.T) {
	result := metrics.NewAnalyzerFor(metrics.LanguagePython).Analyze(context.Background(), "def f(x):\n    \"\"\"Doc.\"\"\"\n    return x\n")

	assert.Equal(t, metrics.LanguagePython, result.Language)
	assert.Equal(t, 1, result.FunctionCount)
}
