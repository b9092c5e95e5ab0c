package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/releasegate/internal/pipeline"
	"github.com/antinvestor/releasegate/internal/policy"
	"github.com/antinvestor/releasegate/internal/report"
)

const authOriginal = `def authenticate_user(username, password):
    """Check credentials."""
    if not username:
        return False
    return True
`

const authCandidate = `def authenticate_user(username, password):
    """Check credentials."""
    if not username:
        return False
    if not password:
        return False
    return True
`

func ptr(s string) *string {
	return &s
}

func newTestReport(t *testing.T, units ...pipeline.Unit) *pipeline.Report {
	t.Helper()
	runner, err := pipeline.NewRunner(policy.Default())
	require.NoError(t, err)
	r, err := runner.Run(context.Background(), units)
	require.NoError(t, err)
	return r
}

func TestMarkdown_Sections(t *testing.T) {
	r := newTestReport(t,
		pipeline.Unit{ID: "auth.py", Original: authOriginal, Candidate: ptr(authCandidate)},
		pipeline.Unit{ID: "util.py", Original: "def f():\n    \"\"\"Doc.\"\"\"\n    return 1\n"},
	)

	var buf bytes.Buffer
	require.NoError(t, report.Markdown(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "# Release Risk Report")
	assert.Contains(t, out, "**Run:** `"+r.RunID.String()+"`")
	assert.Contains(t, out, "**Gate:** **"+string(r.Gate())+"**")
	assert.Contains(t, out, "## Summary")
	assert.Contains(t, out, "| `auth.py` | ")
	assert.Contains(t, out, "2 → 3")
	assert.Contains(t, out, "## `util.py`")
	assert.Contains(t, out, "(unmodified)")
	assert.Contains(t, out, "Critical code touched: `authenticate_user`")
	assert.Contains(t, out, "```diff\n--- a/auth.py\n+++ b/auth.py")
	for _, rec := range r.Aggregate.Recommendations {
		assert.Contains(t, out, "- "+rec)
	}
}

func TestMarkdown_EscapesPipesAndFences(t *testing.T) {
	original := "def render():\n    \"\"\"Render.\"\"\"\n    return 1\n"
	candidate := "def render():\n    \"\"\"Render.\n\n    ```python\n    render()\n    ```\n    \"\"\"\n    return 1\n"
	r := newTestReport(t, pipeline.Unit{ID: "a|b.py", Original: original, Candidate: ptr(candidate)})

	var buf bytes.Buffer
	require.NoError(t, report.Markdown(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "| `a\\|b.py` | ")
	assert.Contains(t, out, "## `a|b.py`")
	assert.Contains(t, out, "````diff\n--- a/a|b.py")
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, "\n"), "\n````"),
		"diff block closes with the longer fence")
}

func TestMarkdown_NoUnits(t *testing.T) {
	r := newTestReport(t)

	var buf bytes.Buffer
	require.NoError(t, report.Markdown(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "- No units assessed")
	assert.Contains(t, out, "PASS 0, WARN 0, BLOCK 0")
	assert.NotContains(t, out, "## Summary")
}

func TestMarkdown_TruncatesLongDiffs(t *testing.T) {
	var orig, cand strings.Builder
	for i := range 80 {
		fmt.Fprintf(&orig, "value_%d = %d\n", i, i)
		fmt.Fprintf(&cand, "value_%d = %d\n", i, i*2+1)
	}
	r := newTestReport(t, pipeline.Unit{ID: "big.py", Original: orig.String(), Candidate: ptr(cand.String())})

	var buf bytes.Buffer
	require.NoError(t, report.Markdown(&buf, r))
	out := buf.String()

	diffLines := strings.Count(strings.TrimRight(r.Units[0].Changes.UnifiedDiff, "\n"), "\n") + 1
	require.Greater(t, diffLines, report.MaxDiffLines)
	assert.Contains(t, out, fmt.Sprintf("... (%d more lines)", diffLines-report.MaxDiffLines))
}

func TestJSON_RoundTrip(t *testing.T) {
	r := newTestReport(t, pipeline.Unit{ID: "auth.py", Original: authOriginal, Candidate: ptr(authCandidate)})

	var buf bytes.Buffer
	require.NoError(t, report.JSON(&buf, r))

	var decoded pipeline.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	assert.Equal(t, r.Aggregate.Gate, decoded.Aggregate.Gate)
	require.Len(t, decoded.Units, 1)
	assert.Equal(t, "auth.py", decoded.Units[0].UnitID)
	assert.True(t, decoded.Units[0].Modified)
}

func TestWrite_SelectsFormat(t *testing.T) {
	r := newTestReport(t)

	var md, js bytes.Buffer
	require.NoError(t, report.Write(&md, report.FormatMarkdown, r))
	require.NoError(t, report.Write(&js, report.FormatJSON, r))
	assert.True(t, strings.HasPrefix(md.String(), "# Release Risk Report"))
	assert.True(t, json.Valid(js.Bytes()))

	require.ErrorIs(t, report.Write(&md, "xml", r), report.ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    report.Format
		wantErr bool
	}{
		{in: "markdown", want: report.FormatMarkdown},
		{in: "MD", want: report.FormatMarkdown},
		{in: "json", want: report.FormatJSON},
		{in: "yaml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := report.ParseFormat(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, report.ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
