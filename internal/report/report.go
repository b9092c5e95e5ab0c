// Package report renders pipeline reports as markdown or JSON.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/antinvestor/releasegate/internal/metrics"
	"github.com/antinvestor/releasegate/internal/pipeline"
	"github.com/antinvestor/releasegate/internal/risk"
)

// MaxDiffLines bounds the diff excerpt shown per unit.
const MaxDiffLines = 50

// Format selects the output representation.
type Format string

// Formats.
const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat converts a format name into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Write renders r to w in the given format.
func Write(w io.Writer, format Format, r *pipeline.Report) error {
	switch format {
	case FormatMarkdown:
		return Markdown(w, r)
	case FormatJSON:
		return JSON(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSON writes r as indented JSON.
func JSON(w io.Writer, r *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Markdown writes r as a human-readable markdown document.
func Markdown(w io.Writer, r *pipeline.Report) error {
	if err := markdownTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

var markdownTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"num":        formatFloat,
	"pct":        formatPercent,
	"diffBlock":  diffBlock,
	"code":       codeSpan,
	"cell":       tableCell,
	"gateBadge":  gateBadge,
	"gateCounts": gateCounts,
	"cc":         complexityCell,
	"mi":         maintainabilityCell,
	"sevCounts":  severityCounts,
}).Parse(markdownSource))

const markdownSource = `# Release Risk Report

**Run:** ` + "`{{.RunID}}`" + `
**Gate:** {{gateBadge .Aggregate.Gate}}
**Mean score:** {{num .Aggregate.WeightedTotal}} / 100
**Units:** {{len .Units}} ({{gateCounts .Aggregate}})

## Recommendations
{{range .Aggregate.Recommendations}}
- {{.}}
{{- end}}
{{- if .Units}}

## Summary

| Unit | Gate | Score | Complexity | Maintainability | Changes |
|------|------|------:|-----------:|----------------:|---------|
{{- range .Units}}
| {{cell (code .UnitID)}} | {{.Score.Gate}} | {{num .Score.WeightedTotal}} | {{cc .}} | {{mi .}} | {{.Changes.Summary}} |
{{- end}}
{{- range .Units}}

## {{code .UnitID}}

{{gateBadge .Score.Gate}} with score {{num .Score.WeightedTotal}}
{{- if .Empty}} (empty unit){{end}}
{{- if not .Modified}} (unmodified){{end}}

| Metric | Original | Candidate |
|--------|---------:|----------:|
| Cyclomatic complexity | {{.Original.CyclomaticComplexity}} | {{with .Candidate}}{{.CyclomaticComplexity}}{{else}}-{{end}} |
| Maintainability index | {{num .Original.MaintainabilityIndex}} | {{with .Candidate}}{{num .MaintainabilityIndex}}{{else}}-{{end}} |
| Functions | {{.Original.FunctionCount}} | {{with .Candidate}}{{.FunctionCount}}{{else}}-{{end}} |
| Classes | {{.Original.ClassCount}} | {{with .Candidate}}{{.ClassCount}}{{else}}-{{end}} |
| Code lines | {{.Original.Lines.Code}} | {{with .Candidate}}{{.Lines.Code}}{{else}}-{{end}} |
| Issues | {{sevCounts .Original}} | {{with .Candidate}}{{sevCounts .}}{{else}}-{{end}} |

| Component | Value |
|-----------|------:|
| Complexity | {{pct .Score.Components.Complexity}} |
| Volume | {{pct .Score.Components.Volume}} |
| Critical function | {{pct .Score.Components.CriticalFunction}} |
| Issue severity | {{pct .Score.Components.IssueSeverity}} |
{{- with .Score.CriticalTouched}}

Critical code touched: {{range $i, $name := .}}{{if $i}}, {{end}}` + "`{{$name}}`" + `{{end}}
{{- end}}
{{- with .Score.Recommendations}}
{{range .}}
- {{.}}
{{- end}}
{{- end}}
{{- with .Changes.UnifiedDiff}}

{{diffBlock .}}
{{- end}}
{{- end}}
{{- end}}
`

func formatFloat(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func gateBadge(gate risk.Gate) string {
	return "**" + string(gate) + "**"
}

func gateCounts(agg risk.AggregateScore) string {
	parts := make([]string, 0, 3)
	for _, g := range []risk.Gate{risk.GatePass, risk.GateWarn, risk.GateBlock} {
		parts = append(parts, fmt.Sprintf("%s %d", g, agg.GateCounts[g]))
	}
	return strings.Join(parts, ", ")
}

func complexityCell(u pipeline.UnitResult) string {
	if u.Candidate == nil {
		return fmt.Sprintf("%d", u.Original.CyclomaticComplexity)
	}
	return fmt.Sprintf("%d → %d", u.Original.CyclomaticComplexity, u.Candidate.CyclomaticComplexity)
}

func maintainabilityCell(u pipeline.UnitResult) string {
	if u.Candidate == nil {
		return formatFloat(u.Original.MaintainabilityIndex)
	}
	return formatFloat(u.Original.MaintainabilityIndex) + " → " + formatFloat(u.Candidate.MaintainabilityIndex)
}

func severityCounts(r metrics.Result) string {
	if len(r.Issues) == 0 {
		return "0"
	}
	counts := r.CountBySeverity()
	parts := make([]string, 0, 4)
	for _, sev := range []metrics.Severity{
		metrics.SeverityCritical, metrics.SeverityHigh, metrics.SeverityMedium, metrics.SeverityLow,
	} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return strings.Join(parts, ", ")
}

// diffBlock fences the truncated diff with more backticks than any run inside it.
func diffBlock(unified string) string {
	body := truncateDiff(unified)
	fence := strings.Repeat("`", max(3, longestBacktickRun(body)+1))
	return fence + "diff\n" + body + "\n" + fence
}

// codeSpan renders s as inline code, even when s contains backticks.
func codeSpan(s string) string {
	fence := strings.Repeat("`", longestBacktickRun(s)+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

// tableCell escapes pipes so a value stays within one table cell.
func tableCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func longestBacktickRun(s string) int {
	longest, run := 0, 0
	for _, r := range s {
		if r != '`' {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return longest
}

// truncateDiff keeps the first MaxDiffLines lines of a unified diff.
func truncateDiff(unified string) string {
	lines := strings.Split(strings.TrimRight(unified, "\n"), "\n")
	if len(lines) <= MaxDiffLines {
		return strings.Join(lines, "\n")
	}
	kept := strings.Join(lines[:MaxDiffLines], "\n")
	return fmt.Sprintf("%s\n... (%d more lines)", kept, len(lines)-MaxDiffLines)
}
