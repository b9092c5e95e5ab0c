package risk

import (
	"bytes"
	"text/template"
)

// recommendationInput is what recommendation rules see of an assessment.
type recommendationInput struct {
	Score        float64
	Gate         Gate
	Components   Components
	Dominant     Factor
	SevereIssues int
	Touched      []string
}

// recommendationRule emits Message when When holds. Rules run in table order.
type recommendationRule struct {
	Name    string
	When    func(in recommendationInput) bool
	Message *template.Template
}

func recommendation(name, text string, when func(in recommendationInput) bool) recommendationRule {
	return recommendationRule{
		Name:    name,
		When:    when,
		Message: template.Must(template.New(name).Parse(text)),
	}
}

func dominatedBy(f Factor) func(in recommendationInput) bool {
	return func(in recommendationInput) bool {
		return in.Dominant == f
	}
}

// initRecommendationRules returns the advisory rule table.
func initRecommendationRules() []recommendationRule {
	return []recommendationRule{
		recommendation("gate_pass", "✓ Low risk changes - safe to proceed",
			func(in recommendationInput) bool { return in.Gate == GatePass }),
		recommendation("gate_warn", "⚠ Medium risk changes - additional review recommended",
			func(in recommendationInput) bool { return in.Gate == GateWarn }),
		recommendation("gate_block", "⛔ High risk changes - thorough review required before deployment",
			func(in recommendationInput) bool { return in.Gate == GateBlock }),

		recommendation("dominant_critical",
			"Manual security review required: critical code changed{{if .Touched}} ({{range $i, $n := .Touched}}{{if $i}}, {{end}}{{$n}}{{end}}){{end}}",
			dominatedBy(FactorCriticalFunction)),
		recommendation("dominant_complexity",
			"Complexity growth drives the risk - review new control flow before merging",
			dominatedBy(FactorComplexity)),
		recommendation("dominant_issues",
			"Static analysis findings drive the risk - resolve them before release",
			dominatedBy(FactorIssueSeverity)),
		recommendation("dominant_volume",
			"Change volume drives the risk - review the diff in smaller pieces",
			dominatedBy(FactorVolume)),

		recommendation("complexity_high", "Consider refactoring high complexity functions",
			func(in recommendationInput) bool { return in.Components.Complexity > 0.7 }),
		recommendation("volume_high", "Large volume of changes - consider breaking into smaller releases",
			func(in recommendationInput) bool { return in.Components.Volume > 0.5 }),
		recommendation("severe_issues", "Address {{.SevereIssues}} medium/high severity issues",
			func(in recommendationInput) bool { return in.SevereIssues > 0 }),
		recommendation("testing", "Comprehensive testing recommended before deployment",
			func(in recommendationInput) bool { return in.Score > 40 }),
		recommendation("unit_tests", "Consider adding additional unit tests for modified functions",
			func(in recommendationInput) bool { return in.Score > 40 }),
	}
}

// recommend evaluates the rule table and drops repeated messages.
func (a *Assessor) recommend(in recommendationInput) []string {
	out := make([]string, 0, len(a.rules))
	seen := make(map[string]struct{}, len(a.rules))
	for _, rule := range a.rules {
		if !rule.When(in) {
			continue
		}
		var buf bytes.Buffer
		if err := rule.Message.Execute(&buf, in); err != nil {
			continue
		}
		msg := buf.String()
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
	}
	return out
}
