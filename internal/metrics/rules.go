package metrics

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"
)

// ruleSite is one match of a rule, exposed to its message template.
type ruleSite struct {
	Line       int
	Symbol     string
	Kind       SymbolKind
	Complexity int
	Limit      int
	Text       string
}

// issueRule is a declarative rule over the structural facts of a unit.
type issueRule struct {
	Kind     IssueKind
	Severity Severity
	Message  *template.Template
	Sites    func(f *Facts, t Thresholds) []ruleSite
}

// sourcePattern flags a line-level pattern, whatever its structural context.
type sourcePattern struct {
	Kind      IssueKind
	Pattern   *regexp.Regexp
	Severity  Severity
	Message   string
	Languages []Language // Empty means all languages
}

var todoMarker = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)

func messageTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// initIssueRules returns the structural rule table.
func initIssueRules() []issueRule {
	return []issueRule{
		{
			Kind:     KindMissingDocstring,
			Severity: SeverityLow,
			Message:  messageTemplate("docstring", "{{.Kind}} '{{.Symbol}}' is missing a docstring"),
			Sites: func(f *Facts, _ Thresholds) []ruleSite {
				var sites []ruleSite
				for _, s := range f.Symbols {
					if !s.HasDocstring {
						sites = append(sites, ruleSite{Line: s.StartLine, Symbol: s.Qualified, Kind: s.Kind})
					}
				}
				return sites
			},
		},
		{
			Kind:     KindBareExcept,
			Severity: SeverityHigh,
			Message:  messageTemplate("bare_except", "bare except clause catches every exception, including system exits"),
			Sites: func(f *Facts, _ Thresholds) []ruleSite {
				return sitesFrom(f.BareExcepts)
			},
		},
		{
			Kind:     KindDebugPrint,
			Severity: SeverityLow,
			Message:  messageTemplate("debug_print", "print statement left in code; use logging instead"),
			Sites: func(f *Facts, _ Thresholds) []ruleSite {
				return sitesFrom(f.DebugPrints)
			},
		},
		{
			Kind:     KindHighComplexity,
			Severity: SeverityMedium,
			Message: messageTemplate("complexity_medium",
				"function '{{.Symbol}}' has cyclomatic complexity {{.Complexity}} (threshold {{.Limit}})"),
			Sites: func(f *Facts, t Thresholds) []ruleSite {
				return complexitySites(f, t.Medium, t.High)
			},
		},
		{
			Kind:     KindHighComplexity,
			Severity: SeverityHigh,
			Message: messageTemplate("complexity_high",
				"function '{{.Symbol}}' has cyclomatic complexity {{.Complexity}} (threshold {{.Limit}})"),
			Sites: func(f *Facts, t Thresholds) []ruleSite {
				return complexitySites(f, t.High, 0)
			},
		},
		{
			Kind:     KindTodoComment,
			Severity: SeverityLow,
			Message:  messageTemplate("todo", "unresolved marker: {{.Text}}"),
			Sites: func(f *Facts, _ Thresholds) []ruleSite {
				var sites []ruleSite
				for _, c := range f.Comments {
					if todoMarker.MatchString(c.Text) {
						text := strings.TrimSpace(strings.TrimPrefix(c.Text, "#"))
						sites = append(sites, ruleSite{Line: c.Line, Text: text})
					}
				}
				return sites
			},
		},
	}
}

// initSourcePatterns returns the pattern-level flags checked line by line.
func initSourcePatterns() []sourcePattern {
	return []sourcePattern{
		{
			Kind:     KindHardcodedSecret,
			Pattern:  regexp.MustCompile(`(?i)\b(password|passwd|secret|api_?key|access_?token|auth_?token)\s*=\s*["'][^"']{4,}["']`),
			Severity: SeverityCritical,
			Message:  "credential assigned from a string literal",
		},
		{
			Kind:      KindSQLInjection,
			Pattern:   regexp.MustCompile(`(?i)execute\s*\(\s*f["'].*\b(SELECT|INSERT|UPDATE|DELETE)\b`),
			Severity:  SeverityCritical,
			Message:   "SQL query built with an f-string; use parameterized queries",
			Languages: []Language{LanguagePython},
		},
		{
			Kind:      KindDynamicExecution,
			Pattern:   regexp.MustCompile(`(?:^|[^.\w])(eval|exec)\s*\(`),
			Severity:  SeverityHigh,
			Message:   "dynamic code execution with eval/exec",
			Languages: []Language{LanguagePython, LanguageJavaScript},
		},
		{
			Kind:      KindUnsafeDeserialization,
			Pattern:   regexp.MustCompile(`\b(c?[Pp]ickle|marshal)\.loads?\s*\(`),
			Severity:  SeverityHigh,
			Message:   "deserializing untrusted data can execute arbitrary code",
			Languages: []Language{LanguagePython},
		},
		{
			Kind:      KindShellInjection,
			Pattern:   regexp.MustCompile(`\bsubprocess\.\w+\(.*shell\s*=\s*True|\bos\.system\s*\(`),
			Severity:  SeverityHigh,
			Message:   "command executed through the shell",
			Languages: []Language{LanguagePython},
		},
	}
}

func (p *sourcePattern) appliesTo(lang Language) bool {
	if len(p.Languages) == 0 {
		return true
	}
	for _, l := range p.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func sitesFrom(in []Site) []ruleSite {
	sites := make([]ruleSite, 0, len(in))
	for _, s := range in {
		sites = append(sites, ruleSite{Line: s.Line, Symbol: s.Symbol})
	}
	return sites
}

// complexitySites returns functions above lower and, when upper is set, at most upper.
func complexitySites(f *Facts, lower, upper int) []ruleSite {
	var sites []ruleSite
	for _, fn := range f.Functions() {
		cc := fn.Decisions + 1
		if cc <= lower || (upper > 0 && cc > upper) {
			continue
		}
		sites = append(sites, ruleSite{
			Line:       fn.StartLine,
			Symbol:     fn.Qualified,
			Kind:       fn.Kind,
			Complexity: cc,
			Limit:      lower,
		})
	}
	return sites
}

func (r *issueRule) evaluate(f *Facts, t Thresholds) []Issue {
	sites := r.Sites(f, t)
	issues := make([]Issue, 0, len(sites))
	for _, site := range sites {
		var msg bytes.Buffer
		if err := r.Message.Execute(&msg, site); err != nil {
			msg.Reset()
			msg.WriteString(string(r.Kind))
		}
		issues = append(issues, Issue{
			Kind:     r.Kind,
			Severity: r.Severity,
			Location: Location{Line: site.Line, Symbol: site.Symbol},
			Message:  msg.String(),
		})
	}
	return issues
}

func (p *sourcePattern) evaluate(lines []string) []Issue {
	var issues []Issue
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if p.Pattern.MatchString(line) {
			issues = append(issues, Issue{
				Kind:     p.Kind,
				Severity: p.Severity,
				Location: Location{Line: i + 1},
				Message:  p.Message,
			})
		}
	}
	return issues
}
