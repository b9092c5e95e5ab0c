package llm

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

const modifySystemPrompt = "You are an expert software engineer. You rewrite source files exactly as " +
	"instructed and reply with the complete updated file only."

const modifyTemplate = `Rewrite the {{.Language}} file {{.UnitID}} to satisfy the following change request.

## Change request
{{.Intent}}

## Current file
` + "```{{.Language}}" + `
{{.Source}}
` + "```" + `

Reply with the complete updated file in a single fenced code block. Keep unrelated code unchanged.
`

// PromptBuilder renders the modification prompt.
type PromptBuilder struct {
	modify *template.Template
}

// NewPromptBuilder parses the prompt templates.
func NewPromptBuilder() (*PromptBuilder, error) {
	t, err := template.New("modify").Parse(modifyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse template modify: %w", err)
	}
	return &PromptBuilder{modify: t}, nil
}

// Build renders the user prompt for req.
func (pb *PromptBuilder) Build(req ModifyRequest) (string, error) {
	if req.Language == "" {
		req.Language = "python"
	}
	req.Source = strings.TrimRight(req.Source, "\n")

	var buf bytes.Buffer
	if err := pb.modify.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

var fencedBlock = regexp.MustCompile("(?s)```[\\w+-]*[ \\t]*\\n(.*?)\\n?```")

// extractCandidate pulls the file body out of a model reply. The first fenced
// block wins; an unfenced reply is used as is.
func extractCandidate(content string) (string, error) {
	body := content
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		body = m[1]
	}
	body = strings.Trim(body, "\n")
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: empty candidate", ErrInvalidResponse)
	}
	return body + "\n", nil
}
