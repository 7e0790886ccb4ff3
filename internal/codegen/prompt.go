package codegen

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultPromptTemplate instructs the model to answer with GLua only.
const DefaultPromptTemplate = "Write ONLY working Garry's Mod Lua code (GLua). No explanations. Request: {{.Prompt}}"

// PromptTemplate wraps a caller prompt in provider instructions.
type PromptTemplate struct {
	src  string
	tmpl *template.Template
}

// promptData is the value the template is executed against.
type promptData struct {
	Prompt string
}

// ParsePromptTemplate parses src. The prompt is available as {{.Prompt}}.
func ParsePromptTemplate(src string) (*PromptTemplate, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return &PromptTemplate{src: src, tmpl: t}, nil
}

// MustParsePromptTemplate is like ParsePromptTemplate but panics on error.
func MustParsePromptTemplate(src string) *PromptTemplate {
	t, err := ParsePromptTemplate(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes the template for prompt.
func (p *PromptTemplate) Render(prompt string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, promptData{Prompt: prompt}); err != nil {
		return "", fmt.Errorf("rendering prompt template: %w", err)
	}
	return b.String(), nil
}

// String returns the template source.
func (p *PromptTemplate) String() string { return p.src }
