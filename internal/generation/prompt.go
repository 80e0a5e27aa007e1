package generation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed templates/prompt.tmpl
var defaultPromptTemplate string

// PromptBuilder renders a Request into the text sent to the provider.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the template at path, or the built-in template when
// path is empty.
func NewPromptBuilder(path string) (*PromptBuilder, error) {
	text := defaultPromptTemplate
	name := "default"
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
				ErrInvalidConfig, path, err)
		}
		text = string(content)
		name = path
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", ErrInvalidConfig, err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build executes the template with req.
func (b *PromptBuilder) Build(req Request) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, req); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	prompt := strings.TrimSpace(sb.String())
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt rendered empty", ErrInvalidRequest)
	}
	return prompt, nil
}
