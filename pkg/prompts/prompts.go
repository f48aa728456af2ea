// Package prompts assembles the system and user prompts sent to the model.
// The static instruction templates are embedded; the schema context and the
// domain knowledge (relationship notes, few-shot examples) are injected.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.md templates/knowledge.yaml
var templatesFS embed.FS

// Builder builds generation and retry prompts.
type Builder struct {
	generate  string
	retry     string
	knowledge *Knowledge
}

// NewBuilder loads the embedded templates and binds the given knowledge.
// A nil knowledge falls back to the embedded default set.
func NewBuilder(knowledge *Knowledge) (*Builder, error) {
	b := &Builder{knowledge: knowledge}

	var err error
	if b.generate, err = loadTemplate("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if b.retry, err = loadTemplate("RETRY.md"); err != nil {
		return nil, fmt.Errorf("failed to load RETRY: %w", err)
	}

	if b.knowledge == nil {
		if b.knowledge, err = DefaultKnowledge(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Generate returns the system and user prompts for a first attempt.
func (b *Builder) Generate(schemaContext, question string) (system, user string) {
	return b.systemPrompt(schemaContext), fmt.Sprintf("Question: %s\n\nSQL:", question)
}

// Retry returns the prompts for a regeneration attempt. The user prompt
// carries the failed SQL and the verbatim failure message so the model
// receives strictly more information than the previous round.
func (b *Builder) Retry(schemaContext, question, failedSQL, errorMessage string) (system, user string) {
	user = fmt.Sprintf(`%s

Original question: %s

Previous SQL (failed):
%s

Error message:
%s

Corrected SQL:`, b.retry, question, failedSQL, errorMessage)
	return b.systemPrompt(schemaContext), user
}

func (b *Builder) systemPrompt(schemaContext string) string {
	parts := []string{b.generate}
	if k := b.knowledge.render(); k != "" {
		parts = append(parts, k)
	}
	parts = append(parts, "# Database schema\n\n```\n"+strings.TrimSpace(schemaContext)+"\n```")
	return strings.Join(parts, "\n\n")
}

func loadTemplate(name string) (string, error) {
	data, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
