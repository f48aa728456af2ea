package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Relationship is a foreign-key note given to the model alongside the schema.
type Relationship struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Note string `yaml:"note,omitempty"`
}

// Example is a few-shot question/SQL pair.
type Example struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

// Knowledge is the injectable domain knowledge for a schema: relationship
// notes and few-shot examples. Keeping it as data rather than embedded
// constants lets the agent be pointed at a different schema without a
// code change.
type Knowledge struct {
	Relationships []Relationship `yaml:"relationships"`
	Examples      []Example      `yaml:"examples"`
}

// DefaultKnowledge returns the embedded demo-schema knowledge.
func DefaultKnowledge() (*Knowledge, error) {
	data, err := templatesFS.ReadFile("templates/knowledge.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded knowledge: %w", err)
	}
	return parseKnowledge(data)
}

// LoadKnowledge reads a knowledge file from disk.
func LoadKnowledge(path string) (*Knowledge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return parseKnowledge(data)
}

func parseKnowledge(data []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge: %w", err)
	}
	return &k, nil
}

// render formats the knowledge as prompt text.
func (k *Knowledge) render() string {
	var sb strings.Builder

	if len(k.Relationships) > 0 {
		sb.WriteString("# Key relationships\n\n")
		for _, r := range k.Relationships {
			sb.WriteString(fmt.Sprintf("- %s -> %s", r.From, r.To))
			if r.Note != "" {
				sb.WriteString(" (" + r.Note + ")")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(k.Examples) > 0 {
		sb.WriteString("# Example queries\n")
		for i, ex := range k.Examples {
			sb.WriteString(fmt.Sprintf("\nExample %d:\nQuestion: %q\nSQL:\n%s\n", i+1, ex.Question, strings.TrimSpace(ex.SQL)))
		}
	}

	return strings.TrimSpace(sb.String())
}
