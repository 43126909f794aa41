package engine

import (
	"context"
	"fmt"
	"strings"
)

// StaticEngine is a deterministic Engine for offline runs and tests. Chat
// produces a fixed supportive nudge, or an all-pass JSON object when a
// structured response is requested. It has no embedding support, so
// retrieval degrades to the lexical path.
type StaticEngine struct{}

// NewStaticEngine creates a deterministic engine.
func NewStaticEngine() *StaticEngine {
	return &StaticEngine{}
}

func (e *StaticEngine) Chat(_ context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	if jsonSchema != nil {
		return staticStructured(jsonSchema), nil
	}

	name := firstNameFromPrompt(messages)
	if name != "" {
		return fmt.Sprintf("Hi %s, it has been a little while since your last catch-up. "+
			"When you have a moment, perhaps send your mentor a quick note to line up your next session.", name), nil
	}
	return "It has been a little while since your last catch-up. " +
		"When you have a moment, perhaps send your mentor a quick note to line up your next session.", nil
}

func (e *StaticEngine) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("static engine has no embedding support")
}

// staticStructured builds a JSON object satisfying the schema, with true for
// booleans and empty strings otherwise.
func staticStructured(schema *Schema) string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for _, key := range schema.Required {
		prop, ok := schema.Properties[key]
		if !ok {
			continue
		}
		if !first {
			sb.WriteString(",")
		}
		first = false
		switch prop.Type {
		case "boolean":
			fmt.Fprintf(&sb, "%q:true", key)
		case "number", "integer":
			fmt.Fprintf(&sb, "%q:0", key)
		default:
			fmt.Fprintf(&sb, "%q:\"\"", key)
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// firstNameFromPrompt pulls the mentee name out of the draft prompt's
// "Mentee first name:" line, if present.
func firstNameFromPrompt(messages []Message) string {
	const marker = "Mentee first name:"
	for _, m := range messages {
		idx := strings.Index(m.Content, marker)
		if idx == -1 {
			continue
		}
		rest := m.Content[idx+len(marker):]
		if end := strings.IndexByte(rest, '\n'); end != -1 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}
