// Package engine abstracts the text-generation and embedding capabilities
// the pipeline depends on. Consumers use this interface instead of a
// concrete provider client; the deterministic implementation is just
// another implementation, not a special case.
package engine

import "context"

// Engine is a text-generation capability with optional embedding support.
type Engine interface {
	// Chat sends messages and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error)

	// Embed returns the embedding vector for the given text. Implementations
	// without embedding support return an error; callers degrade to lexical
	// retrieval.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes the expected JSON output structure for structured chat responses.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}
