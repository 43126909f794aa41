package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestStaticEngine_DraftUsesName(t *testing.T) {
	e := NewStaticEngine()
	msgs := []Message{{Role: "user", Content: "Context:\n- Mentee first name: Priya\n- Programme cadence: 10 days\n"}}

	out, err := e.Chat(context.Background(), msgs, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.HasPrefix(out, "Hi Priya,") {
		t.Errorf("draft should address the mentee, got %q", out)
	}
	if strings.Contains(out, "!") {
		t.Errorf("draft should avoid exclamation marks, got %q", out)
	}
}

func TestStaticEngine_DraftWithoutName(t *testing.T) {
	e := NewStaticEngine()
	out, err := e.Chat(context.Background(), []Message{{Role: "user", Content: "no name here"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if strings.HasPrefix(out, "Hi ,") {
		t.Errorf("nameless draft should not contain a dangling greeting, got %q", out)
	}
}

func TestStaticEngine_Deterministic(t *testing.T) {
	e := NewStaticEngine()
	msgs := []Message{{Role: "user", Content: "Mentee first name: Sam\n"}}

	first, _ := e.Chat(context.Background(), msgs, nil)
	for i := 0; i < 3; i++ {
		again, _ := e.Chat(context.Background(), msgs, nil)
		if again != first {
			t.Fatalf("output differs across calls: %q vs %q", again, first)
		}
	}
}

func TestStaticEngine_StructuredAllPass(t *testing.T) {
	e := NewStaticEngine()
	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"tone_supportive": {Type: "boolean"},
			"reason_if_any":   {Type: "string"},
		},
		Required: []string{"tone_supportive", "reason_if_any"},
	}

	out, err := e.Chat(context.Background(), nil, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("structured output is not JSON: %v (%q)", err, out)
	}
	if parsed["tone_supportive"] != true {
		t.Errorf("boolean field should default true, got %v", parsed["tone_supportive"])
	}
	if parsed["reason_if_any"] != "" {
		t.Errorf("string field should default empty, got %v", parsed["reason_if_any"])
	}
}

func TestStaticEngine_NoEmbeddings(t *testing.T) {
	e := NewStaticEngine()
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("Embed should report no embedding support")
	}
}
