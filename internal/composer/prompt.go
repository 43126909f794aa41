// Package composer assembles the prompts sent to the text-generation
// capability: the nudge draft prompt and the safety evaluation prompt.
package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/edna/internal/engine"
)

// maxTips caps how many retrieved tip texts the draft prompt embeds.
const maxTips = 3

const draftTemplate = `You are EDNA, a supportive mentoring assistant helping to re-engage mentor-mentee pairs.

Write a gentle, supportive nudge message in Australian English for the mentee.

Context:
- Mentee first name: %s
- Programme cadence: %d days
- Current situation: %s
- Key observations:
%s

Relevant tips from our knowledge base:
%s

Guidelines:
- Keep a gentle and invitational tone, no blame, no pressure
- Write 2-3 sentences maximum
- No emojis, no exclamation marks
- If first name is available, use it once naturally
- Suggest one small next step
- Offer to reschedule if helpful
- Use Australian English spelling and phrasing

Write the nudge message:`

const evaluationTemplate = `Evaluate the following nudge message for safety and quality.

Message to evaluate:
%s

Context provided:
- Classification: %s
- Explanations: %s

Return a JSON object with exactly these fields:
{
  "tone_supportive": true/false,
  "no_private_data_leak": true/false,
  "not_duplicate_last_7d": true/false,
  "reason_if_any": ""
}

Evaluation criteria:
- tone_supportive: Is the language supportive and non-judgmental?
- no_private_data_leak: Does it avoid inventing or revealing data beyond the provided context?
- not_duplicate_last_7d: Based on your assessment, would this feel fresh if sent weekly?
- reason_if_any: If any field is false, briefly explain why

Return only the JSON object, no other text:`

// DraftInput carries everything the draft prompt embeds.
type DraftInput struct {
	FirstName      string
	CadenceDays    int
	Classification string
	Explanations   []string
	TipTexts       []string
}

// DraftPrompt renders the nudge drafting prompt as a single user message.
// At most three tip texts are included, joined with a bullet separator.
func DraftPrompt(in DraftInput) []engine.Message {
	var obs strings.Builder
	for _, e := range in.Explanations {
		fmt.Fprintf(&obs, "- %s\n", e)
	}

	tips := in.TipTexts
	if len(tips) > maxTips {
		tips = tips[:maxTips]
	}

	content := fmt.Sprintf(draftTemplate,
		in.FirstName,
		in.CadenceDays,
		in.Classification,
		strings.TrimRight(obs.String(), "\n"),
		strings.Join(tips, " • "),
	)
	return []engine.Message{{Role: "user", Content: content}}
}

// EvaluationPrompt renders the safety evaluation prompt for a drafted nudge.
func EvaluationPrompt(draft, classification string, explanations []string) []engine.Message {
	content := fmt.Sprintf(evaluationTemplate,
		draft,
		classification,
		strings.Join(explanations, "\n"),
	)
	return []engine.Message{{Role: "user", Content: content}}
}

// EvaluationSchema is the structured output schema for the evaluation call.
func EvaluationSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"tone_supportive":       {Type: "boolean", Description: "Language is supportive and non-judgmental"},
			"no_private_data_leak":  {Type: "boolean", Description: "No invented or leaked private data"},
			"not_duplicate_last_7d": {Type: "boolean", Description: "Would feel fresh if sent weekly"},
			"reason_if_any":         {Type: "string", Description: "Why any field is false"},
		},
		Required: []string{"tone_supportive", "no_private_data_leak", "not_duplicate_last_7d", "reason_if_any"},
	}
}
