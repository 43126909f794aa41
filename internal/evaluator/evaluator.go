// Package evaluator runs the safety and quality checks on a drafted nudge.
// The model's judgment is advisory: it defaults to permissive on any call or
// parse failure, and the local duplicate-send record always overrides the
// model's duplicate opinion.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/edna/internal/composer"
	"github.com/kalambet/edna/internal/engine"
)

// SafetyChecks is the binary quality/safety judgment on a drafted nudge.
type SafetyChecks struct {
	ToneSupportive     bool   `json:"tone_supportive"`
	NoPrivateDataLeak  bool   `json:"no_private_data_leak"`
	NotDuplicateLast7d bool   `json:"not_duplicate_last_7d"`
	ReasonIfAny        string `json:"reason_if_any"`
}

// passAll is the permissive default used when evaluation cannot run.
func passAll() SafetyChecks {
	return SafetyChecks{
		ToneSupportive:     true,
		NoPrivateDataLeak:  true,
		NotDuplicateLast7d: true,
	}
}

// DuplicateChecker reports whether an equivalent nudge was already sent to
// the pair recently, per the local sent log.
type DuplicateChecker func(pairID, classification string) bool

// Evaluator scores drafts via the engine and applies the local duplicate
// override.
type Evaluator struct {
	engine      engine.Engine
	isDuplicate DuplicateChecker
}

// New creates an Evaluator. isDuplicate may be nil when no sent log exists.
func New(eng engine.Engine, isDuplicate DuplicateChecker) *Evaluator {
	return &Evaluator{engine: eng, isDuplicate: isDuplicate}
}

// Evaluate runs one structured evaluation call on the draft, falling back to
// permissive defaults on failure, then forces not_duplicate_last_7d to false
// when the local sent log contradicts the model. The local record trumps the
// model's guess unconditionally.
func (e *Evaluator) Evaluate(ctx context.Context, draft, pairID, classification string, explanations []string) SafetyChecks {
	checks := passAll()

	messages := composer.EvaluationPrompt(draft, classification, explanations)
	resp, err := e.engine.Chat(ctx, messages, composer.EvaluationSchema())
	if err != nil {
		slog.Warn("evaluation call failed, using permissive defaults", "pair_id", pairID, "error", err)
	} else if parsed, perr := parseChecks(resp); perr != nil {
		slog.Warn("evaluation response unparseable, using permissive defaults", "pair_id", pairID, "error", perr)
	} else {
		checks = parsed
	}

	if e.isDuplicate != nil && e.isDuplicate(pairID, classification) {
		checks.NotDuplicateLast7d = false
		if checks.ReasonIfAny == "" {
			checks.ReasonIfAny = "Similar nudge sent in last 7 days"
		}
	}

	return checks
}

// parseChecks extracts the SafetyChecks JSON object from an LLM response.
// Models frequently wrap JSON in markdown code fences or prepend filler, so:
//  1. Strip markdown code fences if present (```json ... ```)
//  2. Find the first { and last } to extract the JSON object
//  3. Unmarshal the extracted substring
func parseChecks(resp string) (SafetyChecks, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return SafetyChecks{}, fmt.Errorf("no JSON object in response")
	}

	// Missing booleans default to pass, matching the call-failure behavior.
	checks := passAll()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return SafetyChecks{}, fmt.Errorf("unmarshal checks: %w", err)
	}
	assignBool(raw, "tone_supportive", &checks.ToneSupportive)
	assignBool(raw, "no_private_data_leak", &checks.NoPrivateDataLeak)
	assignBool(raw, "not_duplicate_last_7d", &checks.NotDuplicateLast7d)
	if v, ok := raw["reason_if_any"]; ok {
		json.Unmarshal(v, &checks.ReasonIfAny)
	}
	return checks, nil
}

func assignBool(raw map[string]json.RawMessage, key string, dst *bool) {
	v, ok := raw[key]
	if !ok {
		return
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		*dst = b
	}
}
