// Package outbox owns the run outputs: the append-only suggestions log, the
// optional sent log, and duplicate lookups against the latter. Both logs are
// newline-delimited JSON, opened, written and closed once per batch.
package outbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kalambet/edna/internal/evaluator"
	"github.com/kalambet/edna/internal/retrieval"
)

// Suggestion is one emitted nudge record. Immutable once written; at most
// one per pair per invocation.
type Suggestion struct {
	SuggestionID           string                  `json:"suggestion_id"`
	PairID                 string                  `json:"pair_id"`
	Classification         string                  `json:"classification"`
	Confidence             float64                 `json:"confidence"`
	Explanations           []string                `json:"explanations"`
	SuggestedChannel       string                  `json:"suggested_channel"`
	SuggestedSendTimeLocal string                  `json:"suggested_send_time_local"`
	Timezone               string                  `json:"timezone"`
	NudgeDraft             string                  `json:"nudge_draft"`
	Citations              []retrieval.Citation    `json:"citations"`
	RetrievalMode          string                  `json:"retrieval_mode"`
	SafetyChecks           evaluator.SafetyChecks  `json:"safety_checks"`
}

// SentRecord is one entry in the sent log.
type SentRecord struct {
	PairID         string    `json:"pair_id"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}

// AppendSuggestions appends all suggestions to the JSONL log at path,
// creating parent directories as needed.
func AppendSuggestions(path string, suggestions []Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, s := range suggestions {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("writing suggestion for %s: %w", s.PairID, err)
		}
	}
	return nil
}

// ReadSuggestions parses the suggestions log at path. Unparseable lines are
// skipped with a warning.
func ReadSuggestions(path string) ([]Suggestion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening suggestions log: %w", err)
	}
	defer f.Close()

	var out []Suggestion
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var s Suggestion
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			slog.Warn("skipping unparseable suggestion line", "path", path, "line", line, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, scanner.Err()
}

// SentLog is the loaded sent history for duplicate checks.
type SentLog struct {
	records []SentRecord
}

// LoadSentLog reads the sent log at path. A missing file yields an empty
// log; unparseable lines are skipped with a warning.
func LoadSentLog(path string) (*SentLog, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SentLog{}, nil
		}
		return nil, fmt.Errorf("opening sent log: %w", err)
	}
	defer f.Close()

	log := &SentLog{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r SentRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			slog.Warn("skipping unparseable sent log line", "path", path, "line", line, "error", err)
			continue
		}
		log.records = append(log.records, r)
	}
	return log, scanner.Err()
}

// duplicateWindowDays is how far back a sent record blocks a repeat nudge.
const duplicateWindowDays = 7

// IsDuplicate reports whether a record for the same pair and classification
// exists within the last seven days before now.
func (l *SentLog) IsDuplicate(pairID, classification string, now time.Time) bool {
	cutoff := now.AddDate(0, 0, -duplicateWindowDays)
	for _, r := range l.records {
		if r.PairID == pairID && r.Classification == classification && r.Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

// MarkSent appends one sent record per suggestion, stamped with now.
func MarkSent(path string, suggestions []Suggestion, now time.Time) error {
	if len(suggestions) == 0 {
		return nil
	}
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, s := range suggestions {
		r := SentRecord{
			PairID:         s.PairID,
			Classification: s.Classification,
			Timestamp:      now.UTC(),
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("writing sent record for %s: %w", s.PairID, err)
		}
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s for append: %w", path, err)
	}
	return f, nil
}
