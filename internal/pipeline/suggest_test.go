package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/edna/internal/dataset"
	"github.com/kalambet/edna/internal/engine"
	"github.com/kalambet/edna/internal/outbox"
	"github.com/kalambet/edna/internal/retrieval"
)

var now = time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

// testTables has one dormant pair (p001, last message 20 days back against a
// 10-day cadence) and one healthy pair (p002, messaged yesterday).
func testTables() *dataset.Tables {
	return &dataset.Tables{
		Users: map[string]dataset.User{
			"u1": {UserID: "u1", Role: dataset.RoleMentor, FirstName: "Sam", Timezone: "Australia/Sydney"},
			"u2": {UserID: "u2", Role: dataset.RoleMentee, FirstName: "Priya", Timezone: "Australia/Melbourne"},
			"u3": {UserID: "u3", Role: dataset.RoleMentor, FirstName: "Alex"},
			"u4": {UserID: "u4", Role: dataset.RoleMentee, FirstName: "Jordan"},
		},
		Pairings: map[string]dataset.Pairing{
			"p001": {PairID: "p001", MentorID: "u1", MenteeID: "u2", ProgrammeID: "prog1", StartedAt: now.AddDate(0, 0, -90)},
			"p002": {PairID: "p002", MentorID: "u3", MenteeID: "u4", ProgrammeID: "prog1", StartedAt: now.AddDate(0, 0, -90)},
		},
		Messages: []dataset.Message{
			{PairID: "p001", Timestamp: now.AddDate(0, 0, -20), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelEmail, Text: "checking in"},
			{PairID: "p002", Timestamp: now.AddDate(0, 0, -1), AuthorRole: dataset.RoleMentee, Channel: dataset.ChannelInApp, Text: "going well"},
			{PairID: "p002", Timestamp: now.AddDate(0, 0, -2), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelInApp, Text: "how is it going"},
		},
		Programmes: map[string]dataset.Programme{
			"prog1": {ProgrammeID: "prog1", Name: "Spring", CadenceDays: 10},
		},
		Tips: []dataset.Tip{
			{TipID: "t1", Situation: "dormant", Text: "Reach out with a short friendly message to restart the conversation"},
			{TipID: "t2", Situation: "blocked_goal", Text: "Break the blocked goal into smaller steps"},
		},
	}
}

func newTestSuggester(t *testing.T, tables *dataset.Tables, opts Options) *Suggester {
	t.Helper()
	dir := t.TempDir()
	if opts.SuggestionsPath == "" {
		opts.SuggestionsPath = filepath.Join(dir, "suggestions.jsonl")
	}
	if opts.SentLogPath == "" {
		opts.SentLogPath = filepath.Join(dir, "sent_log.jsonl")
	}
	sentLog, err := outbox.LoadSentLog(opts.SentLogPath)
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.NewStaticEngine()
	retriever := retrieval.NewTipsRetriever(tables.Tips, nil, nil)
	return NewSuggester(tables, eng, retriever, sentLog, opts, fixedNow)
}

func TestRun_DormantPairGetsSuggestion(t *testing.T) {
	s := newTestSuggester(t, testTables(), Options{SinceDays: 30, Emit: true})

	suggestions, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1 (only the dormant pair)", len(suggestions))
	}

	got := suggestions[0]
	if got.PairID != "p001" {
		t.Errorf("PairID = %q, want p001", got.PairID)
	}
	if got.Classification != "dormant" {
		t.Errorf("Classification = %q, want dormant", got.Classification)
	}
	if got.Confidence < 0.6 || got.Confidence > 0.9 {
		t.Errorf("Confidence = %v outside [0.6, 0.9]", got.Confidence)
	}
	if got.SuggestionID == "" {
		t.Error("SuggestionID is empty")
	}
	if !strings.Contains(got.NudgeDraft, "Priya") {
		t.Errorf("draft should mention the mentee, got %q", got.NudgeDraft)
	}
	if got.Timezone != "Australia/Melbourne" {
		t.Errorf("Timezone = %q, want the mentee's zone", got.Timezone)
	}
	if got.RetrievalMode != "lexical" {
		t.Errorf("RetrievalMode = %q, want lexical with the static engine", got.RetrievalMode)
	}
	if len(got.Citations) == 0 || got.Citations[0].TipID != "t1" {
		t.Errorf("citations = %+v, want the dormant tip first", got.Citations)
	}
	if !got.SafetyChecks.ToneSupportive || !got.SafetyChecks.NotDuplicateLast7d {
		t.Errorf("static evaluation should pass, got %+v", got.SafetyChecks)
	}

	written, err := outbox.ReadSuggestions(s.opts.SuggestionsPath)
	if err != nil {
		t.Fatalf("reading suggestions log: %v", err)
	}
	if len(written) != 1 {
		t.Errorf("log holds %d suggestions, want 1", len(written))
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	s := newTestSuggester(t, testTables(), Options{SinceDays: 30})

	suggestions, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(suggestions))
	}
	if _, err := os.Stat(s.opts.SuggestionsPath); !os.IsNotExist(err) {
		t.Error("dry run must not create the suggestions log")
	}
}

func TestRun_MarkAsSentBlocksRepeat(t *testing.T) {
	tables := testTables()
	dir := t.TempDir()
	opts := Options{
		SinceDays:       30,
		Emit:            true,
		MarkAsSent:      true,
		SuggestionsPath: filepath.Join(dir, "suggestions.jsonl"),
		SentLogPath:     filepath.Join(dir, "sent_log.jsonl"),
	}

	first := newTestSuggester(t, tables, opts)
	if _, err := first.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newTestSuggester(t, tables, opts)
	suggestions, err := second.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("second run yielded %d suggestions, want 1", len(suggestions))
	}
	if suggestions[0].SafetyChecks.NotDuplicateLast7d {
		t.Error("second run within the window should fail the duplicate check")
	}
	if suggestions[0].SafetyChecks.ReasonIfAny == "" {
		t.Error("duplicate override should carry a reason")
	}
}

func TestRun_LimitCapsPairs(t *testing.T) {
	tables := testTables()
	// Make p002 dormant too so both would normally emit.
	tables.Messages = []dataset.Message{
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -20), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelEmail},
		{PairID: "p002", Timestamp: now.AddDate(0, 0, -25), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelEmail},
	}

	s := newTestSuggester(t, tables, Options{SinceDays: 0, Limit: 1})
	suggestions, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1 under limit", len(suggestions))
	}
	// Deterministic order means the lexically first pair wins.
	if suggestions[0].PairID != "p001" {
		t.Errorf("PairID = %q, want p001", suggestions[0].PairID)
	}
}

func TestRun_SinceDaysFiltersInactivePairs(t *testing.T) {
	tables := testTables()
	s := newTestSuggester(t, tables, Options{SinceDays: 5})

	// Only p002 has activity within 5 days, and p002 is healthy.
	suggestions, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(suggestions) != 0 {
		t.Errorf("got %d suggestions, want 0", len(suggestions))
	}
}

func TestRun_ChannelOverride(t *testing.T) {
	s := newTestSuggester(t, testTables(), Options{SinceDays: 30, ChannelOverride: dataset.ChannelSlack})

	suggestions, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatal("expected one suggestion")
	}
	if suggestions[0].SuggestedChannel != "slack" {
		t.Errorf("SuggestedChannel = %q, want forced slack", suggestions[0].SuggestedChannel)
	}
}

func TestActivePairs_SortedAndFiltered(t *testing.T) {
	tables := testTables()
	s := newTestSuggester(t, tables, Options{SinceDays: 0})

	all := s.activePairs(now)
	if len(all) != 2 || all[0] != "p001" || all[1] != "p002" {
		t.Errorf("activePairs(all) = %v, want sorted [p001 p002]", all)
	}

	s.opts.SinceDays = 5
	recent := s.activePairs(now)
	if len(recent) != 1 || recent[0] != "p002" {
		t.Errorf("activePairs(5d) = %v, want [p002]", recent)
	}
}
