// Package pipeline orchestrates the suggestion batch: for each active pair,
// classify, retrieve tips, draft, evaluate, and plan delivery, emitting at
// most one suggestion per pair per run. Processing is sequential; a per-pair
// failure is logged and skipped, never fatal to the batch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/edna/internal/classify"
	"github.com/kalambet/edna/internal/composer"
	"github.com/kalambet/edna/internal/dataset"
	"github.com/kalambet/edna/internal/engine"
	"github.com/kalambet/edna/internal/evaluator"
	"github.com/kalambet/edna/internal/features"
	"github.com/kalambet/edna/internal/outbox"
	"github.com/kalambet/edna/internal/planner"
	"github.com/kalambet/edna/internal/retrieval"
)

// callTimeout bounds each external generation/evaluation/retrieval call so a
// hung provider produces a local failure instead of stalling the batch.
const callTimeout = 30 * time.Second

// defaultTopK is how many tips are retrieved and cited per suggestion when
// Options leaves it unset.
const defaultTopK = 3

// Options configures one suggestion batch.
type Options struct {
	SinceDays       int             // activity window for pair filtering; <= 0 means all pairs
	Limit           int             // maximum pairs processed; <= 0 means no limit
	TopK            int             // tips cited per suggestion; <= 0 uses defaultTopK
	ChannelOverride dataset.Channel // empty means planner rules apply
	Emit            bool            // write the suggestions log; false is a dry run
	MarkAsSent      bool            // append to the sent log after writing suggestions
	SuggestionsPath string
	SentLogPath     string
}

// Suggester runs the batch over loaded tables.
type Suggester struct {
	tables    *dataset.Tables
	eng       engine.Engine
	retriever *retrieval.TipsRetriever
	sentLog   *outbox.SentLog
	opts      Options
	now       func() time.Time
}

// NewSuggester wires a batch runner. now may be nil for wall-clock time.
func NewSuggester(
	tables *dataset.Tables,
	eng engine.Engine,
	retriever *retrieval.TipsRetriever,
	sentLog *outbox.SentLog,
	opts Options,
	now func() time.Time,
) *Suggester {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	return &Suggester{
		tables:    tables,
		eng:       eng,
		retriever: retriever,
		sentLog:   sentLog,
		opts:      opts,
		now:       now,
	}
}

// Run processes active pairs sequentially, then appends all suggestions to
// the suggestions log in one open-write-close, and to the sent log when
// marking as sent. The returned slice holds every emitted suggestion.
func (s *Suggester) Run(ctx context.Context) ([]outbox.Suggestion, error) {
	now := s.now()

	eval := evaluator.New(s.eng, func(pairID, classification string) bool {
		return s.sentLog.IsDuplicate(pairID, classification, now)
	})

	pairs := s.activePairs(now)
	if s.opts.Limit > 0 && len(pairs) > s.opts.Limit {
		pairs = pairs[:s.opts.Limit]
	}
	slog.Info("processing pairs", "count", len(pairs), "since_days", s.opts.SinceDays)

	var suggestions []outbox.Suggestion
	for _, pairID := range pairs {
		if err := ctx.Err(); err != nil {
			return suggestions, err
		}
		sugg, ok := s.processPair(ctx, eval, pairID, now)
		if ok {
			suggestions = append(suggestions, sugg)
		}
	}

	if len(suggestions) == 0 {
		slog.Info("no suggestions generated")
		return nil, nil
	}

	if !s.opts.Emit {
		slog.Info("dry run, suggestions not written", "count", len(suggestions))
		return suggestions, nil
	}

	if err := outbox.AppendSuggestions(s.opts.SuggestionsPath, suggestions); err != nil {
		return suggestions, fmt.Errorf("writing suggestions: %w", err)
	}
	slog.Info("suggestions written", "count", len(suggestions), "path", s.opts.SuggestionsPath)

	if s.opts.MarkAsSent {
		if err := outbox.MarkSent(s.opts.SentLogPath, suggestions, now); err != nil {
			return suggestions, fmt.Errorf("updating sent log: %w", err)
		}
		slog.Info("sent log updated", "path", s.opts.SentLogPath)
	}

	return suggestions, nil
}

// processPair runs the per-pair stages. Returns false when the pair yields
// no suggestion, whether by classification outcome or by a caught failure.
func (s *Suggester) processPair(ctx context.Context, eval *evaluator.Evaluator, pairID string, now time.Time) (outbox.Suggestion, bool) {
	f, ok := features.Compute(pairID, s.tables, now)
	if !ok {
		slog.Warn("skipping unknown pair", "pair_id", pairID)
		return outbox.Suggestion{}, false
	}

	aux := &classify.Aux{
		Checkins: s.tables.PairCheckins(pairID),
		Goals:    s.tables.PairGoals(pairID),
		Now:      now,
	}
	result := classify.Run(f, aux)
	if result.Classification == "" {
		return outbox.Suggestion{}, false
	}
	label := string(result.Classification)

	retrieveCtx, cancel := context.WithTimeout(ctx, callTimeout)
	ranked := s.retriever.Search(retrieveCtx, label, result.Explanations, s.opts.TopK)
	cancel()

	var tipTexts []string
	for _, c := range ranked.Citations {
		if tip, ok := s.tables.TipByID(c.TipID); ok {
			tipTexts = append(tipTexts, tip.Text)
		}
	}

	pairing := s.tables.Pairings[pairID]
	var menteeName, menteeZone string
	if mentee, ok := s.tables.Users[pairing.MenteeID]; ok {
		menteeName = mentee.FirstName
		menteeZone = mentee.Timezone
	}

	draftCtx, cancel := context.WithTimeout(ctx, callTimeout)
	draft, err := s.eng.Chat(draftCtx, composer.DraftPrompt(composer.DraftInput{
		FirstName:      menteeName,
		CadenceDays:    f.CadenceDays,
		Classification: label,
		Explanations:   result.Explanations,
		TipTexts:       tipTexts,
	}), nil)
	cancel()
	if err != nil {
		slog.Error("draft generation failed, skipping pair", "pair_id", pairID, "error", err)
		return outbox.Suggestion{}, false
	}

	evalCtx, cancel := context.WithTimeout(ctx, callTimeout)
	checks := eval.Evaluate(evalCtx, draft, pairID, label, result.Explanations)
	cancel()

	plan := planner.Build(label, s.tables.PairMessages(pairID), menteeZone, s.opts.ChannelOverride, now)

	slog.Info("suggestion generated", "pair_id", pairID, "classification", label, "retrieval_mode", ranked.Mode)

	return outbox.Suggestion{
		SuggestionID:           uuid.NewString(),
		PairID:                 pairID,
		Classification:         label,
		Confidence:             result.Confidence,
		Explanations:           result.Explanations,
		SuggestedChannel:       string(plan.Channel),
		SuggestedSendTimeLocal: plan.SendTimeLocal,
		Timezone:               plan.Timezone,
		NudgeDraft:             draft,
		Citations:              ranked.Citations,
		RetrievalMode:          string(ranked.Mode),
		SafetyChecks:           checks,
	}, true
}

// activePairs returns pair ids with any activity (messages, check-ins, goal
// updates, or pairing start) within the window, sorted for deterministic
// processing order.
func (s *Suggester) activePairs(now time.Time) []string {
	if s.opts.SinceDays <= 0 {
		ids := make([]string, 0, len(s.tables.Pairings))
		for id := range s.tables.Pairings {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}

	cutoff := now.AddDate(0, 0, -s.opts.SinceDays)
	active := make(map[string]struct{})

	for _, m := range s.tables.Messages {
		if m.Timestamp.After(cutoff) {
			active[m.PairID] = struct{}{}
		}
	}
	for _, c := range s.tables.Checkins {
		if c.Timestamp.After(cutoff) {
			active[c.PairID] = struct{}{}
		}
	}
	for _, g := range s.tables.Goals {
		if g.UpdatedAt.After(cutoff) {
			active[g.PairID] = struct{}{}
		}
	}
	for id, p := range s.tables.Pairings {
		if p.StartedAt.After(cutoff) {
			active[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
