package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/edna/internal/config"
	"github.com/kalambet/edna/internal/dataset"
	"github.com/kalambet/edna/internal/engine"
	"github.com/kalambet/edna/internal/ollama"
	"github.com/kalambet/edna/internal/outbox"
	"github.com/kalambet/edna/internal/pipeline"
	"github.com/kalambet/edna/internal/retrieval"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Generate nudge suggestions for active pairs",
	Long: `Generate nudge suggestions for active pairs.

By default this is a dry run: suggestions are computed and printed but
nothing is written. Pass --emit to append them to the suggestions log.

Examples:
  edna suggest --data-dir ./data
  edna suggest --since-days 60 --limit 10
  edna suggest --emit --mark-as-sent
  edna suggest --channel email --emit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceDays, _ := cmd.Flags().GetInt("since-days")
		limit, _ := cmd.Flags().GetInt("limit")
		channel, _ := cmd.Flags().GetString("channel")
		emit, _ := cmd.Flags().GetBool("emit")
		markAsSent, _ := cmd.Flags().GetBool("mark-as-sent")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if markAsSent && !emit {
			return fmt.Errorf("--mark-as-sent requires --emit")
		}

		override := dataset.Channel(channel)
		switch override {
		case "", dataset.ChannelInApp, dataset.ChannelEmail, dataset.ChannelSlack:
		default:
			return fmt.Errorf("unknown channel %q, want one of in_app, email, slack", channel)
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.Paths.DataDir = dataDir
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tables, err := dataset.Load(cfg.Paths.DataDir)
		if err != nil {
			return fmt.Errorf("loading data: %w", err)
		}

		eng := buildEngine(ctx, cfg)
		retriever, closeCache, err := buildRetriever(cfg, eng, tables.Tips)
		if err != nil {
			return err
		}
		defer closeCache()

		sentLog, err := outbox.LoadSentLog(cfg.Paths.SentLogPath)
		if err != nil {
			return fmt.Errorf("loading sent log: %w", err)
		}

		suggester := pipeline.NewSuggester(tables, eng, retriever, sentLog, pipeline.Options{
			SinceDays:       sinceDays,
			Limit:           limit,
			TopK:            cfg.Retrieval.TopK,
			ChannelOverride: override,
			Emit:            emit,
			MarkAsSent:      markAsSent,
			SuggestionsPath: cfg.Paths.SuggestionsPath,
			SentLogPath:     cfg.Paths.SentLogPath,
		}, nil)

		suggestions, err := suggester.Run(ctx)
		if err != nil {
			return err
		}

		if len(suggestions) == 0 {
			printWarning("No suggestions generated")
			return nil
		}

		fmt.Fprintln(os.Stdout, renderSummary(suggestions))
		if emit {
			printSuccess("%d suggestion(s) appended to %s", len(suggestions), cfg.Paths.SuggestionsPath)
			if markAsSent {
				printSuccess("Sent log updated: %s", cfg.Paths.SentLogPath)
			}
		} else {
			printStatus("Dry run", "%d suggestion(s) computed, pass --emit to write", len(suggestions))
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().Int("since-days", 30, "only consider pairs with activity in the last N days (0 = all pairs)")
	suggestCmd.Flags().Int("limit", 0, "maximum pairs to process (0 = no limit)")
	suggestCmd.Flags().String("channel", "", "force delivery channel: in_app, email, or slack")
	suggestCmd.Flags().Bool("emit", false, "append suggestions to the suggestions log")
	suggestCmd.Flags().Bool("mark-as-sent", false, "record emitted suggestions in the sent log (requires --emit)")
	suggestCmd.Flags().String("data-dir", "", "data directory (overrides config)")
}

// buildEngine picks the generation backend from config. An unreachable
// Ollama daemon degrades to the static engine instead of failing; drafting
// must work offline.
func buildEngine(ctx context.Context, cfg config.Config) engine.Engine {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return engine.NewOpenAIEngine(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel)
	case config.ProviderOllama:
		client := ollama.New(cfg.Ollama.BaseURL)
		if !client.IsRunning(ctx) {
			printWarning("Ollama not reachable at %s, using static drafts", cfg.Ollama.BaseURL)
			return engine.NewStaticEngine()
		}
		return engine.NewOllamaEngine(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel)
	default:
		return engine.NewStaticEngine()
	}
}

func buildRetriever(cfg config.Config, eng engine.Engine, tips []dataset.Tip) (*retrieval.TipsRetriever, func(), error) {
	if !cfg.Retrieval.UseEmbeddings {
		return retrieval.NewTipsRetriever(tips, nil, nil), func() {}, nil
	}

	var cache *retrieval.EmbeddingCache
	closeCache := func() {}
	if cfg.Retrieval.CachePath != "" {
		var err error
		cache, err = retrieval.OpenCache(cfg.Retrieval.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening embedding cache: %w", err)
		}
		closeCache = func() { cache.Close() }
	}

	return retrieval.NewTipsRetriever(tips, retrieval.NewEmbedder(eng), cache), closeCache, nil
}
