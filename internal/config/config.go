// Package config loads pipeline configuration from an optional YAML file,
// environment variables, and built-in defaults, in that rising order of
// precedence for env over file. Validation is fail-fast: a bad provider or
// a missing credential aborts before any data is read.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Provider selects the generation backend.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

type Config struct {
	Provider  string
	OpenAI    OpenAIConfig
	Ollama    OllamaConfig
	Retrieval RetrievalConfig
	Paths     PathsConfig
}

type OpenAIConfig struct {
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type RetrievalConfig struct {
	TopK          int
	UseEmbeddings bool
	CachePath     string // sqlite embedding cache; empty disables caching
}

type PathsConfig struct {
	DataDir         string
	SuggestionsPath string
	SentLogPath     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderStatic)
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.chat_model", "mistral-nemo")
	v.SetDefault("ollama.embed_model", "nomic-embed-text")
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.use_embeddings", true)
	v.SetDefault("retrieval.cache_path", "")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.suggestions", "out/suggestions.jsonl")
	v.SetDefault("paths.sent_log", "out/sent_log.jsonl")
}

// Load reads configuration. path names an explicit YAML file and is an
// error when unreadable; an empty path searches the working directory for
// edna.yaml and treats absence as defaults-only. EDNA_* environment
// variables override file values, e.g. EDNA_OPENAI_API_KEY or
// EDNA_PROVIDER.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EDNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("edna")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := Config{
		Provider: strings.ToLower(v.GetString("provider")),
		OpenAI: OpenAIConfig{
			APIKey:     v.GetString("openai.api_key"),
			ChatModel:  v.GetString("openai.chat_model"),
			EmbedModel: v.GetString("openai.embed_model"),
		},
		Ollama: OllamaConfig{
			BaseURL:    v.GetString("ollama.base_url"),
			ChatModel:  v.GetString("ollama.chat_model"),
			EmbedModel: v.GetString("ollama.embed_model"),
		},
		Retrieval: RetrievalConfig{
			TopK:          v.GetInt("retrieval.top_k"),
			UseEmbeddings: v.GetBool("retrieval.use_embeddings"),
			CachePath:     v.GetString("retrieval.cache_path"),
		},
		Paths: PathsConfig{
			DataDir:         v.GetString("paths.data_dir"),
			SuggestionsPath: v.GetString("paths.suggestions"),
			SentLogPath:     v.GetString("paths.sent_log"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("missing required config: OpenAI API key. Set it via EDNA_OPENAI_API_KEY or openai.api_key in the config file")
		}
	case ProviderOllama, ProviderStatic:
	default:
		return fmt.Errorf("unknown provider %q, want one of openai, ollama, static", c.Provider)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	return nil
}
