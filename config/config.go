// Package config loads the application configuration from a YAML file, a
// .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Strategy string `yaml:"strategy"`
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

// EmbeddingConfig selects the embedding model. The model name is pinned in
// the index on first use.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	Dimension   int    `yaml:"dimension,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Concurrency int    `yaml:"concurrency"`
}

// LLMConfig selects the language model used for contextualization and
// answer synthesis.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path,omitempty"`
	ChromaURL  string `yaml:"chroma_url,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// RetrievalConfig configures top-K retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SynthesisConfig holds the answer policy.
type SynthesisConfig struct {
	MaxSentences   int    `yaml:"max_sentences"`
	DeclineMessage string `yaml:"decline_message"`
}

// QueryConfig holds the caller-side retry policy. The pipeline itself never
// retries.
type QueryConfig struct {
	Retries            int `yaml:"retries"`
	RetryBackoffMillis int `yaml:"retry_backoff_millis"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`

	// Conversations idle longer than SessionTTLMins are forgotten, and past
	// MaxSessions the least recently used one is.
	SessionTTLMins int `yaml:"session_ttl_mins"`
	MaxSessions    int `yaml:"max_sessions"`
}

// WatchConfig configures directory ingestion.
type WatchConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	LogLevel      string          `yaml:"log_level"`
	PDFLicenseKey string          `yaml:"-"`
	Chunker       ChunkerConfig   `yaml:"chunker"`
	Embedding     EmbeddingConfig `yaml:"embedding"`
	LLM           LLMConfig       `yaml:"llm"`
	Index         IndexConfig     `yaml:"index"`
	Retrieval     RetrievalConfig `yaml:"retrieval"`
	Synthesis     SynthesisConfig `yaml:"synthesis"`
	Query         QueryConfig     `yaml:"query"`
	Server        ServerConfig    `yaml:"server"`
	Watch         WatchConfig     `yaml:"watch"`
}

// DefaultDeclineMessage is returned when no evidence was retrieved.
const DefaultDeclineMessage = "I don't know. The indexed documents do not contain information to answer this question."

// Load reads the .env file (if any) and the YAML file at path. An empty path
// or a missing file yields the defaults. Environment variables override the
// file. The result is not validated; call Validate before use.
func Load(path string) (*AppConfig, error) {
	// .env is optional; real environment variables still apply
	_ = godotenv.Load()

	cfg := baseConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the configuration used when nothing else is specified:
// local Ollama models and a SQLite index in the working directory.
func Default() *AppConfig {
	cfg := baseConfig()
	applyDefaults(cfg)
	return cfg
}

// baseConfig holds every default except the model names, which depend on
// the provider finally selected.
func baseConfig() *AppConfig {
	return &AppConfig{
		LogLevel: "INFO",
		Chunker:  ChunkerConfig{Strategy: "window", Size: 1000, Overlap: 200},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			TimeoutSecs: 30,
			Concurrency: 4,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Temperature: 0.7,
			TimeoutSecs: 60,
		},
		Index:     IndexConfig{Backend: "sqlite", Path: "./vector_store/index.db", Collection: "book-rag"},
		Retrieval: RetrievalConfig{TopK: 3},
		Synthesis: SynthesisConfig{MaxSentences: 3, DeclineMessage: DefaultDeclineMessage},
		Query:     QueryConfig{Retries: 0, RetryBackoffMillis: 500},
		Server:    ServerConfig{Port: 8080, CORSOrigin: "*", SessionTTLMins: 60, MaxSessions: 10000},
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("CONVRAG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("CHROMA_URL"); v != "" {
		cfg.Index.ChromaURL = v
	}
	if v := os.Getenv("WATCH_DIR"); v != "" {
		cfg.Watch.Dir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	cfg.PDFLicenseKey = os.Getenv("UNIDOC_LICENSE_KEY")

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if cfg.Embedding.Provider == "ollama" && cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = host
		}
		if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = host
		}
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = apiKeyFromEnv(cfg.Embedding.Provider)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKeyFromEnv(cfg.LLM.Provider)
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

func applyDefaults(cfg *AppConfig) {
	d := baseConfig()
	if cfg.Chunker.Strategy == "" {
		cfg.Chunker.Strategy = d.Chunker.Strategy
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = d.Chunker.Size
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = d.Embedding.TimeoutSecs
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = d.Embedding.Concurrency
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaultEmbeddingModel(cfg.Embedding.Provider)
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultChatModel(cfg.LLM.Provider)
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = d.LLM.TimeoutSecs
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = d.Index.Collection
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = d.Retrieval.TopK
	}
	if cfg.Synthesis.MaxSentences == 0 {
		cfg.Synthesis.MaxSentences = d.Synthesis.MaxSentences
	}
	if cfg.Synthesis.DeclineMessage == "" {
		cfg.Synthesis.DeclineMessage = d.Synthesis.DeclineMessage
	}
	if cfg.Query.RetryBackoffMillis == 0 {
		cfg.Query.RetryBackoffMillis = d.Query.RetryBackoffMillis
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.SessionTTLMins == 0 {
		cfg.Server.SessionTTLMins = d.Server.SessionTTLMins
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = d.Server.MaxSessions
	}
}

func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "openai":
		return "text-embedding-3-small"
	case "gemini":
		return "text-embedding-004"
	}
	return "nomic-embed-text:v1.5"
}

func defaultChatModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-2.5-flash"
	}
	return "llama3.2"
}
