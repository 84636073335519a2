package config

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a setting that prevents the application from
// starting. It is fatal: no query should be attempted.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var (
	providers = map[string]bool{"ollama": true, "openai": true, "gemini": true}
	backends  = map[string]bool{"memory": true, "sqlite": true, "chroma": true}
)

// Validate checks the configuration and returns every problem found, joined.
// Each joined error is a *ConfigurationError.
func (c *AppConfig) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: reason})
	}

	switch c.Chunker.Strategy {
	case "window", "recursive":
	default:
		bad("chunker.strategy", fmt.Sprintf("unknown strategy %q", c.Chunker.Strategy))
	}
	if c.Chunker.Size < 1 {
		bad("chunker.size", "must be at least 1")
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		bad("chunker.overlap", "must be in [0, size)")
	}

	if !providers[c.Embedding.Provider] {
		bad("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	} else if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		bad("embedding.api_key", "required for provider "+c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		bad("embedding.dimension", "must not be negative")
	}

	if !providers[c.LLM.Provider] {
		bad("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	} else if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		bad("llm.api_key", "required for provider "+c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		bad("llm.temperature", "must be in [0, 2]")
	}

	switch {
	case !backends[c.Index.Backend]:
		bad("index.backend", fmt.Sprintf("unknown backend %q", c.Index.Backend))
	case c.Index.Backend == "sqlite" && c.Index.Path == "":
		bad("index.path", "required for the sqlite backend")
	case c.Index.Backend == "chroma" && c.Index.ChromaURL == "":
		bad("index.chroma_url", "required for the chroma backend")
	}

	if c.Retrieval.TopK < 1 {
		bad("retrieval.top_k", "must be at least 1")
	}
	if c.Synthesis.MaxSentences < 1 {
		bad("synthesis.max_sentences", "must be at least 1")
	}
	if c.Query.Retries < 0 {
		bad("query.retries", "must not be negative")
	}
	return errors.Join(errs...)
}
