// Package embedding provides the embedding model capability: a named
// langchaingo embeddings.Embedder. The name is what an index pins.
package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model is an embedding model with a stable identity.
type Model interface {
	embeddings.Embedder
	// Name identifies the model, including its provider.
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

type named struct {
	embeddings.Embedder
	name string
}

func (n named) Name() string { return n.name }

// Wrap names an existing embedder.
func Wrap(name string, e embeddings.Embedder) Model {
	return named{Embedder: e, name: name}
}

// New builds the embedding model for cfg.
func New(ctx context.Context, cfg Config) (Model, error) {
	name := cfg.Provider + "/" + cfg.Model
	switch cfg.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return fromClient(name, client)
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithEmbeddingModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return fromClient(name, client)
	case "gemini":
		e, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return Wrap(name, e), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func fromClient(name string, client embeddings.EmbedderClient) (Model, error) {
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder %s: %w", name, err)
	}
	return Wrap(name, e), nil
}

// Probe embeds a fixed string to learn the model's output dimension.
func Probe(ctx context.Context, m Model) (int, error) {
	vec, err := m.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension of %s: %w", m.Name(), err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("embedding model %s returned an empty vector", m.Name())
	}
	return len(vec), nil
}
