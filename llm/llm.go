// Package llm provides the language model capability used for query
// contextualization and answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github/itish2003/convrag/models"
)

// ErrEmptyResponse is returned when the model produced no candidate.
var ErrEmptyResponse = errors.New("llm: empty response")

// Prompt is one chat completion request: a system instruction, the prior
// turns oldest first, and the new human input.
type Prompt struct {
	System  string
	History []models.Turn
	Input   string
}

// Completer is the language model capability.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
}

// New builds the completer for cfg.
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch cfg.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return NewLangChain(model, cfg.Temperature), nil
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return NewLangChain(model, cfg.Temperature), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// LangChain adapts any langchaingo chat model.
type LangChain struct {
	model       llms.Model
	temperature float64
}

// NewLangChain wraps model.
func NewLangChain(model llms.Model, temperature float64) *LangChain {
	return &LangChain{model: model, temperature: temperature}
}

// Complete sends the prompt as a chat and returns the first choice.
func (l *LangChain) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := l.model.GenerateContent(ctx, Messages(p), llms.WithTemperature(l.temperature))
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Messages renders p as langchaingo chat messages: system, then each turn as
// a human/AI pair, then the input.
func Messages(p Prompt) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2*len(p.History)+2)
	if p.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	for _, turn := range p.History {
		msgs = append(msgs,
			llms.TextParts(llms.ChatMessageTypeHuman, turn.Question),
			llms.TextParts(llms.ChatMessageTypeAI, turn.Answer),
		)
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, p.Input))
}
