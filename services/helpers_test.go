package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github/itish2003/convrag/llm"
	"github/itish2003/convrag/models"
)

// keywordEmbedder maps text to keyword counts over a fixed vocabulary plus a
// constant bias dimension, which gives exact, predictable rankings.
type keywordEmbedder struct {
	name  string
	vocab []string
	// failOn makes every text containing it fail to embed.
	failOn string

	mu    sync.Mutex
	calls int
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{name: "test/keywords", vocab: vocab}
}

func (k *keywordEmbedder) Name() string { return k.name }

func (k *keywordEmbedder) vector(text string) ([]float32, error) {
	k.mu.Lock()
	k.calls++
	k.mu.Unlock()
	if k.failOn != "" && strings.Contains(text, k.failOn) {
		return nil, errors.New("embedding quota exceeded")
	}
	lower := strings.ToLower(text)
	v := make([]float32, len(k.vocab)+1)
	for i, word := range k.vocab {
		v[i] = float32(strings.Count(lower, word))
	}
	v[len(k.vocab)] = 0.1
	return v, nil
}

func (k *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := k.vector(t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (k *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return k.vector(text)
}

func (k *keywordEmbedder) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

// stubCompleter answers with respond and records every prompt.
type stubCompleter struct {
	respond func(p llm.Prompt) (string, error)

	mu      sync.Mutex
	prompts []llm.Prompt
}

func (s *stubCompleter) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.respond(p)
}

func (s *stubCompleter) Prompts() []llm.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Prompt, len(s.prompts))
	copy(out, s.prompts)
	return out
}

func fixed(answer string) *stubCompleter {
	return &stubCompleter{respond: func(llm.Prompt) (string, error) { return answer, nil }}
}

func failing(err error) *stubCompleter {
	return &stubCompleter{respond: func(llm.Prompt) (string, error) { return "", err }}
}

func scored(contents ...string) models.RetrievalResult {
	out := make(models.RetrievalResult, len(contents))
	for i, c := range contents {
		out[i] = models.ScoredChunk{Chunk: models.Chunk{ID: c, Content: c, SourceID: "s"}, Score: 1 - float64(i)/10}
	}
	return out
}
