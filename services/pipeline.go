package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github/itish2003/convrag/models"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 3

// RAGService is the caller-facing query API.
type RAGService interface {
	Query(ctx context.Context, question string, history *models.ConversationHistory) (*models.AnswerResponse, error)
	RetrieveSimilar(ctx context.Context, query string, k int) (models.RetrievalResult, error)
}

// Pipeline runs one history-aware question through contextualization,
// retrieval and synthesis, in that order. It keeps no state between calls
// and never modifies the history it is given.
type Pipeline struct {
	contextualizer *Contextualizer
	retriever      *Retriever
	synthesizer    *Synthesizer
	topK           int
}

// NewPipeline wires the three stages. topK below 1 means DefaultTopK.
func NewPipeline(c *Contextualizer, r *Retriever, s *Synthesizer, topK int) *Pipeline {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &Pipeline{contextualizer: c, retriever: r, synthesizer: s, topK: topK}
}

// TopK returns the number of chunks retrieved per query.
func (p *Pipeline) TopK() int { return p.topK }

// Query answers question in the context of history. Any failure is returned
// as a *PipelineError naming the stage. Appending the resulting turn to
// history is left to the caller.
func (p *Pipeline) Query(ctx context.Context, question string, history *models.ConversationHistory) (*models.AnswerResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, p.fail(StageContextualize, ErrEmptyQuestion)
	}

	p.enter(StageContextualize, "turns", history.Len())
	standalone, err := p.contextualizer.Contextualize(ctx, question, history)
	if err != nil {
		return nil, p.fail(StageContextualize, err)
	}

	p.enter(StageRetrieve, "standalone_query", standalone)
	chunks, err := p.retriever.Retrieve(ctx, standalone, p.topK)
	if err != nil {
		return nil, p.fail(StageRetrieve, err)
	}

	p.enter(StageSynthesize, "evidence", len(chunks))
	answer, err := p.synthesizer.Synthesize(ctx, standalone, chunks)
	if err != nil {
		return nil, p.fail(StageSynthesize, err)
	}

	p.enter(StageComplete)
	if chunks == nil {
		chunks = models.RetrievalResult{}
	}
	return &models.AnswerResponse{
		Answer:          answer,
		Sources:         chunks,
		StandaloneQuery: standalone,
	}, nil
}

// RetrieveSimilar returns the k closest chunks to query with their scores,
// bypassing contextualization and synthesis.
func (p *Pipeline) RetrieveSimilar(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuestion
	}
	result, err := p.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve similar: %w", err)
	}
	return result, nil
}

func (p *Pipeline) enter(stage Stage, args ...any) {
	slog.Debug("pipeline stage", append([]any{"component", "pipeline", "stage", stage}, args...)...)
}

func (p *Pipeline) fail(stage Stage, err error) error {
	slog.Warn("pipeline failed", "component", "pipeline", "stage", stage, "state", StageFailed, "error", err)
	return &PipelineError{Stage: stage, Err: err}
}
