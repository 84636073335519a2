package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github/itish2003/convrag/models"
	"github/itish2003/convrag/vectorindex"
)

// QueryEmbedder embeds query text with the model the index was built with.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the chunks closest to a query.
type Retriever struct {
	embedder QueryEmbedder
	index    vectorindex.Index
}

// NewRetriever creates a retriever. embedder must be the one the index was
// built with; Indexer satisfies QueryEmbedder.
func NewRetriever(embedder QueryEmbedder, index vectorindex.Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve returns at most k chunks, best first. Asking for more than the
// index holds returns everything. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	result := make(models.RetrievalResult, len(hits))
	for n, hit := range hits {
		result[n] = models.ScoredChunk{Chunk: hit.Chunk, Score: hit.Score}
	}
	slog.Debug("retrieved chunks", "component", "retriever", "k", k, "results", len(result))
	return result, nil
}
