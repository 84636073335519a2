package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github/itish2003/convrag/config"
	"github/itish2003/convrag/embedding"
	"github/itish2003/convrag/models"
	"github/itish2003/convrag/vectorindex"
)

// IndexerOptions tunes an Indexer.
type IndexerOptions struct {
	// Dimension is the expected vector length. Zero means probe the model.
	Dimension   int
	Timeout     time.Duration
	Concurrency int
}

// ChunkFailure records one chunk that could not be indexed.
type ChunkFailure struct {
	ChunkID  string
	SourceID string
	Err      error
}

// IndexReport summarizes one Index call.
type IndexReport struct {
	Indexed int
	Failed  []ChunkFailure
}

// Indexer embeds chunks and writes them to the vector index. Every chunk is
// handled on its own so one failure never touches the others.
type Indexer struct {
	index    vectorindex.Index
	embedder embedding.Model
	opts     IndexerOptions

	mu        sync.RWMutex
	dimension int
}

// NewIndexer creates an indexer over index using embedder.
func NewIndexer(index vectorindex.Index, embedder embedding.Model, opts IndexerOptions) *Indexer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Indexer{index: index, embedder: embedder, opts: opts, dimension: opts.Dimension}
}

// Pin records the embedding model and its dimension in the index, or checks
// them against what the index was built with. A mismatch is a configuration
// error.
func (i *Indexer) Pin(ctx context.Context) (vectorindex.Manifest, error) {
	dim := i.Dimension()
	if dim == 0 {
		probeCtx, cancel := i.withTimeout(ctx)
		defer cancel()
		probed, err := embedding.Probe(probeCtx, i.embedder)
		if err != nil {
			return vectorindex.Manifest{}, &EmbeddingFailure{Op: "probe dimension", Err: err}
		}
		dim = probed
	}

	want := vectorindex.Manifest{EmbeddingModel: i.embedder.Name(), Dimension: dim}
	if err := i.index.PinManifest(ctx, want); err != nil {
		if errors.Is(err, vectorindex.ErrManifestMismatch) {
			return vectorindex.Manifest{}, &config.ConfigurationError{
				Field:  "embedding.model",
				Reason: "the index was built with a different embedding model; rebuild it or restore the original model",
				Err:    fmt.Errorf("%w: %w", ErrEmbeddingModelMismatch, err),
			}
		}
		return vectorindex.Manifest{}, fmt.Errorf("failed to pin embedding manifest: %w", err)
	}

	i.mu.Lock()
	i.dimension = dim
	i.mu.Unlock()
	slog.Info("embedding model pinned", "component", "indexer", "manifest", want.String())
	return want, nil
}

// Dimension returns the pinned vector dimension, zero if unknown.
func (i *Indexer) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dimension
}

// ModelName returns the embedding model name.
func (i *Indexer) ModelName() string { return i.embedder.Name() }

// Index embeds and upserts every chunk. Failed chunks are listed in the
// report. It returns an error only when ctx is done or nothing was indexed.
func (i *Indexer) Index(ctx context.Context, chunks []models.Chunk) (IndexReport, error) {
	if len(chunks) == 0 {
		return IndexReport{}, nil
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		indexed  int
		failures = make(map[int]ChunkFailure)
	)
	g.SetLimit(i.opts.Concurrency)

	for n, chunk := range chunks {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := i.indexOne(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[n] = ChunkFailure{ChunkID: chunk.ID, SourceID: chunk.SourceID, Err: err}
				slog.Warn("chunk not indexed", "component", "indexer", "chunk", chunk.ID, "source", chunk.SourceID, "error", err)
				return nil
			}
			indexed++
			return nil
		})
	}
	_ = g.Wait()

	report := IndexReport{Indexed: indexed, Failed: sortedFailures(failures)}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if indexed == 0 && len(report.Failed) > 0 {
		return report, fmt.Errorf("%w: %w", ErrNothingIndexed, report.Failed[0].Err)
	}
	slog.Info("indexed chunks", "component", "indexer", "indexed", indexed, "failed", len(report.Failed))
	return report, nil
}

func (i *Indexer) indexOne(ctx context.Context, chunk models.Chunk) error {
	embedCtx, cancel := i.withTimeout(ctx)
	vectors, err := i.embedder.EmbedDocuments(embedCtx, []string{chunk.Content})
	cancel()
	if err != nil {
		return &EmbeddingFailure{Op: "embed chunk", Err: err}
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return &EmbeddingFailure{Op: "embed chunk", Err: errors.New("model returned no vector")}
	}
	if err := i.checkDimension(vectors[0]); err != nil {
		return &EmbeddingFailure{Op: "embed chunk", Err: err}
	}

	if err := i.index.Upsert(ctx, vectorindex.Entry{Chunk: chunk, Vector: vectors[0]}); err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

// EmbedQuery embeds text with the pinned model.
func (i *Indexer) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := i.withTimeout(ctx)
	defer cancel()

	vector, err := i.embedder.EmbedQuery(embedCtx, text)
	if err != nil {
		return nil, &EmbeddingFailure{Op: "embed query", Err: err}
	}
	if len(vector) == 0 {
		return nil, &EmbeddingFailure{Op: "embed query", Err: errors.New("model returned no vector")}
	}
	if err := i.checkDimension(vector); err != nil {
		return nil, &EmbeddingFailure{Op: "embed query", Err: err}
	}
	return vector, nil
}

func (i *Indexer) checkDimension(v []float32) error {
	if dim := i.Dimension(); dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", vectorindex.ErrDimensionMismatch, len(v), dim)
	}
	return nil
}

func (i *Indexer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.opts.Timeout)
}

func sortedFailures(byPos map[int]ChunkFailure) []ChunkFailure {
	if len(byPos) == 0 {
		return nil
	}
	positions := make([]int, 0, len(byPos))
	for pos := range byPos {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	out := make([]ChunkFailure, len(positions))
	for n, pos := range positions {
		out[n] = byPos[pos]
	}
	return out
}
