package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github/itish2003/convrag/config"
	"github/itish2003/convrag/embedding"
	"github/itish2003/convrag/llm"
	"github/itish2003/convrag/services"
	"github/itish2003/convrag/vectorindex"
)

// app holds the wired services shared by every command.
type app struct {
	cfg       *config.AppConfig
	index     vectorindex.Index
	indexer   *services.Indexer
	documents *services.FileIndexingService
	pipeline  *services.Pipeline
}

// newApp connects to the models and the index. The embedding model is
// pinned against the index before anything else runs.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	if err := services.SetPDFLicense(cfg.PDFLicenseKey); err != nil {
		slog.Warn("PDF processing will fail", "error", err)
	}

	embedder, err := embedding.New(ctx, embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, err
	}

	embedTimeout := seconds(cfg.Embedding.TimeoutSecs)
	dim := cfg.Embedding.Dimension
	if dim == 0 {
		probeCtx, cancel := withTimeout(ctx, embedTimeout)
		dim, err = embedding.Probe(probeCtx, embedder)
		cancel()
		if err != nil {
			return nil, &services.EmbeddingFailure{Op: "probe dimension", Err: err}
		}
	}
	manifest := vectorindex.Manifest{EmbeddingModel: embedder.Name(), Dimension: dim}

	index, err := openIndex(ctx, cfg.Index, manifest)
	if err != nil {
		return nil, err
	}

	indexer := services.NewIndexer(index, embedder, services.IndexerOptions{
		Dimension:   dim,
		Timeout:     embedTimeout,
		Concurrency: cfg.Embedding.Concurrency,
	})
	if _, err := indexer.Pin(ctx); err != nil {
		index.Close()
		return nil, err
	}

	chunker, err := services.NewChunker(services.ChunkerOptions{
		ChunkSize:    cfg.Chunker.Size,
		ChunkOverlap: cfg.Chunker.Overlap,
		Strategy:     cfg.Chunker.Strategy,
	})
	if err != nil {
		index.Close()
		return nil, err
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		index.Close()
		return nil, err
	}

	llmTimeout := seconds(cfg.LLM.TimeoutSecs)
	pipeline := services.NewPipeline(
		services.NewContextualizer(completer, llmTimeout),
		services.NewRetriever(indexer, index),
		services.NewSynthesizer(completer, services.AnswerPolicy{
			MaxSentences:   cfg.Synthesis.MaxSentences,
			DeclineMessage: cfg.Synthesis.DeclineMessage,
		}, llmTimeout),
		cfg.Retrieval.TopK,
	)

	slog.Info("ready",
		"embedding", manifest.String(),
		"llm", cfg.LLM.Provider+"/"+cfg.LLM.Model,
		"index", cfg.Index.Backend,
	)
	return &app{
		cfg:       cfg,
		index:     index,
		indexer:   indexer,
		documents: services.NewFileIndexingService(index, chunker, indexer),
		pipeline:  pipeline,
	}, nil
}

func (a *app) retryPolicy() services.RetryPolicy {
	return services.RetryPolicy{
		Retries: a.cfg.Query.Retries,
		Backoff: time.Duration(a.cfg.Query.RetryBackoffMillis) * time.Millisecond,
	}
}

func (a *app) summary(ctx context.Context) string {
	n, err := a.index.Count(ctx)
	if err != nil {
		return "index unavailable: " + err.Error()
	}
	return fmt.Sprintf("%d chunks indexed, embeddings %s, answers by %s/%s",
		n, a.indexer.ModelName(), a.cfg.LLM.Provider, a.cfg.LLM.Model)
}

func (a *app) Close() error { return a.index.Close() }

func openIndex(ctx context.Context, cfg config.IndexConfig, manifest vectorindex.Manifest) (vectorindex.Index, error) {
	switch cfg.Backend {
	case "memory":
		return vectorindex.NewMemory(), nil
	case "sqlite":
		return vectorindex.OpenSQLite(ctx, cfg.Path)
	case "chroma":
		return vectorindex.OpenChroma(ctx, cfg.ChromaURL, cfg.Collection, manifest)
	default:
		return nil, &config.ConfigurationError{Field: "index.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
