// Package vectorindex stores (chunk, vector) pairs and answers nearest
// neighbour queries over them.
//
// Every backend must allow concurrent Search calls while serializing writes,
// and a reader must never observe a chunk without its vector. Upsert is
// atomic per entry.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github/itish2003/convrag/models"
)

var (
	// ErrManifestMismatch is returned by PinManifest when the index was built
	// with a different embedding model or dimension.
	ErrManifestMismatch = errors.New("vectorindex: embedding manifest mismatch")
	// ErrDimensionMismatch is returned when a vector does not have the pinned
	// dimension.
	ErrDimensionMismatch = errors.New("vectorindex: vector dimension mismatch")
	// ErrInvalidEntry is returned for entries without an id or a vector.
	ErrInvalidEntry = errors.New("vectorindex: invalid entry")
)

// Entry is one chunk and its embedding.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
}

// Hit is one search result.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

// Manifest pins the embedding model an index was built with.
type Manifest struct {
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
}

// IsZero reports whether nothing has been pinned yet.
func (m Manifest) IsZero() bool { return m.EmbeddingModel == "" && m.Dimension == 0 }

func (m Manifest) String() string {
	return fmt.Sprintf("%s (dim %d)", m.EmbeddingModel, m.Dimension)
}

// Index is the vector index capability.
type Index interface {
	// Upsert inserts the entry or replaces the one with the same chunk id.
	Upsert(ctx context.Context, entry Entry) error
	// Search returns at most k hits, best first. Ties keep insertion order
	// where the backend can tell.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// List returns every indexed chunk in insertion order.
	List(ctx context.Context) ([]models.Chunk, error)
	// DeleteBySource removes every chunk derived from the given source.
	DeleteBySource(ctx context.Context, sourceID string) error
	// Delete removes the chunks with the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)
	// Manifest returns the pinned manifest, zero if none.
	Manifest(ctx context.Context) (Manifest, error)
	// PinManifest records m if nothing is pinned yet and fails with
	// ErrManifestMismatch if a different manifest is already pinned.
	PinManifest(ctx context.Context, m Manifest) error
	Close() error
}

func validateEntry(e Entry, m Manifest) error {
	if e.Chunk.ID == "" || len(e.Vector) == 0 {
		return ErrInvalidEntry
	}
	if m.Dimension > 0 && len(e.Vector) != m.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e.Vector), m.Dimension)
	}
	return nil
}

func checkManifest(stored, want Manifest) error {
	if stored.IsZero() || stored == want {
		return nil
	}
	return fmt.Errorf("%w: index built with %s, configured %s", ErrManifestMismatch, stored, want)
}

// rankHits orders hits best first, keeping the incoming order for equal
// scores, and truncates to k.
func rankHits(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
