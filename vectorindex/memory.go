package vectorindex

import (
	"context"
	"sync"

	"github/itish2003/convrag/models"
)

// Memory is an in-process index using brute-force cosine similarity. It is
// not durable and is meant for tests and one-shot runs.
type Memory struct {
	mu       sync.RWMutex
	entries  []Entry
	byID     map[string]int
	manifest Manifest
}

// NewMemory returns an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

func (m *Memory) Upsert(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := validateEntry(entry, m.manifest); err != nil {
		return err
	}
	vec := make([]float32, len(entry.Vector))
	copy(vec, entry.Vector)
	entry.Vector = vec
	if i, ok := m.byID[entry.Chunk.ID]; ok {
		m.entries[i] = entry
		return nil
	}
	m.byID[entry.Chunk.ID] = len(m.entries)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := make([]Hit, len(m.entries))
	for i, e := range m.entries {
		hits[i] = Hit{Chunk: e.Chunk, Score: Cosine(vector, e.Vector)}
	}
	return rankHits(hits, k), nil
}

func (m *Memory) List(ctx context.Context) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Chunk, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Chunk
	}
	return out, nil
}

func (m *Memory) DeleteBySource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeWhere(func(e Entry) bool { return e.Chunk.SourceID == sourceID })
	return nil
}

// removeWhere drops matching entries and rebuilds the id lookup. Callers
// hold the write lock.
func (m *Memory) removeWhere(match func(Entry) bool) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.byID = make(map[string]int, len(kept))
	for i, e := range kept {
		m.byID[e.Chunk.ID] = i
	}
}

func (m *Memory) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeWhere(func(e Entry) bool { return drop[e.Chunk.ID] })
	return nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Manifest(ctx context.Context) (Manifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.manifest, nil
}

func (m *Memory) PinManifest(ctx context.Context, want Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkManifest(m.manifest, want); err != nil {
		return err
	}
	m.manifest = want
	return nil
}

func (m *Memory) Close() error { return nil }
