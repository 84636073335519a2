package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/convrag/models"
	"github/itish2003/convrag/vectorindex"
)

func newTestIndexingService(t *testing.T) (*FileIndexingService, *vectorindex.Memory, *keywordEmbedder) {
	t.Helper()
	idx := vectorindex.NewMemory()
	emb := newKeywordEmbedder("france", "paris", "germany", "berlin")
	chunker, err := NewChunker(DefaultChunkerOptions())
	require.NoError(t, err)
	return NewFileIndexingService(idx, chunker, NewIndexer(idx, emb, IndexerOptions{})), idx, emb
}

func sources(t *testing.T, idx vectorindex.Index) map[string]int {
	t.Helper()
	chunks, err := idx.List(context.Background())
	require.NoError(t, err)
	out := map[string]int{}
	for _, c := range chunks {
		out[c.SourceID]++
	}
	return out
}

func TestIngestDocuments(t *testing.T) {
	svc, _, _ := newTestIndexingService(t)

	res, err := svc.IngestDocuments(context.Background(), []models.Document{
		doc("fr", "The capital of France is Paris."),
		doc("de", "The capital of Germany is Berlin."),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 2, res.Indexed)

	chunks, err := svc.ListChunks(context.Background())
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	_, err = svc.IngestDocuments(context.Background(), []models.Document{{Content: "orphan"}})
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestScanAndIndexDirectory_Sync(t *testing.T) {
	ctx := context.Background()
	svc, idx, emb := newTestIndexingService(t)
	dir := t.TempDir()

	fr := writeFile(t, dir, "france.txt", "The capital of France is Paris.")
	de := writeFile(t, dir, "germany.md", "The capital of Germany is Berlin.")
	writeFile(t, dir, "ignored.go", "package main")

	require.NoError(t, svc.ScanAndIndexDirectory(ctx, dir))
	assert.Equal(t, map[string]int{fr: 1, de: 1}, sources(t, idx))

	chunks, err := idx.List(ctx)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Metadata[models.MetaFileHash])
	}

	calls := emb.Calls()
	require.NoError(t, svc.ScanAndIndexDirectory(ctx, dir))
	assert.Equal(t, calls, emb.Calls(), "unchanged files are not re-embedded")

	writeFile(t, dir, "france.txt", "Paris is in France.\n\nIt is the capital.")
	require.NoError(t, os.Remove(de))
	require.NoError(t, svc.ScanAndIndexDirectory(ctx, dir))

	assert.Equal(t, map[string]int{fr: 1}, sources(t, idx))
	chunks, err = idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "It is the capital.")
}

func TestIngestFile_ReplacesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	svc, idx, _ := newTestIndexingService(t)
	path := writeFile(t, t.TempDir(), "notes.txt", "first version about France")

	_, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)
	writeFile(t, filepath.Dir(path), "notes.txt", "second version about Paris")
	_, err = svc.IngestFile(ctx, path)
	require.NoError(t, err)

	chunks, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "second version about Paris", chunks[0].Content)
}

func TestWatchDirectory_IndexesNewFiles(t *testing.T) {
	svc, idx, _ := newTestIndexingService(t)
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.WatchDirectory(ctx, dir) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	path := writeFile(t, dir, "live.txt", "The capital of France is Paris.")

	assert.Eventually(t, func() bool {
		return sources(t, idx)[path] == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, ok := sources(t, idx)[path]
		return !ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestIngestFile_FailedReindexKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	svc, idx, emb := newTestIndexingService(t)
	path := writeFile(t, t.TempDir(), "a.txt", "The capital of France is Paris.")

	_, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)

	writeFile(t, filepath.Dir(path), "a.txt", "Berlin is the capital of Germany.")
	emb.failOn = "Berlin"
	_, err = svc.IngestFile(ctx, path)
	require.ErrorIs(t, err, ErrNothingIndexed)

	chunks, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "The capital of France is Paris.", chunks[0].Content)

	emb.failOn = ""
	_, err = svc.IngestFile(ctx, path)
	require.NoError(t, err)
	chunks, err = idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Berlin is the capital of Germany.", chunks[0].Content)
}

func TestScanAndIndexDirectory_RetriesPartiallyIndexedFile(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemory()
	emb := newKeywordEmbedder("france", "paris", "germany", "berlin")
	chunker, err := NewChunker(ChunkerOptions{ChunkSize: 40, ChunkOverlap: 0})
	require.NoError(t, err)
	svc := NewFileIndexingService(idx, chunker, NewIndexer(idx, emb, IndexerOptions{}))

	dir := t.TempDir()
	path := writeFile(t, dir, "europe.txt", strings.Join([]string{
		"Paris is the capital of France.",
		"France borders Germany in the east.",
		"Berlin is the capital of Germany.",
		"Germany borders France in the west.",
	}, "\n\n"))

	emb.failOn = "Berlin"
	require.NoError(t, svc.ScanAndIndexDirectory(ctx, dir))
	assert.Equal(t, map[string]int{path: 3}, sources(t, idx))

	emb.failOn = ""
	require.NoError(t, svc.ScanAndIndexDirectory(ctx, dir))
	assert.Equal(t, map[string]int{path: 4}, sources(t, idx))

	calls := emb.Calls()
	require.NoError(t, svc.ScanAndIndexDirectory(ctx, dir))
	assert.Equal(t, calls, emb.Calls(), "fully indexed file is not re-embedded")
}

func TestWatchDirectory_UploadIsEmbeddedOnce(t *testing.T) {
	svc, idx, emb := newTestIndexingService(t)
	files, err := NewFileActions(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = svc.WatchDirectory(ctx, files.DocsDir) }()
	time.Sleep(100 * time.Millisecond)

	path, err := files.SaveFile("upload.txt", strings.NewReader("The capital of France is Paris."))
	require.NoError(t, err)
	_, err = svc.IngestFile(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{path: 1}, sources(t, idx))
	assert.Never(t, func() bool { return emb.Calls() > 1 }, 500*time.Millisecond, 20*time.Millisecond)
}
