package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github/itish2003/convrag/models"
	"github/itish2003/convrag/vectorindex"
)

// IngestResult summarizes an ingestion. Unchanged is set when the file was
// already fully indexed at its current content and nothing was embedded.
type IngestResult struct {
	Chunks int
	IndexReport
	Unchanged bool
}

// FileIndexingService turns documents and files into indexed chunks and
// keeps a directory in sync with the index.
type FileIndexingService struct {
	index   vectorindex.Index
	chunker *Chunker
	indexer *Indexer

	mu    sync.Mutex
	files map[string]*sync.Mutex
}

// NewFileIndexingService creates a new indexing service.
func NewFileIndexingService(index vectorindex.Index, chunker *Chunker, indexer *Indexer) *FileIndexingService {
	return &FileIndexingService{
		index:   index,
		chunker: chunker,
		indexer: indexer,
		files:   make(map[string]*sync.Mutex),
	}
}

// IngestDocuments chunks and indexes docs.
func (s *FileIndexingService) IngestDocuments(ctx context.Context, docs []models.Document) (IngestResult, error) {
	chunks, err := s.chunker.Split(docs)
	if err != nil {
		return IngestResult{}, err
	}
	report, err := s.indexer.Index(ctx, chunks)
	return IngestResult{Chunks: len(chunks), IndexReport: report}, err
}

// IngestFile brings the index up to date with the current content of path.
// A file already fully indexed at that content is left alone.
func (s *FileIndexingService) IngestFile(ctx context.Context, path string) (IngestResult, error) {
	unlock := s.lockFile(path)
	defer unlock()

	hash, err := calculateFileHash(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("could not hash %s: %w", path, err)
	}
	state, err := s.fileState(ctx, path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("could not get index state of %s: %w", path, err)
	}
	if state.Complete(hash) {
		n := state.expected[hash]
		return IngestResult{Chunks: n, IndexReport: IndexReport{Indexed: n}, Unchanged: true}, nil
	}
	return s.processAndEmbedFile(ctx, path, hash, state)
}

// ListChunks returns every indexed chunk.
func (s *FileIndexingService) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	chunks, err := s.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// RemoveSource drops every chunk of source from the index.
func (s *FileIndexingService) RemoveSource(ctx context.Context, source string) error {
	unlock := s.lockFile(source)
	defer unlock()
	if err := s.index.DeleteBySource(ctx, source); err != nil {
		return fmt.Errorf("failed to delete records for %s: %w", source, err)
	}
	return nil
}

// lockFile serializes work on one path, so an upload and the watcher event
// it causes do not both embed the file.
func (s *FileIndexingService) lockFile(path string) func() {
	s.mu.Lock()
	l, ok := s.files[path]
	if !ok {
		l = &sync.Mutex{}
		s.files[path] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// IndexState is what the index holds for one file: its chunk ids, and per
// content hash how many chunks are present and how many there should be.
type IndexState struct {
	ids      []string
	indexed  map[string]int
	expected map[string]int
}

// Complete reports whether every chunk of the file at hash is indexed.
func (st IndexState) Complete(hash string) bool {
	n := st.indexed[hash]
	return n > 0 && n == st.expected[hash]
}

// WatchDirectory re-indexes supported files of dirPath as they change until
// ctx is done.
func (s *FileIndexingService) WatchDirectory(ctx context.Context, dirPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dirPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dirPath, err)
	}
	slog.Info("watching directory", "component", "watcher", "dir", dirPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "component", "watcher", "error", err)
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down watcher", "component", "watcher")
			return nil
		}
	}
}

func (s *FileIndexingService) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isSupportedFile(event.Name) {
		return
	}
	slog.Debug("watcher event", "component", "watcher", "event", event.String())

	// Editors often save through a temp file and a rename, so Create and
	// Write are handled the same way.
	switch {
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		slog.Info("file modified, syncing", "component", "watcher", "path", event.Name)
		res, err := s.IngestFile(ctx, event.Name)
		if err != nil {
			slog.Error("failed to process file", "component", "watcher", "path", event.Name, "error", err)
			return
		}
		if res.Unchanged {
			slog.Debug("file already indexed", "component", "watcher", "path", event.Name)
		}
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		slog.Info("file removed, dropping from index", "component", "watcher", "path", event.Name)
		if err := s.RemoveSource(ctx, event.Name); err != nil {
			slog.Error("failed to delete records", "component", "watcher", "path", event.Name, "error", err)
		}
	}
}

// ScanAndIndexDirectory syncs the index with dirPath: new and changed files
// are indexed, unchanged ones skipped, and files gone from disk removed.
func (s *FileIndexingService) ScanAndIndexDirectory(ctx context.Context, dirPath string) error {
	slog.Info("starting directory scan", "component", "indexer", "dir", dirPath)

	indexedFiles, err := s.getCurrentIndexState(ctx)
	if err != nil {
		return fmt.Errorf("could not get current index state: %w", err)
	}
	slog.Info("files currently in the index", "component", "indexer", "count", len(indexedFiles))

	localFiles := make(map[string]bool)
	err = filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !isSupportedFile(path) {
			return nil
		}
		localFiles[path] = true

		hash, err := calculateFileHash(path)
		if err != nil {
			slog.Warn("could not hash file", "component", "indexer", "path", path, "error", err)
			return nil
		}
		if indexedFiles[path].Complete(hash) {
			return nil
		}

		slog.Info("indexing new, modified or incomplete file", "component", "indexer", "path", path)
		unlock := s.lockFile(path)
		_, err = s.processAndEmbedFile(ctx, path, hash, indexedFiles[path])
		unlock()
		if err != nil {
			slog.Error("failed to process file", "component", "indexer", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error walking the path %s: %w", dirPath, err)
	}

	for path := range indexedFiles {
		if !localFiles[path] {
			slog.Info("file deleted, removing from index", "component", "indexer", "path", path)
			if err := s.RemoveSource(ctx, path); err != nil {
				slog.Error("failed to delete records", "component", "indexer", "path", path, "error", err)
			}
		}
	}
	slog.Info("directory scan finished", "component", "indexer")
	return nil
}

// processAndEmbedFile indexes the current content of path, then drops the
// chunks of earlier versions. Earlier chunks stay when any new chunk fails,
// so a failed re-index never loses what was searchable before. Callers hold
// the file lock.
func (s *FileIndexingService) processAndEmbedFile(ctx context.Context, path, hash string, prior IndexState) (IngestResult, error) {
	docs, err := ExtractDocuments(ctx, path)
	if err != nil {
		return IngestResult{}, err
	}
	for _, d := range docs {
		d.Metadata[models.MetaFileHash] = hash
	}
	chunks, err := s.chunker.Split(docs)
	if err != nil {
		return IngestResult{}, err
	}
	current := make(map[string]bool, len(chunks))
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any)
		}
		chunks[i].Metadata[models.MetaFileChunks] = len(chunks)
		current[chunks[i].ID] = true
	}

	report, err := s.indexer.Index(ctx, chunks)
	result := IngestResult{Chunks: len(chunks), IndexReport: report}
	if err != nil {
		return result, err
	}
	if len(report.Failed) > 0 {
		slog.Warn("file partially indexed, keeping previous chunks until a full re-index",
			"component", "indexer", "path", path, "failed", len(report.Failed))
		return result, nil
	}

	var stale []string
	for _, id := range prior.ids {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	if err := s.index.Delete(ctx, stale...); err != nil {
		return result, fmt.Errorf("failed to delete old version of %s: %w", path, err)
	}
	slog.Info("indexed file", "component", "indexer", "path", path, "chunks", result.Chunks, "removed", len(stale))
	return result, nil
}

// fileState reads back what the index holds for path.
func (s *FileIndexingService) fileState(ctx context.Context, path string) (IndexState, error) {
	states, err := s.getCurrentIndexState(ctx)
	if err != nil {
		return IndexState{}, err
	}
	return states[path], nil
}

// getCurrentIndexState reads back which files are indexed, at which hashes
// and how completely.
func (s *FileIndexingService) getCurrentIndexState(ctx context.Context) (map[string]IndexState, error) {
	chunks, err := s.index.List(ctx)
	if err != nil {
		return nil, err
	}
	state := make(map[string]IndexState)
	for _, c := range chunks {
		st, ok := state[c.SourceID]
		if !ok {
			st = IndexState{indexed: make(map[string]int), expected: make(map[string]int)}
		}
		st.ids = append(st.ids, c.ID)
		if hash, ok := c.Metadata[models.MetaFileHash].(string); ok {
			st.indexed[hash]++
			st.expected[hash] = metaInt(c.Metadata[models.MetaFileChunks])
		}
		state[c.SourceID] = st
	}
	return state, nil
}

// metaInt reads an integer metadata value. Backends that store metadata as
// JSON hand numbers back as float64.
func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
