package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github/itish2003/convrag/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	source_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	page       INTEGER,
	span_start INTEGER NOT NULL,
	span_end   INTEGER NOT NULL,
	metadata   TEXT,
	vector     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source_id);
CREATE TABLE IF NOT EXISTS manifest (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLite is a durable single-file index. Vectors are stored as little-endian
// float32 blobs and searched by brute force, which is adequate for the corpus
// sizes a local document assistant handles.
type SQLite struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	manifest Manifest
}

// OpenSQLite opens or creates the index file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite index: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	s := &SQLite{db: db, path: path}
	if s.manifest, err = s.readManifest(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the index file location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Upsert(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := validateEntry(entry, s.manifest); err != nil {
		return err
	}
	meta, err := json.Marshal(entry.Chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for chunk %s: %w", entry.Chunk.ID, err)
	}
	var page sql.NullInt64
	if entry.Chunk.Page != nil {
		page = sql.NullInt64{Int64: int64(*entry.Chunk.Page), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO entries (id, source_id, content, page, span_start, span_end, metadata, vector)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	source_id = excluded.source_id,
	content = excluded.content,
	page = excluded.page,
	span_start = excluded.span_start,
	span_end = excluded.span_end,
	metadata = excluded.metadata,
	vector = excluded.vector`,
		entry.Chunk.ID, entry.Chunk.SourceID, entry.Chunk.Content, page,
		entry.Chunk.Span.Start, entry.Chunk.Span.End, string(meta), encodeVector(entry.Vector))
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", entry.Chunk.ID, err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_id, content, page, span_start, span_end, metadata, vector
FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sqlite index: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		chunk, vec, err := scanEntry(rows, true)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Chunk: chunk, Score: Cosine(vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankHits(hits, k), nil
}

func (s *SQLite) List(ctx context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_id, content, page, span_start, span_end, metadata, NULL
FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sqlite index: %w", err)
	}
	defer rows.Close()

	chunks := []models.Chunk{}
	for rows.Next() {
		chunk, _, err := scanEntry(rows, false)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLite) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", sourceID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sqlite index: %w", err)
	}
	return n, nil
}

func (s *SQLite) Manifest(ctx context.Context) (Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest, nil
}

func (s *SQLite) PinManifest(ctx context.Context, want Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkManifest(s.manifest, want); err != nil {
		return err
	}
	if s.manifest == want {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for key, value := range map[string]string{
		"embedding_model": want.EmbeddingModel,
		"dimension":       strconv.Itoa(want.Dimension),
	} {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO manifest (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.manifest = want
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) readManifest(ctx context.Context) (Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM manifest`)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	defer rows.Close()
	var m Manifest
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Manifest{}, err
		}
		switch key {
		case "embedding_model":
			m.EmbeddingModel = value
		case "dimension":
			m.Dimension, _ = strconv.Atoi(value)
		}
	}
	return m, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(rows rowScanner, withVector bool) (models.Chunk, []float32, error) {
	var (
		chunk models.Chunk
		page  sql.NullInt64
		meta  sql.NullString
		blob  []byte
	)
	err := rows.Scan(&chunk.ID, &chunk.SourceID, &chunk.Content, &page,
		&chunk.Span.Start, &chunk.Span.End, &meta, &blob)
	if err != nil {
		return chunk, nil, fmt.Errorf("failed to read sqlite row: %w", err)
	}
	if page.Valid {
		p := int(page.Int64)
		chunk.Page = &p
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &chunk.Metadata); err != nil {
			return chunk, nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", chunk.ID, err)
		}
	}
	if !withVector {
		return chunk, nil, nil
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return chunk, nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
	}
	return chunk, vec, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("corrupt vector blob")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
