package models

// Metadata keys every ingested document may carry. MetaSource is required.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaFileHash   = "file_hash"
	// MetaFileChunks is the number of chunks the file at MetaFileHash split
	// into. A file counts as indexed only when all of them are present.
	MetaFileChunks = "file_chunks"
)

// Document is one unit of ingestion input: raw text plus the metadata that
// identifies where it came from.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SourceID returns the document's source identifier, or "" when missing.
func (d Document) SourceID() string {
	s, _ := d.Metadata[MetaSource].(string)
	return s
}

// Page returns the page number carried in the metadata, if any.
func (d Document) Page() *int {
	switch v := d.Metadata[MetaPage].(type) {
	case int:
		return &v
	case int64:
		p := int(v)
		return &p
	case float64:
		p := int(v)
		return &p
	}
	return nil
}

// CharSpan is a half-open range of rune offsets into the parent document.
// Start is -1 when the chunk could not be located in its parent.
type CharSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of runes covered by the span.
func (s CharSpan) Len() int {
	if s.Start < 0 {
		return 0
	}
	return s.End - s.Start
}

// Chunk is a bounded segment of a source document. Chunks are created at
// ingestion and never mutated afterwards.
type Chunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	SourceID string         `json:"source_id"`
	Page     *int           `json:"page,omitempty"`
	Span     CharSpan       `json:"char_span"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is an ordered, best-first list of scored chunks.
type RetrievalResult []ScoredChunk

// Chunks returns the chunks without their scores, preserving order.
func (r RetrievalResult) Chunks() []Chunk {
	out := make([]Chunk, len(r))
	for i, sc := range r {
		out[i] = sc.Chunk
	}
	return out
}
