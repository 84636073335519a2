package services

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github/itish2003/convrag/models"
)

// Chunking strategies.
const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

// DefaultSeparators are tried in order: paragraph break, line break, space,
// and finally a hard cut anywhere.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("convrag/chunk"))

// ChunkerOptions configures a Chunker. Sizes are counted in runes.
type ChunkerOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	Strategy     string
}

// DefaultChunkerOptions returns 1000-rune chunks overlapping by 200.
func DefaultChunkerOptions() ChunkerOptions {
	return ChunkerOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   DefaultSeparators,
		Strategy:     StrategyWindow,
	}
}

// Chunker splits documents into overlapping chunks.
type Chunker struct {
	opts     ChunkerOptions
	splitter textsplitter.RecursiveCharacter
}

// NewChunker validates opts and builds a chunker.
func NewChunker(opts ChunkerOptions) (*Chunker, error) {
	if opts.ChunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidChunkerOptions, opts.ChunkSize)
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d with chunk size %d", ErrInvalidChunkerOptions, opts.ChunkOverlap, opts.ChunkSize)
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	}
	switch opts.Strategy {
	case "":
		opts.Strategy = StrategyWindow
	case StrategyWindow, StrategyRecursive:
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunkerOptions, opts.Strategy)
	}

	return &Chunker{
		opts: opts,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
			textsplitter.WithSeparators(opts.Separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// Options returns the effective options.
func (c *Chunker) Options() ChunkerOptions { return c.opts }

// Split turns documents into chunks in document order. Every document must
// carry a source id. Blank documents produce no chunks.
func (c *Chunker) Split(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for i, doc := range docs {
		source := doc.SourceID()
		if source == "" {
			return nil, fmt.Errorf("document %d: %w", i, ErrMissingSource)
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}

		var spans []models.CharSpan
		var texts []string
		var err error
		if c.opts.Strategy == StrategyRecursive {
			texts, spans, err = c.splitRecursive(doc.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to split %s: %w", source, err)
			}
		} else {
			texts, spans = c.splitWindow(doc.Content)
		}

		page := doc.Page()
		for j, text := range texts {
			chunks = append(chunks, models.Chunk{
				ID:       chunkID(source, page, spans[j], text),
				Content:  text,
				SourceID: source,
				Page:     page,
				Span:     spans[j],
				Metadata: maps.Clone(doc.Metadata),
			})
		}
		slog.Debug("split document", "component", "chunker", "source", source, "chunks", len(texts))
	}
	return chunks, nil
}

// splitWindow cuts each window of at most ChunkSize runes at the last
// occurrence of the highest-priority separator that still leaves a chunk of
// at least half the size, and starts the next window exactly ChunkOverlap
// runes before that cut.
func (c *Chunker) splitWindow(content string) ([]string, []models.CharSpan) {
	runes := []rune(content)
	size, overlap := c.opts.ChunkSize, c.opts.ChunkOverlap

	var texts []string
	var spans []models.CharSpan
	start := 0
	for {
		if len(runes)-start <= size {
			texts = append(texts, string(runes[start:]))
			spans = append(spans, models.CharSpan{Start: start, End: len(runes)})
			return texts, spans
		}
		end := c.cutPoint(runes, start+max(overlap+1, size/2), start+size)
		texts = append(texts, string(runes[start:end]))
		spans = append(spans, models.CharSpan{Start: start, End: end})
		start = end - overlap
	}
}

// cutPoint returns the end of the chunk, in [minEnd, limit]. The cut falls
// right after the last separator of the highest priority found in range.
func (c *Chunker) cutPoint(runes []rune, minEnd, limit int) int {
	for _, sep := range c.opts.Separators {
		if sep == "" {
			return limit
		}
		sepRunes := []rune(sep)
		for end := limit; end >= minEnd; end-- {
			if endsWith(runes[:end], sepRunes) {
				return end
			}
		}
	}
	return limit
}

func endsWith(runes, suffix []rune) bool {
	if len(suffix) > len(runes) {
		return false
	}
	tail := runes[len(runes)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}

// splitRecursive delegates to the langchaingo recursive splitter and locates
// every piece in the parent by forward search.
func (c *Chunker) splitRecursive(content string) ([]string, []models.CharSpan, error) {
	texts, err := c.splitter.SplitText(content)
	if err != nil {
		return nil, nil, err
	}

	spans := make([]models.CharSpan, len(texts))
	cursor := 0
	for i, text := range texts {
		idx := strings.Index(content[cursor:], text)
		if idx < 0 {
			spans[i] = models.CharSpan{Start: -1, End: -1}
			continue
		}
		byteStart := cursor + idx
		start := utf8.RuneCountInString(content[:byteStart])
		spans[i] = models.CharSpan{Start: start, End: start + utf8.RuneCountInString(text)}

		_, width := utf8.DecodeRuneInString(content[byteStart:])
		if width == 0 {
			width = 1
		}
		cursor = byteStart + width
	}
	return texts, spans, nil
}

func chunkID(source string, page *int, span models.CharSpan, content string) string {
	p := -1
	if page != nil {
		p = *page
	}
	name := fmt.Sprintf("%s|%d|%d|%d|%s", source, p, span.Start, span.End, content)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
