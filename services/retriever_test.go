package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/convrag/vectorindex"
)

func newTestRetriever(t *testing.T, emb *keywordEmbedder, contents ...string) (*Retriever, *Indexer) {
	t.Helper()
	idx := vectorindex.NewMemory()
	indexer := NewIndexer(idx, emb, IndexerOptions{})
	_, err := indexer.Pin(context.Background())
	require.NoError(t, err)

	for i, c := range contents {
		_, err := indexer.Index(context.Background(), chunksFor(t, doc(string(rune('a'+i)), c)))
		require.NoError(t, err)
	}
	return NewRetriever(indexer, idx), indexer
}

func TestRetriever_OrdersBestFirst(t *testing.T) {
	emb := newKeywordEmbedder("cat", "dog", "fish")
	r, _ := newTestRetriever(t, emb,
		"fish fish fish",
		"cat cat dog",
		"cat cat cat",
	)

	result, err := r.Retrieve(context.Background(), "cat", 3)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "cat cat cat", result[0].Chunk.Content)
	assert.Equal(t, "cat cat dog", result[1].Chunk.Content)
	assert.Equal(t, "fish fish fish", result[2].Chunk.Content)
	for i := 1; i < len(result); i++ {
		assert.GreaterOrEqual(t, result[i-1].Score, result[i].Score)
	}
}

func TestRetriever_TiesKeepInsertionOrder(t *testing.T) {
	emb := newKeywordEmbedder("cat")
	r, _ := newTestRetriever(t, emb, "cat one", "cat two", "cat three")

	result, err := r.Retrieve(context.Background(), "cat", 3)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "cat one", result[0].Chunk.Content)
	assert.Equal(t, "cat two", result[1].Chunk.Content)
	assert.Equal(t, "cat three", result[2].Chunk.Content)
}

func TestRetriever_KBound(t *testing.T) {
	r, _ := newTestRetriever(t, newKeywordEmbedder("a"), "a", "b", "c")

	result, err := r.Retrieve(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Len(t, result, 3)

	result, err = r.Retrieve(context.Background(), "a", 1)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestRetriever_InvalidK(t *testing.T) {
	emb := newKeywordEmbedder("a")
	r, _ := newTestRetriever(t, emb, "a")
	before := emb.Calls()

	_, err := r.Retrieve(context.Background(), "a", 0)
	assert.ErrorIs(t, err, ErrInvalidK)
	assert.Equal(t, before, emb.Calls())
}

func TestRetriever_EmptyIndex(t *testing.T) {
	r, _ := newTestRetriever(t, newKeywordEmbedder("a"))

	result, err := r.Retrieve(context.Background(), "a", 3)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	emb := newKeywordEmbedder("a")
	r, _ := newTestRetriever(t, emb, "a")
	emb.failOn = "broken"

	_, err := r.Retrieve(context.Background(), "broken query", 3)
	var ef *EmbeddingFailure
	assert.ErrorAs(t, err, &ef)
}
