package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github/itish2003/convrag/models"
)

// Reserved chunk metadata keys stored alongside each Chroma record.
const (
	keySourceID  = "source_id"
	keyPage      = "page"
	keySpanStart = "span_start"
	keySpanEnd   = "span_end"

	keyEmbeddingModel = "embedding_model"
	keyDimension      = "embedding_dimension"
)

// Chroma stores the index in a Chroma collection using cosine distance.
// Chroma does not expose insertion order, so equal scores come back in the
// server's order.
type Chroma struct {
	client     chromago.Client
	collection chromago.Collection
	manifest   Manifest
}

// OpenChroma connects to the Chroma server at baseURL and gets or creates
// the named collection. want is recorded in the collection metadata when the
// collection is created.
func OpenChroma(ctx context.Context, baseURL, name string, want Manifest) (*Chroma, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	slog.Info("getting or creating collection", "component", "vectorindex", "collection", name)
	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "history-aware RAG collection"),
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewStringAttribute(keyEmbeddingModel, want.EmbeddingModel),
				chromago.NewIntAttribute(keyDimension, int64(want.Dimension)),
			),
		),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get or create collection %q: %w", name, err)
	}

	c := &Chroma{client: client, collection: collection}
	if meta := toMap(collection.Metadata()); meta != nil {
		c.manifest.EmbeddingModel, _ = meta[keyEmbeddingModel].(string)
		c.manifest.Dimension = intValue(meta[keyDimension])
	}
	return c, nil
}

func (c *Chroma) Upsert(ctx context.Context, entry Entry) error {
	if err := validateEntry(entry, c.manifest); err != nil {
		return err
	}
	meta, err := chunkMetadata(entry.Chunk)
	if err != nil {
		return err
	}
	err = c.collection.Upsert(ctx,
		chromago.WithIDs(chromago.DocumentID(entry.Chunk.ID)),
		chromago.WithTexts(entry.Chunk.Content),
		chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(entry.Vector)),
		chromago.WithMetadatas(meta),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s to chromadb: %w", entry.Chunk.ID, err)
	}
	return nil
}

func (c *Chroma) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	idGroups := results.GetIDGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		var content string
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			content = docGroups[0][i].ContentString()
		}
		var meta map[string]any
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			meta = toMap(metaGroups[0][i])
		}
		score := 0.0
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			// cosine distance in [0, 2]
			score = 1 - float64(distGroups[0][i])
		}
		hits = append(hits, Hit{Chunk: chunkFromMetadata(string(id), content, meta), Score: score})
	}
	return rankHits(hits, k), nil
}

func (c *Chroma) List(ctx context.Context) ([]models.Chunk, error) {
	results, err := c.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents from chromadb: %w", err)
	}
	ids := results.GetIDs()
	documents := results.GetDocuments()
	metadatas := results.GetMetadatas()

	chunks := make([]models.Chunk, 0, len(ids))
	for i, id := range ids {
		var content string
		if i < len(documents) {
			content = documents[i].ContentString()
		}
		var meta map[string]any
		if i < len(metadatas) {
			meta = toMap(metadatas[i])
		}
		chunks = append(chunks, chunkFromMetadata(string(id), content, meta))
	}
	return chunks, nil
}

func (c *Chroma) DeleteBySource(ctx context.Context, sourceID string) error {
	where := chromago.EqString(keySourceID, sourceID)
	if err := c.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("failed to delete chunks of %s from chromadb: %w", sourceID, err)
	}
	return nil
}

func (c *Chroma) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	docIDs := make([]chromago.DocumentID, len(ids))
	for i, id := range ids {
		docIDs[i] = chromago.DocumentID(id)
	}
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(docIDs...)); err != nil {
		return fmt.Errorf("failed to delete %d chunks from chromadb: %w", len(ids), err)
	}
	return nil
}

func (c *Chroma) Count(ctx context.Context) (int, error) {
	n, err := c.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(n), nil
}

func (c *Chroma) Manifest(ctx context.Context) (Manifest, error) {
	return c.manifest, nil
}

// PinManifest compares want with the manifest recorded at collection
// creation. Collections created elsewhere carry no manifest; for those the
// pin only lives for the lifetime of this process.
func (c *Chroma) PinManifest(ctx context.Context, want Manifest) error {
	if err := checkManifest(c.manifest, want); err != nil {
		return err
	}
	if c.manifest.IsZero() {
		slog.Warn("collection has no embedding manifest, pinning in memory only",
			"component", "vectorindex", "collection", c.collection.Name())
	}
	c.manifest = want
	return nil
}

func (c *Chroma) Close() error { return c.client.Close() }

func chunkMetadata(chunk models.Chunk) (chromago.DocumentMetadata, error) {
	attrs := []*chromago.MetaAttribute{
		chromago.NewStringAttribute(keySourceID, chunk.SourceID),
		chromago.NewIntAttribute(keySpanStart, int64(chunk.Span.Start)),
		chromago.NewIntAttribute(keySpanEnd, int64(chunk.Span.End)),
	}
	if chunk.Page != nil {
		attrs = append(attrs, chromago.NewIntAttribute(keyPage, int64(*chunk.Page)))
	}
	for key, value := range chunk.Metadata {
		if isReservedKey(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(key, v))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(key, v))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(key, int64(v)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(key, v))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(key, v))
		case nil:
		default:
			attrs = append(attrs, chromago.NewStringAttribute(key, fmt.Sprint(v)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...), nil
}

func chunkFromMetadata(id, content string, meta map[string]any) models.Chunk {
	chunk := models.Chunk{ID: id, Content: content}
	if meta == nil {
		chunk.Span.Start = -1
		return chunk
	}
	chunk.SourceID, _ = meta[keySourceID].(string)
	chunk.Span.Start = intValue(meta[keySpanStart])
	chunk.Span.End = intValue(meta[keySpanEnd])
	if v, ok := meta[keyPage]; ok {
		p := intValue(v)
		chunk.Page = &p
	}
	for key, value := range meta {
		if isReservedKey(key) {
			continue
		}
		if chunk.Metadata == nil {
			chunk.Metadata = make(map[string]any)
		}
		chunk.Metadata[key] = value
	}
	return chunk
}

func isReservedKey(key string) bool {
	switch key {
	case keySourceID, keyPage, keySpanStart, keySpanEnd:
		return true
	}
	return false
}

// toMap converts Chroma metadata to a plain map. The metadata types have no
// public accessor for all values, so they go through their JSON encoding.
func toMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		slog.Warn("could not marshal chroma metadata", "component", "vectorindex", "error", err)
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(jsonBytes, &out); err != nil {
		slog.Warn("could not unmarshal chroma metadata", "component", "vectorindex", "error", err)
		return nil
	}
	return out
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
