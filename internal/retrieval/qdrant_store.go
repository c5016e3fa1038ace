package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/database"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/tmc/langchaingo/embeddings"
)

const DefaultQdrantCollection = "document_chunks"

var pointNamespace = uuid.MustParse("3b1f4ad2-8c55-4c1e-9a59-6f0f3e1d7c21")

// QdrantStore keeps one point per chunk. Owner and scope fields live in the
// payload and are applied as filters before ranking.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	embedder   embeddings.Embedder
}

func NewQdrantStore(client *qdrant.Client, collection string, embedder embeddings.Embedder) *QdrantStore {
	return &QdrantStore{client: client, collection: collection, embedder: embedder}
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension uint64) error {
	existing, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if slices.Contains(existing, s.collection) {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	slog.Info("created qdrant collection", "collection", s.collection, "dimension", dimension)
	return nil
}

func scopeFilter(userID int64, scope *chat.Scope) *qdrant.Filter {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchInt("owner_id", userID)},
	}
	if scope.IsEmpty() {
		return filter
	}

	if scope.PropertyID != nil {
		filter.Must = append(filter.Must, qdrant.NewMatchInt("property_id", *scope.PropertyID))
	}
	for _, id := range scope.DocumentIDs {
		filter.Should = append(filter.Should, qdrant.NewMatchInt("document_id", id))
	}
	return filter
}

func (s *QdrantStore) SimilaritySearch(ctx context.Context, userID int64, query string, scope *chat.Scope, limit int) ([]chat.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Error("error embedding search query", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: error embedding query: %w", chat.ErrRetrievalUnavailable, err)
	}

	// Over-fetch so the keyword boost can reorder near misses.
	candidates := uint64(min(limit*4, MaxCandidates))
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &candidates,
		Filter:         scopeFilter(userID, scope),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		slog.Error("failed to query qdrant", "collection", s.collection, "error", err)
		return nil, fmt.Errorf("%w: failed to query qdrant: %w", chat.ErrRetrievalUnavailable, err)
	}

	results := make([]chat.Chunk, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}

		text := payload["chunk_text"].GetStringValue()
		score := float64(hit.GetScore()) + KeywordBoost(query, text)
		if score <= MinimumScore {
			continue
		}

		results = append(results, chat.Chunk{
			DocumentID:   payload["document_id"].GetIntegerValue(),
			DocumentName: payload["document_name"].GetStringValue(),
			ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
			Text:         text,
			Score:        score,
		})
	}

	return topChunks(results, limit), nil
}

func topChunks(chunks []chat.Chunk, limit int) []chat.Chunk {
	chunks = chat.SortChunks(chunks)
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}

func pointID(documentID int64, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%d:%d", documentID, chunkIndex)).String()
}

func (s *QdrantStore) ReplaceChunks(ctx context.Context, doc database.Document, chunks []EmbeddedChunk) error {
	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	payloadBase := map[string]any{
		"document_id":   doc.ID,
		"owner_id":      doc.OwnerID,
		"document_name": doc.OriginalFilename,
	}
	if doc.PropertyID != nil {
		payloadBase["property_id"] = *doc.PropertyID
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{"chunk_index": int64(c.Index), "chunk_text": c.Text}
		for k, v := range payloadBase {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(doc.ID, c.Index)),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		slog.Error("failed to upsert chunks", "document_id", doc.ID, "error", err)
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID int64) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatchInt("document_id", documentID)},
				},
			},
		},
	})
	if err != nil {
		slog.Error("failed to delete document points", "document_id", documentID, "error", err)
		return fmt.Errorf("failed to delete document points: %w", err)
	}
	return nil
}
