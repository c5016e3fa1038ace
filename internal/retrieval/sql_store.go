package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/database"

	"github.com/tmc/langchaingo/embeddings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SQLStore keeps chunk embeddings as JSON next to the documents and ranks
// them in process.
type SQLStore struct {
	db       *gorm.DB
	embedder embeddings.Embedder
}

func NewSQLStore(db *gorm.DB, embedder embeddings.Embedder) *SQLStore {
	return &SQLStore{db: db, embedder: embedder}
}

type chunkCandidate struct {
	DocumentID       int64
	ChunkIndex       int
	ChunkText        string
	Embedding        datatypes.JSON
	OriginalFilename string
}

func (s *SQLStore) SimilaritySearch(ctx context.Context, userID int64, query string, scope *chat.Scope, limit int) ([]chat.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Error("error embedding search query", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: error embedding query: %w", chat.ErrRetrievalUnavailable, err)
	}

	q := s.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.document_id, document_chunks.chunk_index, document_chunks.chunk_text, document_chunks.embedding, documents.original_filename").
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.owner_id = ? AND document_chunks.embedding IS NOT NULL", userID)

	if !scope.IsEmpty() {
		if scope.PropertyID != nil {
			q = q.Where("documents.property_id = ?", *scope.PropertyID)
		}
		if len(scope.DocumentIDs) > 0 {
			q = q.Where("documents.id IN ?", scope.DocumentIDs)
		}
	}

	rows, err := q.Order("document_chunks.document_id, document_chunks.chunk_index").Rows()
	if err != nil {
		slog.Error("error loading candidate chunks", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: error loading chunks: %w", chat.ErrRetrievalUnavailable, err)
	}
	defer rows.Close()

	// Every chunk in scope is scored; only the running top results are kept.
	scanned := 0
	results := make([]chat.Chunk, 0, 2*limit)
	for rows.Next() {
		var c chunkCandidate
		if err := s.db.ScanRows(rows, &c); err != nil {
			slog.Error("error scanning candidate chunk", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: error scanning chunk: %w", chat.ErrRetrievalUnavailable, err)
		}
		scanned++

		var vector []float32
		if err := json.Unmarshal(c.Embedding, &vector); err != nil {
			slog.Warn("skipping chunk with malformed embedding", "document_id", c.DocumentID, "chunk_index", c.ChunkIndex, "error", err)
			continue
		}

		score := Score(query, c.ChunkText, queryVector, vector)
		if score <= MinimumScore {
			continue
		}

		results = append(results, chat.Chunk{
			DocumentID:   c.DocumentID,
			DocumentName: c.OriginalFilename,
			ChunkIndex:   c.ChunkIndex,
			Text:         c.ChunkText,
			Score:        score,
		})
		if len(results) >= 2*limit {
			results = topChunks(results, limit)
		}
	}
	if err := rows.Err(); err != nil {
		slog.Error("error reading candidate chunks", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: error reading chunks: %w", chat.ErrRetrievalUnavailable, err)
	}

	results = topChunks(results, limit)

	slog.Debug("similarity search completed", "user_id", userID, "scanned", scanned, "results", len(results))

	return results, nil
}

func (s *SQLStore) ReplaceChunks(ctx context.Context, doc database.Document, chunks []EmbeddedChunk) error {
	rows := make([]database.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		data, err := json.Marshal(c.Vector)
		if err != nil {
			return fmt.Errorf("error encoding embedding for chunk %d: %w", c.Index, err)
		}
		rows = append(rows, database.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			ChunkText:  c.Text,
			Embedding:  datatypes.JSON(data),
		})
	}

	defer database.LockWrites(s.db)()

	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Where("document_id = ?", doc.ID).Delete(&database.DocumentChunk{}).Error; err != nil {
			slog.Error("error deleting old document chunks", "document_id", doc.ID, "error", err)
			return fmt.Errorf("error deleting old chunks: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}

		if err := txn.CreateInBatches(&rows, 100).Error; err != nil {
			slog.Error("error saving document chunks", "document_id", doc.ID, "error", err)
			return fmt.Errorf("error saving chunks: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) DeleteDocument(ctx context.Context, documentID int64) error {
	defer database.LockWrites(s.db)()

	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&database.DocumentChunk{}).Error; err != nil {
		slog.Error("error deleting document chunks", "document_id", documentID, "error", err)
		return fmt.Errorf("error deleting chunks: %w", err)
	}
	return nil
}
