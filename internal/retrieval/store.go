package retrieval

import (
	"context"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/database"
)

// MaxCandidates bounds how many points are fetched from qdrant for one query.
const MaxCandidates = 200

type EmbeddedChunk struct {
	Index  int
	Text   string
	Vector []float32
}

// ChunkWriter persists the embedded chunks of a document. ReplaceChunks
// removes every chunk previously stored for the document.
type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, doc database.Document, chunks []EmbeddedChunk) error

	DeleteDocument(ctx context.Context, documentID int64) error
}

// Store is implemented by SQLStore and QdrantStore.
type Store interface {
	chat.DocumentStore
	ChunkWriter
}
