package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docchat-backend/internal/database"
	"docchat-backend/internal/utils"

	"github.com/tmc/langchaingo/embeddings"
	"gorm.io/gorm"
)

type IndexerOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	MaxWorkers   int
}

func DefaultIndexerOptions() IndexerOptions {
	return IndexerOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		BatchSize:    32,
		MaxWorkers:   4,
	}
}

// Indexer turns extracted document text into embedded chunks and tracks the
// progress on the document row.
type Indexer struct {
	db       *gorm.DB
	embedder embeddings.Embedder
	writer   ChunkWriter
	opts     IndexerOptions
}

func NewIndexer(db *gorm.DB, embedder embeddings.Embedder, writer ChunkWriter, opts IndexerOptions) *Indexer {
	return &Indexer{db: db, embedder: embedder, writer: writer, opts: opts}
}

type chunkBatch struct {
	start int
	texts []string
}

func (ix *Indexer) IndexDocument(ctx context.Context, documentID int64, text string) (int, error) {
	var doc database.Document
	if err := ix.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("document %d not found", documentID)
		}
		return 0, fmt.Errorf("error loading document %d: %w", documentID, err)
	}

	if err := database.UpdateDocumentIndexStatus(ctx, ix.db, doc.ID, database.IndexRunning); err != nil {
		return 0, fmt.Errorf("error updating index status: %w", err)
	}

	start := time.Now()
	count, err := ix.index(ctx, doc, text)
	if err != nil {
		database.FailDocumentIndex(ctx, ix.db, doc.ID, err)
		return 0, err
	}

	if err := database.CompleteDocumentIndex(ctx, ix.db, doc.ID, count); err != nil {
		return 0, fmt.Errorf("error completing document index: %w", err)
	}

	slog.Info("document indexed", "document_id", doc.ID, "chunks", count, "duration", time.Since(start))
	return count, nil
}

func (ix *Indexer) index(ctx context.Context, doc database.Document, text string) (int, error) {
	texts := ChunkText(text, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	if len(texts) == 0 {
		slog.Warn("no text to index", "document_id", doc.ID)
		return 0, ix.writer.ReplaceChunks(ctx, doc, nil)
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	chunks := make([]EmbeddedChunk, len(texts))
	for i := range texts {
		chunks[i] = EmbeddedChunk{Index: i, Text: texts[i], Vector: vectors[i]}
	}

	if err := ix.writer.ReplaceChunks(ctx, doc, chunks); err != nil {
		return 0, fmt.Errorf("error storing chunks: %w", err)
	}
	return len(chunks), nil
}

func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := max(ix.opts.BatchSize, 1)

	queue := make(chan chunkBatch, (len(texts)+batchSize-1)/batchSize)
	for start := 0; start < len(texts); start += batchSize {
		queue <- chunkBatch{start: start, texts: texts[start:min(start+batchSize, len(texts))]}
	}
	close(queue)

	completed := make(chan utils.CompletedTask[chunkBatch, [][]float32], cap(queue))

	worker := func(batch chunkBatch) ([][]float32, error) {
		vectors, err := ix.embedder.EmbedDocuments(ctx, batch.texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch.texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch.texts))
		}
		return vectors, nil
	}

	utils.RunInPool(worker, queue, completed, ix.opts.MaxWorkers)

	vectors := make([][]float32, len(texts))
	var errs []error
	for task := range completed {
		if task.Error != nil {
			errs = append(errs, fmt.Errorf("chunks %d-%d: %w", task.Input.start, task.Input.start+len(task.Input.texts)-1, task.Error))
			continue
		}
		copy(vectors[task.Input.start:], task.Result)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("error embedding chunks: %w", errors.Join(errs...))
	}
	return vectors, nil
}
