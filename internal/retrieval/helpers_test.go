package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"docchat-backend/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

func createDocument(t *testing.T, db *gorm.DB, id, owner int64, property *int64, filename string) database.Document {
	doc := database.Document{ID: id, OwnerID: owner, PropertyID: property, OriginalFilename: filename}
	require.NoError(t, db.Create(&doc).Error)
	return doc
}

var vocabulary = []string{"rent", "invoice", "pet", "parking", "water"}

// wordEmbedder maps text to word counts over a small vocabulary.
type wordEmbedder struct {
	err       error
	failOn    string
	docCalls  atomic.Int32
	lastBatch atomic.Int32
}

func embedWords(text string) []float32 {
	vector := make([]float32, len(vocabulary))
	lower := strings.ToLower(text)
	for i, word := range vocabulary {
		vector[i] = float32(strings.Count(lower, word))
	}
	return vector
}

func (e *wordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.docCalls.Add(1)
	e.lastBatch.Store(int32(len(texts)))
	if e.err != nil {
		return nil, e.err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if e.failOn != "" && strings.Contains(text, e.failOn) {
			return nil, errors.New("embedding backend rejected input")
		}
		vectors = append(vectors, embedWords(text))
	}
	return vectors, nil
}

func (e *wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return embedWords(text), nil
}
