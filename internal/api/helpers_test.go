package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/database"

	"github.com/go-chi/chi/v5"
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

type staticDocumentStore struct {
	chunks []chat.Chunk
	err    error
}

func (s *staticDocumentStore) SimilaritySearch(ctx context.Context, userID int64, query string, scope *chat.Scope, limit int) ([]chat.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

type scriptedGenerator struct {
	mu      sync.Mutex
	text    string
	refs    []int64
	err     error
	bundles []*chat.ContextBundle
}

func (g *scriptedGenerator) Name() string {
	return "scripted"
}

func (g *scriptedGenerator) Generate(ctx context.Context, bundle *chat.ContextBundle) (*chat.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bundles = append(g.bundles, bundle)
	if g.err != nil {
		return nil, g.err
	}
	return &chat.Generation{Text: g.text, ReferencedDocumentIDs: g.refs, Backend: g.Name()}, nil
}

func (g *scriptedGenerator) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func doRequest(t *testing.T, router chi.Router, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}
