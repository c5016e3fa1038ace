package chat_test

import (
	"context"
	"sync"
	"testing"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// Every connection to file::memory: is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

type searchCall struct {
	userID int64
	query  string
	scope  *chat.Scope
	limit  int
}

type fakeDocumentStore struct {
	mu     sync.Mutex
	chunks []chat.Chunk
	err    error
	block  bool
	calls  []searchCall
}

func (s *fakeDocumentStore) SimilaritySearch(ctx context.Context, userID int64, query string, scope *chat.Scope, limit int) ([]chat.Chunk, error) {
	s.mu.Lock()
	s.calls = append(s.calls, searchCall{userID: userID, query: query, scope: scope, limit: limit})
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

func (s *fakeDocumentStore) lastCall() searchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type fakeGenerator struct {
	mu       sync.Mutex
	name     string
	text     string
	refs     []int64
	err      error
	onCall   func(ctx context.Context)
	received []*chat.ContextBundle
}

func (g *fakeGenerator) Name() string {
	return g.name
}

func (g *fakeGenerator) Generate(ctx context.Context, bundle *chat.ContextBundle) (*chat.Generation, error) {
	g.mu.Lock()
	g.received = append(g.received, bundle)
	g.mu.Unlock()

	if g.onCall != nil {
		g.onCall(ctx)
	}
	if g.err != nil {
		return nil, g.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &chat.Generation{Text: g.text, ReferencedDocumentIDs: g.refs, Backend: g.name}, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.received)
}
