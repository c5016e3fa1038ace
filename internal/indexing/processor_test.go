package indexing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docchat-backend/internal/database"
	"docchat-backend/internal/indexing"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"

	"github.com/stretchr/testify/assert"
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

type indexCall struct {
	documentID int64
	text       string
}

type fakeIndexer struct {
	mu    sync.Mutex
	calls []indexCall
	err   error
	done  chan struct{}
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{done: make(chan struct{}, 10)}
}

func (f *fakeIndexer) IndexDocument(ctx context.Context, documentID int64, text string) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, indexCall{documentID: documentID, text: text})
	f.mu.Unlock()

	defer func() { f.done <- struct{}{} }()

	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakeIndexer) received() []indexCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]indexCall(nil), f.calls...)
}

type recordingTask struct {
	queue    string
	payload  []byte
	acked    bool
	nacked   bool
	rejected bool
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { t.acked = true; return nil }
func (t *recordingTask) Nack() error     { t.nacked = true; return nil }
func (t *recordingTask) Reject() error   { t.rejected = true; return nil }

func TestProcessInlineText(t *testing.T) {
	db := createDB(t)
	indexer := newFakeIndexer()
	queue := messaging.NewInMemoryQueue()

	proc := indexing.NewTaskProcessor(db, storage.NewLocalProvider(t.TempDir()), queue, indexer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go proc.Start(ctx)

	require.NoError(t, queue.PublishIndexTask(ctx, messaging.IndexDocumentPayload{DocumentID: 4, Text: "Rent is $900."}))

	select {
	case <-indexer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not processed")
	}

	assert.Equal(t, []indexCall{{documentID: 4, text: "Rent is $900."}}, indexer.received())
	proc.Stop()
}

func TestProcessTextFromStorage(t *testing.T) {
	db := createDB(t)
	indexer := newFakeIndexer()
	provider := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, provider.PutObject(context.Background(), "texts", storage.DocumentTextKey(9), []byte("Stored text.")))

	proc := indexing.NewTaskProcessor(db, provider, messaging.NewInMemoryQueue(), indexer)

	task := &recordingTask{
		queue:   messaging.IndexDocumentQueue,
		payload: []byte(`{"DocumentID": 9, "Bucket": "texts", "Key": "documents/9/text.txt"}`),
	}
	proc.ProcessTask(context.Background(), task)

	assert.True(t, task.acked)
	assert.Equal(t, []indexCall{{documentID: 9, text: "Stored text."}}, indexer.received())
}

func TestProcessMissingObjectMarksDocumentFailed(t *testing.T) {
	db := createDB(t)
	require.NoError(t, db.Create(&database.Document{ID: 3, OwnerID: 1, OriginalFilename: "scan.pdf", IndexStatus: database.IndexQueued}).Error)

	indexer := newFakeIndexer()
	proc := indexing.NewTaskProcessor(db, storage.NewLocalProvider(t.TempDir()), messaging.NewInMemoryQueue(), indexer)

	task := &recordingTask{
		queue:   messaging.IndexDocumentQueue,
		payload: []byte(`{"DocumentID": 3, "Bucket": "texts", "Key": "documents/3/text.txt"}`),
	}
	proc.ProcessTask(context.Background(), task)

	assert.True(t, task.nacked)
	assert.Empty(t, indexer.received())

	var doc database.Document
	require.NoError(t, db.First(&doc, "id = ?", 3).Error)
	assert.Equal(t, database.IndexFailed, doc.IndexStatus)
	assert.Contains(t, doc.IndexError, "object not found")
}

func TestProcessIndexerFailure(t *testing.T) {
	db := createDB(t)
	indexer := newFakeIndexer()
	indexer.err = errors.New("embedding service down")

	proc := indexing.NewTaskProcessor(db, storage.NewLocalProvider(t.TempDir()), messaging.NewInMemoryQueue(), indexer)

	task := &recordingTask{queue: messaging.IndexDocumentQueue, payload: []byte(`{"DocumentID": 1, "Text": "x"}`)}
	proc.ProcessTask(context.Background(), task)

	assert.True(t, task.nacked)
	assert.False(t, task.acked)
}

func TestProcessMalformedAndUnknownTasks(t *testing.T) {
	db := createDB(t)
	indexer := newFakeIndexer()
	proc := indexing.NewTaskProcessor(db, storage.NewLocalProvider(t.TempDir()), messaging.NewInMemoryQueue(), indexer)

	malformed := &recordingTask{queue: messaging.IndexDocumentQueue, payload: []byte(`{not json`)}
	proc.ProcessTask(context.Background(), malformed)
	assert.True(t, malformed.rejected)

	unknown := &recordingTask{queue: "other_queue", payload: []byte(`{}`)}
	proc.ProcessTask(context.Background(), unknown)
	assert.True(t, unknown.rejected)

	empty := &recordingTask{queue: messaging.IndexDocumentQueue, payload: []byte(`{"DocumentID": 2}`)}
	proc.ProcessTask(context.Background(), empty)
	assert.True(t, empty.nacked)

	assert.Empty(t, indexer.received())
}

func TestStartReturnsAfterStop(t *testing.T) {
	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := indexing.NewTaskProcessor(db, nil, queue, newFakeIndexer())

	done := make(chan struct{})
	go func() {
		defer close(done)
		proc.Start(context.Background())
	}()

	proc.Stop()
	proc.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
}
