package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"docchat-backend/internal/api"
	"docchat-backend/internal/database"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/retrieval"
	"docchat-backend/internal/storage"
	pkgapi "docchat-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type failingPublisher struct{}

func (failingPublisher) PublishIndexTask(ctx context.Context, payload messaging.IndexDocumentPayload) error {
	return errors.New("broker unavailable")
}

func (failingPublisher) Close() {}

type documentFixture struct {
	db       *gorm.DB
	router   chi.Router
	queue    *messaging.InMemoryQueue
	provider *storage.LocalProvider
}

func newDocumentFixture(t *testing.T, publisher messaging.Publisher) *documentFixture {
	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)
	if publisher == nil {
		publisher = queue
	}

	provider := storage.NewLocalProvider(t.TempDir())

	router := chi.NewRouter()
	api.NewBackendService(db, publisher, provider, "texts", retrieval.NewSQLStore(db, nil)).AddRoutes(router)

	return &documentFixture{db: db, router: router, queue: queue, provider: provider}
}

func (f *documentFixture) createDocument(t *testing.T, userID int64, filename string) pkgapi.Document {
	rec := doRequest(t, f.router, http.MethodPost, "/documents/", userID, pkgapi.CreateDocumentRequest{Filename: filename})
	expectStatus(t, rec, http.StatusOK)
	return decode[pkgapi.Document](t, rec)
}

func TestHealth(t *testing.T) {
	f := newDocumentFixture(t, nil)

	rec := doRequest(t, f.router, http.MethodGet, "/health", 0, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestDocumentLifecycle(t *testing.T) {
	f := newDocumentFixture(t, nil)

	doc := f.createDocument(t, 1, "lease.pdf")
	assert.Equal(t, "lease.pdf", doc.OriginalFilename)
	assert.Equal(t, "lease.pdf", doc.Title)
	assert.Equal(t, database.IndexPending, doc.IndexStatus)

	f.createDocument(t, 2, "other.pdf")

	rec := doRequest(t, f.router, http.MethodGet, "/documents/", 1, nil)
	expectStatus(t, rec, http.StatusOK)
	assert.Len(t, decode[pkgapi.GetDocumentsResponse](t, rec).Documents, 1)

	path := "/documents/" + jsonNumber(doc.ID)

	rec = doRequest(t, f.router, http.MethodGet, path, 2, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = doRequest(t, f.router, http.MethodDelete, path, 1, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = doRequest(t, f.router, http.MethodGet, path, 1, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestCreateDocumentRequiresFilename(t *testing.T) {
	f := newDocumentFixture(t, nil)

	rec := doRequest(t, f.router, http.MethodPost, "/documents/", 1, pkgapi.CreateDocumentRequest{})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestIndexDocumentStoresTextAndQueuesTask(t *testing.T) {
	f := newDocumentFixture(t, nil)
	doc := f.createDocument(t, 1, "lease.pdf")

	rec := doRequest(t, f.router, http.MethodPost, "/documents/"+jsonNumber(doc.ID)+"/index", 1, pkgapi.IndexDocumentRequest{Text: "Rent is due monthly."})
	expectStatus(t, rec, http.StatusOK)
	assert.Equal(t, database.IndexQueued, decode[pkgapi.IndexDocumentResponse](t, rec).IndexStatus)

	task := <-f.queue.Tasks()
	assert.Equal(t, messaging.IndexDocumentQueue, task.Type())

	var payload messaging.IndexDocumentPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, doc.ID, payload.DocumentID)
	assert.Equal(t, "texts", payload.Bucket)
	assert.Equal(t, storage.DocumentTextKey(doc.ID), payload.Key)
	assert.Empty(t, payload.Text)

	data, err := f.provider.GetObject(context.Background(), payload.Bucket, payload.Key)
	require.NoError(t, err)
	assert.Equal(t, "Rent is due monthly.", string(data))

	var saved database.Document
	require.NoError(t, f.db.First(&saved, "id = ?", doc.ID).Error)
	assert.Equal(t, database.IndexQueued, saved.IndexStatus)
}

func TestIndexDocumentWithObjectReference(t *testing.T) {
	f := newDocumentFixture(t, nil)
	doc := f.createDocument(t, 1, "scan.pdf")

	key := storage.DocumentPrefix(doc.ID) + "ocr.txt"
	rec := doRequest(t, f.router, http.MethodPost, "/documents/"+jsonNumber(doc.ID)+"/index", 1, pkgapi.IndexDocumentRequest{Bucket: "texts", Key: key})
	expectStatus(t, rec, http.StatusOK)

	var payload messaging.IndexDocumentPayload
	require.NoError(t, json.Unmarshal((<-f.queue.Tasks()).Payload(), &payload))
	assert.Equal(t, "texts", payload.Bucket)
	assert.Equal(t, key, payload.Key)
}

func TestIndexDocumentRejectsForeignObjects(t *testing.T) {
	f := newDocumentFixture(t, nil)
	victim := f.createDocument(t, 1, "lease.pdf")
	attacker := f.createDocument(t, 2, "mine.pdf")

	rec := doRequest(t, f.router, http.MethodPost, "/documents/"+jsonNumber(victim.ID)+"/index", 1, pkgapi.IndexDocumentRequest{Text: "private lease text"})
	expectStatus(t, rec, http.StatusOK)
	<-f.queue.Tasks()

	endpoint := "/documents/" + jsonNumber(attacker.ID) + "/index"
	for _, req := range []pkgapi.IndexDocumentRequest{
		{Key: storage.DocumentTextKey(victim.ID)},
		{Key: storage.DocumentPrefix(attacker.ID) + "../" + jsonNumber(victim.ID) + "/text.txt"},
		{Key: storage.DocumentPrefix(attacker.ID)},
		{Bucket: "other-bucket", Key: storage.DocumentTextKey(attacker.ID)},
	} {
		rec := doRequest(t, f.router, http.MethodPost, endpoint, 2, req)
		expectStatus(t, rec, http.StatusBadRequest)
	}

	select {
	case task := <-f.queue.Tasks():
		t.Fatalf("unexpected task queued: %s", task.Payload())
	default:
	}

	var saved database.Document
	require.NoError(t, f.db.First(&saved, "id = ?", attacker.ID).Error)
	assert.Equal(t, database.IndexPending, saved.IndexStatus)
}

func TestIndexDocumentValidation(t *testing.T) {
	f := newDocumentFixture(t, nil)
	doc := f.createDocument(t, 1, "lease.pdf")

	rec := doRequest(t, f.router, http.MethodPost, "/documents/"+jsonNumber(doc.ID)+"/index", 1, pkgapi.IndexDocumentRequest{})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = doRequest(t, f.router, http.MethodPost, "/documents/"+jsonNumber(doc.ID)+"/index", 2, pkgapi.IndexDocumentRequest{Text: "x"})
	expectStatus(t, rec, http.StatusNotFound)

	rec = doRequest(t, f.router, http.MethodPost, "/documents/abc/index", 1, pkgapi.IndexDocumentRequest{Text: "x"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestIndexDocumentPublishFailure(t *testing.T) {
	f := newDocumentFixture(t, failingPublisher{})
	doc := f.createDocument(t, 1, "lease.pdf")

	rec := doRequest(t, f.router, http.MethodPost, "/documents/"+jsonNumber(doc.ID)+"/index", 1, pkgapi.IndexDocumentRequest{Text: "Rent is due monthly."})
	expectStatus(t, rec, http.StatusInternalServerError)

	var saved database.Document
	require.NoError(t, f.db.First(&saved, "id = ?", doc.ID).Error)
	assert.Equal(t, database.IndexFailed, saved.IndexStatus)
	assert.Contains(t, saved.IndexError, "broker unavailable")
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
