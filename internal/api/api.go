package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"docchat-backend/internal/database"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/retrieval"
	"docchat-backend/internal/storage"
	"docchat-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type BackendService struct {
	db         *gorm.DB
	publisher  messaging.Publisher
	storage    storage.Provider
	textBucket string
	chunks     retrieval.ChunkWriter
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher, storage storage.Provider, textBucket string, chunks retrieval.ChunkWriter) *BackendService {
	return &BackendService{
		db:         db,
		publisher:  publisher,
		storage:    storage,
		textBucket: textBucket,
		chunks:     chunks,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListDocuments))
		r.Post("/", RestHandler(s.CreateDocument))
		r.Get("/{document_id}", RestHandler(s.GetDocument))
		r.Delete("/{document_id}", RestHandler(s.DeleteDocument))
		r.Post("/{document_id}/index", RestHandler(s.IndexDocument))
	})
}

func (s *BackendService) ownedDocument(r *http.Request) (database.Document, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return database.Document{}, err
	}

	documentID, err := URLParamInt64(r, "document_id")
	if err != nil {
		return database.Document{}, err
	}

	var doc database.Document
	if err := s.db.WithContext(r.Context()).First(&doc, "id = ? AND owner_id = ?", documentID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Document{}, CodedErrorf(http.StatusNotFound, "document not found")
		}
		slog.Error("error getting document", "document_id", documentID, "error", err)
		return database.Document{}, CodedErrorf(http.StatusInternalServerError, "error retrieving document record")
	}

	return doc, nil
}

func (s *BackendService) ListDocuments(r *http.Request) (any, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return nil, err
	}

	var docs []database.Document
	if err := s.db.WithContext(r.Context()).Where("owner_id = ?", userID).Order("created_at DESC, id DESC").Find(&docs).Error; err != nil {
		slog.Error("error listing documents", "user_id", userID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving documents")
	}

	res := api.GetDocumentsResponse{Documents: make([]api.Document, 0, len(docs))}
	for _, doc := range docs {
		res.Documents = append(res.Documents, convertDocument(doc))
	}
	return res, nil
}

func (s *BackendService) CreateDocument(r *http.Request) (any, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.CreateDocumentRequest](r)
	if err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "filename is required")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = filename
	}

	doc := database.Document{
		OwnerID:          userID,
		PropertyID:       req.PropertyID,
		OriginalFilename: filename,
		Title:            title,
		IndexStatus:      database.IndexPending,
	}

	unlock := database.LockWrites(s.db)
	err = s.db.WithContext(r.Context()).Create(&doc).Error
	unlock()
	if err != nil {
		slog.Error("error creating document", "user_id", userID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create document entry")
	}

	return convertDocument(doc), nil
}

func (s *BackendService) GetDocument(r *http.Request) (any, error) {
	doc, err := s.ownedDocument(r)
	if err != nil {
		return nil, err
	}

	return convertDocument(doc), nil
}

func (s *BackendService) DeleteDocument(r *http.Request) (any, error) {
	doc, err := s.ownedDocument(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	if err := s.chunks.DeleteDocument(ctx, doc.ID); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete document chunks")
	}

	if s.storage != nil {
		if err := s.storage.DeleteObject(ctx, s.textBucket, storage.DocumentTextKey(doc.ID)); err != nil {
			slog.Warn("error deleting stored document text", "document_id", doc.ID, "error", err)
		}
	}

	unlock := database.LockWrites(s.db)
	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Where("document_id = ?", doc.ID).Delete(&database.DocumentChunk{}).Error; err != nil {
			return err
		}
		return txn.Delete(&database.Document{}, "id = ?", doc.ID).Error
	})
	unlock()
	if err != nil {
		slog.Error("error deleting document", "document_id", doc.ID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete document")
	}

	return nil, nil
}

// IndexDocument queues the extracted text of a document for indexing. Inline
// text is written to storage first so that workers only receive references.
func (s *BackendService) IndexDocument(r *http.Request) (any, error) {
	doc, err := s.ownedDocument(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.IndexDocumentRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	payload := messaging.IndexDocumentPayload{DocumentID: doc.ID}
	switch {
	case strings.TrimSpace(req.Text) != "":
		if s.storage == nil {
			payload.Text = req.Text
			break
		}
		key := storage.DocumentTextKey(doc.ID)
		if err := s.storage.PutObject(ctx, s.textBucket, key, []byte(req.Text)); err != nil {
			slog.Error("error storing document text", "document_id", doc.ID, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to store document text")
		}
		payload.Bucket, payload.Key = s.textBucket, key

	case req.Key != "":
		// Only objects under the document's own prefix in the text bucket can be
		// referenced, so one user cannot index another user's text.
		if req.Bucket != "" && req.Bucket != s.textBucket {
			return nil, CodedErrorf(http.StatusBadRequest, "bucket must be %s", s.textBucket)
		}
		if !storage.IsDocumentKey(doc.ID, req.Key) {
			return nil, CodedErrorf(http.StatusBadRequest, "key must be under %s", storage.DocumentPrefix(doc.ID))
		}
		payload.Bucket, payload.Key = s.textBucket, req.Key

	default:
		return nil, CodedErrorf(http.StatusBadRequest, "either text or key must be provided")
	}

	if err := database.UpdateDocumentIndexStatus(ctx, s.db, doc.ID, database.IndexQueued); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to update document status")
	}

	if err := s.publisher.PublishIndexTask(ctx, payload); err != nil {
		slog.Error("error publishing index task", "document_id", doc.ID, "error", err)
		database.FailDocumentIndex(ctx, s.db, doc.ID, err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue indexing task")
	}

	slog.Info("queued document for indexing", "document_id", doc.ID)

	return api.IndexDocumentResponse{DocumentID: doc.ID, IndexStatus: database.IndexQueued}, nil
}
