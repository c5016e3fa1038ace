package api

import "time"

type CreateDocumentRequest struct {
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	PropertyID *int64 `json:"property_id,omitempty"`
}

type Document struct {
	ID               int64      `json:"id"`
	OriginalFilename string     `json:"original_filename"`
	Title            string     `json:"title"`
	PropertyID       *int64     `json:"property_id,omitempty"`
	IndexStatus      string     `json:"index_status"`
	IndexError       string     `json:"index_error,omitempty"`
	ChunkCount       int        `json:"chunk_count"`
	IndexedAt        *time.Time `json:"indexed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type GetDocumentsResponse struct {
	Documents []Document `json:"documents"`
}

// IndexDocumentRequest provides the extracted text inline or as an object in
// storage.
type IndexDocumentRequest struct {
	Text   string `json:"text"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type IndexDocumentResponse struct {
	DocumentID  int64  `json:"document_id"`
	IndexStatus string `json:"index_status"`
}
