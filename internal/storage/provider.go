package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Key  string
	Size int64
}

// Provider stores the extracted text of uploaded documents.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	// Returns an error wrapping ErrObjectNotFound for missing keys.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data []byte) error

	DeleteObject(ctx context.Context, bucket, key string) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}

// DocumentPrefix is the part of the text bucket owned by one document.
func DocumentPrefix(documentID int64) string {
	return fmt.Sprintf("documents/%d/", documentID)
}

func DocumentTextKey(documentID int64) string {
	return DocumentPrefix(documentID) + "text.txt"
}

// IsDocumentKey reports whether key names an object under the document's
// prefix. Keys that are not in clean form are rejected.
func IsDocumentKey(documentID int64, key string) bool {
	prefix := DocumentPrefix(documentID)
	return len(key) > len(prefix) && strings.HasPrefix(key, prefix) && path.Clean(key) == key
}
