package messaging

import (
	"context"
	"time"
)

const (
	IndexDocumentQueue = "index_document_queue"
	RetryDelay         = 5 * time.Second
	MaxConnectRetry    = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// IndexDocumentPayload carries the extracted text of a document either inline
// or as a reference to an object in storage.
type IndexDocumentPayload struct {
	DocumentID int64
	Text       string
	Bucket     string
	Key        string
}

type Publisher interface {
	PublishIndexTask(ctx context.Context, payload IndexDocumentPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
