package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"docchat-backend/internal/database"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"

	"gorm.io/gorm"
)

var ErrEmptyPayload = errors.New("index task has neither text nor an object key")

type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID int64, text string) (int, error)
}

// TaskProcessor consumes index tasks and runs them through the indexer.
type TaskProcessor struct {
	db       *gorm.DB
	storage  storage.Provider
	reciever messaging.Reciever
	indexer  DocumentIndexer

	stop     chan struct{}
	stopOnce sync.Once
}

func NewTaskProcessor(db *gorm.DB, storage storage.Provider, reciever messaging.Reciever, indexer DocumentIndexer) *TaskProcessor {
	return &TaskProcessor{
		db:       db,
		storage:  storage,
		reciever: reciever,
		indexer:  indexer,
		stop:     make(chan struct{}),
	}
}

// Start processes tasks until ctx is cancelled, Stop is called or the
// receiver is closed. A task in progress is finished before Start returns.
func (proc *TaskProcessor) Start(ctx context.Context) {
	slog.Info("starting task processor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-proc.stop:
			return
		case task, ok := <-proc.reciever.Tasks():
			if !ok {
				return
			}
			proc.ProcessTask(ctx, task)
		}
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.stopOnce.Do(func() {
		close(proc.stop)
		proc.reciever.Close()
	})
}

func (proc *TaskProcessor) ProcessTask(ctx context.Context, task messaging.Task) {
	var err error
	switch task.Type() {

	case messaging.IndexDocumentQueue:
		var payload messaging.IndexDocumentPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling index task", "error", err)
			if err := task.Reject(); err != nil { // discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processIndexTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) loadText(ctx context.Context, payload messaging.IndexDocumentPayload) (string, error) {
	if payload.Text != "" {
		return payload.Text, nil
	}

	if payload.Key == "" {
		return "", ErrEmptyPayload
	}

	data, err := proc.storage.GetObject(ctx, payload.Bucket, payload.Key)
	if err != nil {
		return "", fmt.Errorf("error loading document text: %w", err)
	}
	return string(data), nil
}

func (proc *TaskProcessor) processIndexTask(ctx context.Context, payload messaging.IndexDocumentPayload) error {
	slog.Info("indexing document", "document_id", payload.DocumentID)

	text, err := proc.loadText(ctx, payload)
	if err != nil {
		database.FailDocumentIndex(ctx, proc.db, payload.DocumentID, err)
		return err
	}

	if _, err := proc.indexer.IndexDocument(ctx, payload.DocumentID, text); err != nil {
		return fmt.Errorf("error indexing document %d: %w", payload.DocumentID, err)
	}
	return nil
}
