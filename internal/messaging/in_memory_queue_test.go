package messaging_test

import (
	"context"
	"encoding/json"
	"testing"

	"docchat-backend/internal/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	queue := messaging.NewInMemoryQueue()

	payload := messaging.IndexDocumentPayload{DocumentID: 5, Bucket: "texts", Key: "documents/5/text.txt"}
	require.NoError(t, queue.PublishIndexTask(context.Background(), payload))

	task := <-queue.Tasks()
	assert.Equal(t, messaging.IndexDocumentQueue, task.Type())

	var received messaging.IndexDocumentPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &received))
	assert.Equal(t, payload, received)
	assert.NoError(t, task.Ack())

	queue.Close()
	queue.Close()

	_, ok := <-queue.Tasks()
	assert.False(t, ok)

	err := queue.PublishIndexTask(context.Background(), payload)
	assert.ErrorIs(t, err, messaging.ErrQueueClosed)
}

func TestInMemoryQueuePublishHonorsContext(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, queue.PublishIndexTask(context.Background(), messaging.IndexDocumentPayload{DocumentID: int64(i), Text: "x"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := queue.PublishIndexTask(ctx, messaging.IndexDocumentPayload{DocumentID: 100, Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
