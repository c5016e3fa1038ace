//go:build integration
// +build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"docchat-backend/internal/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestRabbitMQPublishReceiveIndexTask(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rabbitmqContainer, err := rabbitmq.RunContainer(ctx, testcontainers.WithImage("rabbitmq:3.11-management"))
	require.NoError(t, err, "failed to start rabbitmq container")
	defer func() {
		if err := rabbitmqContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	}()

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	publisher, err := messaging.NewRabbitMQPublisher(connStr)
	require.NoError(t, err)
	defer publisher.Close()

	receiver, err := messaging.NewRabbitMQReceiver(connStr)
	require.NoError(t, err)
	defer receiver.Close()

	payload := messaging.IndexDocumentPayload{DocumentID: 42, Bucket: "texts", Key: "documents/42/text.txt"}
	require.NoError(t, publisher.PublishIndexTask(ctx, payload))

	select {
	case task := <-receiver.Tasks():
		assert.Equal(t, messaging.IndexDocumentQueue, task.Type())

		var received messaging.IndexDocumentPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &received))
		assert.Equal(t, payload, received)
		require.NoError(t, task.Ack())
	case <-ctx.Done():
		t.Fatal("timed out waiting for index task")
	}
}
