package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docchat-backend/cmd"
	"docchat-backend/internal/config"
	"docchat-backend/internal/database"
	"docchat-backend/internal/indexing"
	"docchat-backend/internal/messaging"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	storage, err := cmd.NewStorageProvider(ctx, cfg.StorageConfig)
	if err != nil {
		log.Fatalf("Worker: Failed to initialize storage: %v", err)
	}

	embedder, err := cmd.NewEmbedder(cfg.RetrievalConfig, cfg.LLMConfig)
	if err != nil {
		log.Fatalf("Worker: Failed to create embedder: %v", err)
	}

	documents, err := cmd.NewDocumentStore(ctx, cfg.RetrievalConfig, db, embedder)
	if err != nil {
		log.Fatalf("Worker: Failed to initialize document store: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	processor := indexing.NewTaskProcessor(db, storage, receiver, cmd.NewIndexer(cfg.RetrievalConfig, db, embedder, documents))

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Start(ctx)
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received, waiting for current task to finish")

	// Deliveries not yet acked are requeued by the broker once the connection closes.
	processor.Stop()
	<-done

	log.Println("Worker process stopped.")
}
