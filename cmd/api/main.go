package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat-backend/cmd"
	"docchat-backend/internal/api"
	"docchat-backend/internal/chat"
	"docchat-backend/internal/config"
	"docchat-backend/internal/database"
	"docchat-backend/internal/indexing"
	"docchat-backend/internal/messaging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	storage, err := cmd.NewStorageProvider(ctx, cfg.StorageConfig)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	embedder, err := cmd.NewEmbedder(cfg.RetrievalConfig, cfg.LLMConfig)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	documents, err := cmd.NewDocumentStore(ctx, cfg.RetrievalConfig, db, embedder)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}

	generator, err := cmd.NewGeneratorChain(ctx, cfg.LLMConfig)
	if err != nil {
		log.Fatalf("Failed to configure generators: %v", err)
	}

	var publisher messaging.Publisher
	var processor *indexing.TaskProcessor
	if cfg.QueueConfig.RabbitMQURL != "" {
		rabbit, err := messaging.NewRabbitMQPublisher(cfg.QueueConfig.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		publisher = rabbit
	} else {
		slog.Info("RABBITMQ_URL not set, indexing documents in process")
		queue := messaging.NewInMemoryQueue()
		publisher = queue
		processor = indexing.NewTaskProcessor(db, storage, queue, cmd.NewIndexer(cfg.RetrievalConfig, db, embedder, documents))
	}
	defer publisher.Close()

	sessions := chat.NewSQLSessionStore(db)
	assembler := chat.NewAssembler(sessions, documents, cmd.NewTokenCounter(), chat.AssemblerOptions{
		HistoryWindow:    cfg.HistoryWindow,
		ContextWindow:    cfg.ContextWindow,
		RetrievalLimit:   cfg.RetrievalLimit,
		RetrievalTimeout: cfg.RetrievalTimeout,
		MaxPromptTokens:  cfg.MaxPromptTokens,
	})
	orchestrator := chat.NewOrchestrator(sessions, assembler, generator)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// A turn may use the whole generation budget.
	r.Use(middleware.Timeout(cfg.Budget + cfg.RetrievalTimeout + 10*time.Second))

	api.NewBackendService(db, publisher, storage, cfg.TextBucket, documents).AddRoutes(r)
	api.NewChatService(sessions, orchestrator).AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	if processor != nil {
		slog.Info("starting worker")
		go processor.Start(workerCtx)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		if processor != nil {
			slog.Info("shutting down worker")
			processor.Stop()
		}
		stopWorker()
	}()

	slog.Info("server started", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	slog.Info("server stopped")
}
