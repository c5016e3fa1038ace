package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/config"
	"docchat-backend/internal/llm"
	"docchat-backend/internal/retrieval"
	"docchat-backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/tmc/langchaingo/embeddings"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func NewStorageProvider(ctx context.Context, cfg config.StorageConfig) (storage.Provider, error) {
	var provider storage.Provider
	switch cfg.Provider {
	case "s3":
		s3p, err := storage.NewS3Provider(ctx, storage.S3ProviderConfig{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
		if err != nil {
			return nil, err
		}
		provider = s3p
	default:
		provider = storage.NewLocalProvider(cfg.LocalDir)
	}

	if err := provider.CreateBucket(ctx, cfg.TextBucket); err != nil {
		return nil, fmt.Errorf("error creating text bucket %s: %w", cfg.TextBucket, err)
	}
	return provider, nil
}

func NewEmbedder(cfg config.RetrievalConfig, llmCfg config.LLMConfig) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return retrieval.NewOllamaEmbedder(llmCfg.OllamaURL, cfg.EmbeddingModel)
	default:
		return retrieval.NewOpenAIEmbedder(llmCfg.OpenAIAPIKey, llmCfg.OpenAIBaseURL, cfg.EmbeddingModel)
	}
}

func NewDocumentStore(ctx context.Context, cfg config.RetrievalConfig, db *gorm.DB, embedder embeddings.Embedder) (retrieval.Store, error) {
	if cfg.DocumentStore != "qdrant" {
		return retrieval.NewSQLStore(db, embedder), nil
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	store := retrieval.NewQdrantStore(client, cfg.QdrantCollection, embedder)
	if err := store.EnsureCollection(ctx, cfg.EmbeddingDimension); err != nil {
		return nil, err
	}
	return store, nil
}

func NewIndexer(cfg config.RetrievalConfig, db *gorm.DB, embedder embeddings.Embedder, writer retrieval.ChunkWriter) *retrieval.Indexer {
	return retrieval.NewIndexer(db, embedder, writer, retrieval.IndexerOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatch,
		MaxWorkers:   cfg.EmbedWorkers,
	})
}

func NewGeneratorChain(ctx context.Context, cfg config.LLMConfig) (*llm.Chain, error) {
	generators := make([]chat.Generator, 0, len(cfg.GeneratorChain))
	for _, name := range cfg.GeneratorChain {
		switch strings.TrimSpace(name) {
		case "ollama":
			gen, err := llm.NewOllamaGenerator(llm.OllamaConfig{
				ServerURL:   cfg.OllamaURL,
				Model:       cfg.LocalAIModel,
				Temperature: cfg.Temperature,
				MaxTokens:   cfg.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			generators = append(generators, gen)

		case "openai":
			generators = append(generators, llm.NewOpenAIGenerator(llm.OpenAIConfig{
				APIKey:      cfg.OpenAIAPIKey,
				BaseURL:     cfg.OpenAIBaseURL,
				Model:       cfg.OpenAIModel,
				Temperature: cfg.Temperature,
				MaxTokens:   int64(cfg.MaxTokens),
			}))

		case "gemini":
			gen, err := llm.NewGeminiGenerator(ctx, llm.GeminiConfig{
				APIKey:      cfg.GeminiAPIKey,
				BaseURL:     cfg.GeminiBaseURL,
				Model:       cfg.GeminiModel,
				Temperature: cfg.Temperature,
				MaxTokens:   int32(cfg.MaxTokens),
			})
			if err != nil {
				return nil, err
			}
			generators = append(generators, gen)

		default:
			return nil, fmt.Errorf("unsupported generator backend %q", name)
		}
	}

	chain := llm.NewChain(cfg.AttemptTimeout, cfg.Budget, generators...)
	slog.Info("generator chain configured", "backends", chain.Name())
	return chain, nil
}

func NewTokenCounter() chat.TokenCounter {
	counter, err := chat.NewTiktokenCounter(chat.DefaultEncoding)
	if err != nil {
		slog.Warn("tiktoken unavailable, estimating prompt tokens", "error", err)
		return chat.EstimateCounter{}
	}
	return counter
}
