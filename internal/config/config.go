package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type DatabaseConfig struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"docchat.db"`
}

// Leaving RABBITMQ_URL empty runs the indexing worker inside the api process
// on an in-memory queue.
type QueueConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type StorageConfig struct {
	Provider          string `env:"STORAGE_PROVIDER" envDefault:"local"`
	LocalDir          string `env:"LOCAL_STORAGE_DIR" envDefault:"./data"`
	TextBucket        string `env:"TEXT_BUCKET_NAME" envDefault:"document-texts"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

type RetrievalConfig struct {
	DocumentStore    string `env:"DOCUMENT_STORE" envDefault:"sql"`
	QdrantHost       string `env:"QDRANT_HOST" envDefault:"localhost"`
	QdrantPort       int    `env:"QDRANT_PORT" envDefault:"6334"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"document_chunks"`

	EmbeddingProvider string `env:"EMBEDDING_PROVIDER" envDefault:"openai"`
	EmbeddingModel    string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	// Only used to create the qdrant collection.
	EmbeddingDimension uint64 `env:"EMBEDDING_DIMENSION" envDefault:"1536"`

	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`
	EmbedBatch   int `env:"EMBED_BATCH_SIZE" envDefault:"32"`
	EmbedWorkers int `env:"EMBED_WORKERS" envDefault:"4"`
}

type LLMConfig struct {
	GeneratorChain []string `env:"GENERATOR_CHAIN" envDefault:"ollama,openai" envSeparator:","`

	OllamaURL     string  `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	LocalAIModel  string  `env:"LOCAL_AI_MODEL" envDefault:"deepseek-r1:7b"`
	OpenAIAPIKey  string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `env:"OPENAI_BASE_URL"`
	OpenAIModel   string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey  string  `env:"GEMINI_API_KEY"`
	GeminiBaseURL string  `env:"GEMINI_BASE_URL"`
	GeminiModel   string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	Temperature   float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens     int     `env:"LLM_MAX_TOKENS" envDefault:"1000"`

	AttemptTimeout time.Duration `env:"GENERATION_ATTEMPT_TIMEOUT" envDefault:"60s"`
	Budget         time.Duration `env:"GENERATION_BUDGET" envDefault:"120s"`
}

type ChatConfig struct {
	HistoryWindow    int           `env:"CHAT_HISTORY_WINDOW" envDefault:"10"`
	ContextWindow    int           `env:"CHAT_CONTEXT_WINDOW" envDefault:"5"`
	RetrievalLimit   int           `env:"CHAT_RETRIEVAL_LIMIT" envDefault:"5"`
	RetrievalTimeout time.Duration `env:"CHAT_RETRIEVAL_TIMEOUT" envDefault:"10s"`
	MaxPromptTokens  int           `env:"CHAT_MAX_PROMPT_TOKENS" envDefault:"3000"`
}

type APIConfig struct {
	DatabaseConfig
	QueueConfig
	StorageConfig
	RetrievalConfig
	LLMConfig
	ChatConfig

	APIPort        string   `env:"API_PORT" envDefault:"8001"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// The worker reads the llm settings only for the embedding clients.
type WorkerConfig struct {
	DatabaseConfig
	StorageConfig
	RetrievalConfig
	LLMConfig

	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
}

func (c RetrievalConfig) Validate() error {
	switch c.DocumentStore {
	case "sql", "qdrant":
	default:
		return fmt.Errorf("unsupported DOCUMENT_STORE %q", c.DocumentStore)
	}
	switch c.EmbeddingProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

func (c StorageConfig) Validate() error {
	switch c.Provider {
	case "local", "s3":
		return nil
	default:
		return fmt.Errorf("unsupported STORAGE_PROVIDER %q", c.Provider)
	}
}

func (c LLMConfig) Validate() error {
	if len(c.GeneratorChain) == 0 {
		return fmt.Errorf("GENERATOR_CHAIN must name at least one backend")
	}
	for _, name := range c.GeneratorChain {
		switch strings.TrimSpace(name) {
		case "ollama":
		case "openai":
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
			}
		case "gemini":
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("GEMINI_API_KEY is required for the gemini backend")
			}
		default:
			return fmt.Errorf("unsupported generator backend %q", name)
		}
	}
	return nil
}

func LoadAPIConfig() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.StorageConfig.Validate(); err != nil {
		return cfg, err
	}
	if err := cfg.RetrievalConfig.Validate(); err != nil {
		return cfg, err
	}
	if err := cfg.LLMConfig.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadWorkerConfig() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.StorageConfig.Validate(); err != nil {
		return cfg, err
	}
	if err := cfg.RetrievalConfig.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
