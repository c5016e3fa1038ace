package retrieval

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

func NewOpenAIEmbedder(apiKey, baseURL, model string) (embeddings.Embedder, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating openai embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("error creating openai embedder: %w", err)
	}
	return embedder, nil
}

func NewOllamaEmbedder(serverURL, model string) (embeddings.Embedder, error) {
	client, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("error creating ollama embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("error creating ollama embedder: %w", err)
	}
	return embedder, nil
}
