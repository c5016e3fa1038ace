package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docchat-backend/internal/chat"

	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey string
	// Overrides the Gemini API endpoint when set.
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int32
}

type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}

	return &GeminiGenerator{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *GeminiGenerator) Name() string {
	return "gemini"
}

func (g *GeminiGenerator) Generate(ctx context.Context, bundle *chat.ContextBundle) (*chat.Generation, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt}}},
		Temperature:       &g.temperature,
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(bundle)), config)
	if err != nil {
		slog.Error("gemini generation failed", "model", g.model, "error", err)
		return nil, classifyGeminiError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, unavailable(g.Name(), errors.New("response contained no text"))
	}

	return &chat.Generation{
		Text:                  text,
		ReferencedDocumentIDs: ReferencedDocuments(bundle, text),
		Backend:               g.Name(),
	}, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isRetryableStatus(apiErr.Code) {
			return unavailable("gemini", err)
		}
		return fmt.Errorf("gemini generation failed: %w", err)
	}
	if isTransportError(err) {
		return unavailable("gemini", err)
	}
	return fmt.Errorf("gemini generation failed: %w", err)
}
