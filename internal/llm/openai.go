package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docchat-backend/internal/chat"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The fallback chain decides what happens after a failed attempt.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (o *OpenAIGenerator) Name() string {
	return "openai"
}

func (o *OpenAIGenerator) Generate(ctx context.Context, bundle *chat.ContextBundle) (*chat.Generation, error) {
	chatOpts := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(BuildPrompt(bundle)),
		},
		Model:       o.model,
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		chatOpts.MaxTokens = openai.Int(o.maxTokens)
	}

	res, err := o.client.Chat.Completions.New(ctx, chatOpts)
	if err != nil {
		slog.Error("openai error: chat completions failed", "model", o.model, "error", err)
		return nil, classifyOpenAIError(err)
	}

	if len(res.Choices) == 0 {
		return nil, unavailable(o.Name(), errors.New("response contained no choices"))
	}

	text := strings.TrimSpace(res.Choices[0].Message.Content)
	return &chat.Generation{
		Text:                  text,
		ReferencedDocumentIDs: ReferencedDocuments(bundle, text),
		Backend:               o.Name(),
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if isRetryableStatus(apiErr.StatusCode) {
			return unavailable("openai", err)
		}
		return fmt.Errorf("openai generation failed: %w", err)
	}
	if isTransportError(err) {
		return unavailable("openai", err)
	}
	return fmt.Errorf("openai generation failed: %w", err)
}
