package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat-backend/internal/chat"

	"github.com/go-resty/resty/v2"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type OllamaConfig struct {
	ServerURL    string
	Model        string
	Temperature  float64
	MaxTokens    int
	ProbeTimeout time.Duration
}

// OllamaGenerator runs generation on a local Ollama runtime. Every failure of
// the local runtime counts as unavailability so the chain moves on to the
// hosted backends.
type OllamaGenerator struct {
	llm         *ollama.LLM
	probe       *resty.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewOllamaGenerator(cfg OllamaConfig) (*OllamaGenerator, error) {
	llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("error creating ollama client: %w", err)
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	return &OllamaGenerator{
		llm:         llm,
		probe:       resty.New().SetBaseURL(strings.TrimSuffix(cfg.ServerURL, "/")).SetTimeout(probeTimeout),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *OllamaGenerator) Name() string {
	return "ollama"
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available checks that the runtime answers and has the model pulled. Pulling
// takes minutes, so it is never attempted during a turn.
func (o *OllamaGenerator) Available(ctx context.Context) error {
	var tags ollamaTagsResponse
	res, err := o.probe.R().
		SetContext(ctx).
		SetResult(&tags).
		Get("/api/tags")
	if err != nil {
		return unavailable(o.Name(), err)
	}

	if !res.IsSuccess() {
		return unavailable(o.Name(), fmt.Errorf("tags request returned status %d", res.StatusCode()))
	}

	for _, m := range tags.Models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return nil
		}
	}

	return unavailable(o.Name(), fmt.Errorf("model %q is not pulled", o.model))
}

func (o *OllamaGenerator) Generate(ctx context.Context, bundle *chat.ContextBundle) (*chat.Generation, error) {
	if err := o.Available(ctx); err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(bundle)),
	}

	opts := []llms.CallOption{llms.WithTemperature(o.temperature)}
	if o.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(o.maxTokens))
	}

	resp, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		slog.Error("ollama generation failed", "model", o.model, "error", err)
		return nil, unavailable(o.Name(), err)
	}

	if len(resp.Choices) == 0 {
		return nil, unavailable(o.Name(), errors.New("response contained no choices"))
	}

	text := stripReasoning(resp.Choices[0].Content)
	return &chat.Generation{
		Text:                  text,
		ReferencedDocumentIDs: ReferencedDocuments(bundle, text),
		Backend:               o.Name(),
	}, nil
}

// Reasoning models such as deepseek-r1 prefix their answer with a <think> block.
func stripReasoning(text string) string {
	if _, after, found := strings.Cut(text, "</think>"); found {
		text = after
	}
	return strings.TrimSpace(text)
}
