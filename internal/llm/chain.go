package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat-backend/internal/chat"
)

// Chain tries its generators in order. Every attempt is bounded by the
// attempt timeout and all attempts together by the budget.
type Chain struct {
	generators     []chat.Generator
	attemptTimeout time.Duration
	budget         time.Duration
}

func NewChain(attemptTimeout, budget time.Duration, generators ...chat.Generator) *Chain {
	return &Chain{generators: generators, attemptTimeout: attemptTimeout, budget: budget}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.generators))
	for _, g := range c.generators {
		names = append(names, g.Name())
	}
	return strings.Join(names, ",")
}

func (c *Chain) Generate(ctx context.Context, bundle *chat.ContextBundle) (*chat.Generation, error) {
	if len(c.generators) == 0 {
		return nil, fmt.Errorf("%w: no generator backends configured", chat.ErrGenerationFailed)
	}

	if c.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.budget)
		defer cancel()
	}

	var errs []error
	for i, g := range c.generators {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w: generation budget exhausted", g.Name(), ErrBackendUnavailable))
			break
		}

		start := time.Now()
		generation, err := c.attempt(ctx, g, bundle)
		if err == nil {
			if generation.Backend == "" {
				generation.Backend = g.Name()
			}
			slog.Info("response generated", "backend", g.Name(), "attempt", i+1, "duration", time.Since(start))
			return generation, nil
		}

		errs = append(errs, err)
		if !errors.Is(err, ErrBackendUnavailable) {
			slog.Error("generator backend failed, not falling back", "backend", g.Name(), "error", err)
			break
		}
		slog.Warn("generator backend unavailable", "backend", g.Name(), "attempt", i+1, "duration", time.Since(start), "error", err)
	}

	return nil, fmt.Errorf("%w: %w", chat.ErrGenerationFailed, errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, g chat.Generator, bundle *chat.ContextBundle) (*chat.Generation, error) {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	generation, err := g.Generate(ctx, bundle)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		if ctx.Err() != nil || isTransportError(err) {
			return nil, unavailable(g.Name(), err)
		}
		return nil, fmt.Errorf("%s: %w", g.Name(), err)
	}
	return generation, nil
}
