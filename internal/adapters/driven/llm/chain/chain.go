// Package chain composes multiple response generators into a single
// prioritized fallback chain. The chain tries providers in order: a
// retryable failure (timeout, rate limit, server error) earns the
// provider one retry before the chain moves on, a fatal failure (bad
// request, auth) skips to the next provider immediately.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure Chain implements the interface.
var _ driven.LLMService = (*Chain)(nil)

// DefaultRetryDelay is the pause before the single retry of a
// retryable failure.
const DefaultRetryDelay = 500 * time.Millisecond

// Config holds configuration for the provider chain.
type Config struct {
	// RetryDelay is the pause before retrying a provider after a
	// retryable failure (default: 500ms).
	RetryDelay time.Duration
}

// Chain tries each configured provider in priority order.
type Chain struct {
	providers  []driven.LLMService
	retryDelay time.Duration
}

// New creates a provider chain. At least one provider is required;
// the first is the primary.
func New(cfg Config, providers ...driven.LLMService) (*Chain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("chain: at least one provider is required")
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Chain{
		providers:  providers,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Generate asks each provider in turn until one succeeds. When every
// provider fails the returned error matches domain.ErrGeneratorUnavailable
// and wraps the last provider's failure.
func (c *Chain) Generate(
	ctx context.Context,
	systemPrompt string,
	messages []driven.ChatMessage,
	opts driven.GenerateOptions,
) (*driven.GenerationResult, error) {
	var lastErr error
	for _, provider := range c.providers {
		result, err := c.generateWithRetry(ctx, provider, systemPrompt, messages, opts)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// The caller's deadline covers the whole chain; once it has
		// expired no remaining provider can succeed.
		if ctx.Err() != nil {
			return nil, lastErr
		}
		logger.Warn("generation provider failed, trying next",
			"provider", provider.ModelName(),
			"error", err,
		)
	}

	return nil, fmt.Errorf("%w: %w", domain.ErrGeneratorUnavailable, lastErr)
}

// generateWithRetry gives a provider one retry on retryable failures.
func (c *Chain) generateWithRetry(
	ctx context.Context,
	provider driven.LLMService,
	systemPrompt string,
	messages []driven.ChatMessage,
	opts driven.GenerateOptions,
) (*driven.GenerationResult, error) {
	result, err := provider.Generate(ctx, systemPrompt, messages, opts)
	if err == nil {
		return result, nil
	}
	if !domain.IsRetryableGeneration(err) || ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(c.retryDelay):
	}

	return provider.Generate(ctx, systemPrompt, messages, opts)
}

// ModelName returns the primary provider's model name.
func (c *Chain) ModelName() string {
	return c.providers[0].ModelName()
}

// Ping succeeds when any provider in the chain is reachable.
func (c *Chain) Ping(ctx context.Context) error {
	var errs []error
	for _, provider := range c.providers {
		err := provider.Ping(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("chain: no provider reachable: %w", errors.Join(errs...))
}

// Close releases every provider's resources.
func (c *Chain) Close() error {
	var errs []error
	for _, provider := range c.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
