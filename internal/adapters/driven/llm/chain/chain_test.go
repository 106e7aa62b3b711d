package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// chainMockProvider scripts per-call outcomes for Generate.
// Note: prefixed with chain to avoid conflicts with other test mocks.
type chainMockProvider struct {
	mu      sync.Mutex
	name    string
	calls   int
	pingErr error
	// script returns the error for the given call number (1-based).
	// A nil script or nil return means success.
	script func(call int) error
}

func (m *chainMockProvider) Generate(
	_ context.Context,
	_ string,
	_ []driven.ChatMessage,
	_ driven.GenerateOptions,
) (*driven.GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.script != nil {
		if err := m.script(m.calls); err != nil {
			return nil, err
		}
	}
	return &driven.GenerationResult{
		Text:             "answer from " + m.name,
		PromptTokens:     10,
		CompletionTokens: 5,
		Model:            m.name,
	}, nil
}

func (m *chainMockProvider) ModelName() string { return m.name }

func (m *chainMockProvider) Ping(context.Context) error { return m.pingErr }

func (m *chainMockProvider) Close() error { return nil }

func (m *chainMockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func retryableErr(provider string) error {
	return &domain.GenerationError{
		Provider:   provider,
		StatusCode: 429,
		Retryable:  true,
		Err:        errors.New("rate limited"),
	}
}

func fatalErr(provider string) error {
	return &domain.GenerationError{
		Provider:   provider,
		StatusCode: 401,
		Retryable:  false,
		Err:        errors.New("invalid api key"),
	}
}

func alwaysFail(err error) func(int) error {
	return func(int) error { return err }
}

func newChain(t *testing.T, providers ...driven.LLMService) *Chain {
	t.Helper()
	c, err := New(Config{RetryDelay: time.Millisecond}, providers...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestGenerate_PrimarySucceeds(t *testing.T) {
	primary := &chainMockProvider{name: "primary"}
	backup := &chainMockProvider{name: "backup"}
	c := newChain(t, primary, backup)

	result, err := c.Generate(context.Background(), "system", nil, driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "answer from primary", result.Text)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, backup.callCount())
}

func TestGenerate_RetryableGetsOneRetry(t *testing.T) {
	primary := &chainMockProvider{
		name: "primary",
		script: func(call int) error {
			if call == 1 {
				return retryableErr("primary")
			}
			return nil
		},
	}
	backup := &chainMockProvider{name: "backup"}
	c := newChain(t, primary, backup)

	result, err := c.Generate(context.Background(), "system", nil, driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "answer from primary", result.Text)
	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 0, backup.callCount())
}

func TestGenerate_RetryableFallsThroughAfterRetry(t *testing.T) {
	primary := &chainMockProvider{name: "primary", script: alwaysFail(retryableErr("primary"))}
	backup := &chainMockProvider{name: "backup"}
	c := newChain(t, primary, backup)

	result, err := c.Generate(context.Background(), "system", nil, driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "answer from backup", result.Text)
	assert.Equal(t, 2, primary.callCount(), "retryable failure earns exactly one retry")
	assert.Equal(t, 1, backup.callCount())
}

func TestGenerate_FatalSkipsWithoutRetry(t *testing.T) {
	primary := &chainMockProvider{name: "primary", script: alwaysFail(fatalErr("primary"))}
	backup := &chainMockProvider{name: "backup"}
	c := newChain(t, primary, backup)

	result, err := c.Generate(context.Background(), "system", nil, driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "answer from backup", result.Text)
	assert.Equal(t, 1, primary.callCount(), "fatal failure must not be retried")
}

func TestGenerate_AllProvidersFail(t *testing.T) {
	primary := &chainMockProvider{name: "primary", script: alwaysFail(fatalErr("primary"))}
	backup := &chainMockProvider{name: "backup", script: alwaysFail(retryableErr("backup"))}
	c := newChain(t, primary, backup)

	_, err := c.Generate(context.Background(), "system", nil, driven.GenerateOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneratorUnavailable)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "backup", genErr.Provider, "last provider's failure is preserved")
}

func TestGenerate_CanceledContextStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &chainMockProvider{
		name: "primary",
		script: func(int) error {
			cancel()
			return retryableErr("primary")
		},
	}
	backup := &chainMockProvider{name: "backup"}
	c := newChain(t, primary, backup)

	_, err := c.Generate(ctx, "system", nil, driven.GenerateOptions{})

	require.Error(t, err)
	assert.Equal(t, 1, primary.callCount(), "expired context must not be retried")
	assert.Equal(t, 0, backup.callCount(), "expired context must not fall through")
}

func TestModelName_IsPrimary(t *testing.T) {
	c := newChain(t,
		&chainMockProvider{name: "primary"},
		&chainMockProvider{name: "backup"},
	)
	assert.Equal(t, "primary", c.ModelName())
}

func TestPing_AnyReachableProviderSuffices(t *testing.T) {
	down := &chainMockProvider{name: "down", pingErr: fmt.Errorf("connection refused")}
	up := &chainMockProvider{name: "up"}

	c := newChain(t, down, up)
	assert.NoError(t, c.Ping(context.Background()))

	allDown := newChain(t, down)
	assert.Error(t, allDown.Ping(context.Background()))
}
