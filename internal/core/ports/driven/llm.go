package driven

import "context"

// LLMService produces a model response for a composed chat prompt.
// Failures surface as *domain.GenerationError carrying the
// retryable-vs-fatal distinction; implementations never return empty
// text with a nil error.
//
// Implementations may include:
//   - OpenAI (GPT-4o family)
//   - Anthropic (Claude)
//   - Google (Gemini)
//   - Ollama (local models)
//
// A prioritized fallback chain of providers also satisfies this
// interface, so callers never deal with provider order themselves.
type LLMService interface {
	// Generate produces a response for the system prompt and messages.
	// The returned usage is the provider's own count when reported;
	// callers fall back to an estimate otherwise.
	Generate(ctx context.Context, systemPrompt string, messages []ChatMessage, opts GenerateOptions) (*GenerationResult, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "user" or "assistant". The system prompt is
	// passed separately to Generate.
	Role string

	// Content is the message text.
	Content string
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// GenerationResult is the model's response plus reported usage.
type GenerationResult struct {
	// Text is the generated response.
	Text string

	// PromptTokens is the provider-reported prompt token count.
	// Zero when the provider does not report usage.
	PromptTokens int

	// CompletionTokens is the provider-reported completion token count.
	// Zero when the provider does not report usage.
	CompletionTokens int

	// Model is the model that produced the response.
	Model string
}

// HasUsage reports whether the provider returned token counts.
func (r *GenerationResult) HasUsage() bool {
	return r.PromptTokens > 0 || r.CompletionTokens > 0
}

// TotalTokens is the combined prompt and completion count.
func (r *GenerationResult) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}
