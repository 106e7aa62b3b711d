// Package tokencount estimates token usage for budget accounting.
package tokencount

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure Counter implements the interface.
var _ driven.TokenCounter = (*Counter)(nil)

// DefaultEncodingModel selects the cl100k_base vocabulary, which the
// chat and embedding models we call share closely enough for budgets.
const DefaultEncodingModel = "gpt-3.5-turbo"

// Counter counts tokens with a tiktoken encoder when one is available
// and falls back to a word-count heuristic when it is not.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New returns a token counter. Loading the vocabulary can fail on an
// offline host (tiktoken fetches it on first use); the counter then
// estimates from word counts instead of failing requests.
func New() *Counter {
	enc, err := tiktoken.EncodingForModel(DefaultEncodingModel)
	if err != nil {
		logger.Warn("token encoder unavailable, estimating from word counts", "error", err)
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the estimated token count for the text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimateByWords(text)
}

// estimateByWords approximates tokens from the word count. English
// prose runs about three words for every four tokens.
func estimateByWords(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	estimate := words * 4 / 3
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
