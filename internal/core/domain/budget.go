package domain

import "time"

// TokenBudget is a per-user allowance for language-model usage.
// The chat pipeline checks it before generating and consumes it
// atomically with exchange persistence. It never goes negative.
type TokenBudget struct {
	// UserID is the budget owner.
	UserID string

	// Limit is the total allowance for the current period.
	Limit int

	// Used is the amount consumed so far.
	Used int

	// UpdatedAt is when the budget last changed.
	UpdatedAt time.Time
}

// Remaining returns the unconsumed allowance.
func (b *TokenBudget) Remaining() int {
	r := b.Limit - b.Used
	if r < 0 {
		return 0
	}
	return r
}

// Covers reports whether the budget can absorb the given cost.
func (b *TokenBudget) Covers(amount int) bool {
	return amount <= b.Remaining()
}

// DefaultChatCostEstimate is the speculative token cost used for the
// pre-generation budget check. Actual consumption is recorded after
// generation succeeds.
const DefaultChatCostEstimate = 500

// DefaultTokenLimit is the allowance granted to a user on first use.
const DefaultTokenLimit = 100000
