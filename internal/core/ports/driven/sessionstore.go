package driven

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// SessionStore persists conversation sessions and exchanges.
// History lives in the store, never in process memory, so restarts and
// horizontal scaling do not lose or duplicate conversations.
type SessionStore interface {
	// SaveSession stores or updates a session.
	SaveSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns a user's sessions for a book, most recent
	// first. An empty bookID returns all of the user's sessions.
	ListSessions(ctx context.Context, userID, bookID string) ([]domain.Session, error)

	// AppendExchange persists an exchange and consumes the user's
	// token budget in one transaction. If either side fails, neither
	// is applied: no orphan exchange, no phantom token spend.
	AppendExchange(ctx context.Context, exchange *domain.Exchange) error

	// GetExchanges returns a session's exchanges ordered oldest first.
	// A limit of 0 returns the full history; a positive limit returns
	// the most recent N (still ordered oldest first), which bounds the
	// window fed back to the model.
	GetExchanges(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error)
}

// BudgetStore tracks per-user token allowances.
type BudgetStore interface {
	// GetBudget retrieves a user's budget, creating a default record
	// on first use.
	GetBudget(ctx context.Context, userID string) (*domain.TokenBudget, error)

	// SetLimit replaces a user's allowance. Accumulated usage stands;
	// raising a limit never erases spend history.
	SetLimit(ctx context.Context, userID string, limit int) error
}
