package driving

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// ChatService answers conversational queries against a processed book.
type ChatService interface {
	// SendMessage runs one chat turn: retrieve context, compose the
	// mode prompt, generate, persist the exchange and consume tokens.
	// Rejections (unprocessed book, exceeded budget, filtered content)
	// happen before any model spend.
	SendMessage(ctx context.Context, req ChatRequest) (*domain.Exchange, error)

	// History returns a session's exchanges ordered oldest first.
	History(ctx context.Context, userID, sessionID string) ([]domain.Exchange, error)

	// Sessions lists the user's sessions, optionally scoped to a book.
	Sessions(ctx context.Context, userID, bookID string) ([]domain.Session, error)
}

// ChatRequest carries one user message.
type ChatRequest struct {
	// UserID is the caller.
	UserID string

	// BookID is the book to chat with.
	BookID string

	// SessionID continues an existing session when set; a new session
	// bound to the book is created otherwise.
	SessionID string

	// Mode selects the dialogue policy for this turn.
	Mode domain.Mode

	// Message is the user's text.
	Message string
}
