package domain

import "time"

// Session is an ongoing conversation between a user and one book.
// Sessions are created lazily on the first message and are never
// explicitly closed.
type Session struct {
	// ID is the unique identifier for the session.
	ID string

	// BookID is the book this conversation is bound to. Every
	// exchange in the session references the same book.
	BookID string

	// UserID is the session owner.
	UserID string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// UpdatedAt is when the session last received an exchange.
	UpdatedAt time.Time
}

// Exchange is one user message and its generated response.
// Immutable once created.
type Exchange struct {
	// ID is the unique identifier for the exchange.
	ID string

	// SessionID links to the owning Session.
	SessionID string

	// BookID is denormalised from the session for direct queries.
	BookID string

	// UserID is the author of the user message.
	UserID string

	// Mode is the dialogue mode used for this turn. Modes are chosen
	// per request, not per session; a session may mix modes.
	Mode Mode

	// UserMessage is the raw user text.
	UserMessage string

	// Response is the generated reply.
	Response string

	// Context references the segments used to ground the response.
	Context []SegmentRef

	// Citations are the source locations surfaced with the response.
	// Populated when the mode requires citations.
	Citations []Citation

	// PromptTokens is the prompt-side token count.
	PromptTokens int

	// CompletionTokens is the response-side token count.
	CompletionTokens int

	// TokensUsed is the total token cost deducted from the user's
	// budget. Always >= 0; deducted atomically with persistence.
	TokensUsed int

	// CreatedAt is when the exchange was persisted.
	CreatedAt time.Time
}

// SegmentRef records which segment grounded a response and how
// relevant it was.
type SegmentRef struct {
	// SegmentID is the referenced segment.
	SegmentID string

	// Index is the segment's ordinal position in the book.
	Index int

	// Score is the similarity score at retrieval time.
	Score float64
}

// Citation points a reader back at the source text.
type Citation struct {
	// Page is the estimated page number. Zero when unknown.
	Page int

	// Chapter is the chapter hint, when available.
	Chapter string

	// Excerpt is a short quote from the cited segment.
	Excerpt string

	// Score is the similarity score of the cited segment.
	Score float64
}

// Citation limits applied when composing a response.
const (
	// MaxCitations caps how many citations accompany one response.
	MaxCitations = 3

	// CitationExcerptLen caps the excerpt length in characters.
	CitationExcerptLen = 200
)

// CitationsFromSegments builds the citation list for a response from
// the retrieved context, capped at MaxCitations.
func CitationsFromSegments(segments []RetrievedSegment) []Citation {
	n := len(segments)
	if n > MaxCitations {
		n = MaxCitations
	}
	citations := make([]Citation, 0, n)
	for _, seg := range segments[:n] {
		excerpt := seg.Text
		if runes := []rune(excerpt); len(runes) > CitationExcerptLen {
			excerpt = string(runes[:CitationExcerptLen])
		}
		citations = append(citations, Citation{
			Page:    seg.Page,
			Chapter: seg.Chapter,
			Excerpt: excerpt,
			Score:   seg.Score,
		})
	}
	return citations
}
