package services

import (
	"fmt"
	"strings"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// DefaultHistoryWindow bounds how many prior exchanges feed back into
// the model. Storage keeps the full history; only the window is sent.
const DefaultHistoryWindow = 3

// FallbackNoContext is the fixed response when retrieval finds nothing
// relevant. Returned without any model call and at zero token cost.
const FallbackNoContext = "I couldn't find relevant information in the book to answer that. " +
	"Try rephrasing your question or asking about a different part of the book."

// PromptBuilder assembles the model prompt for a chat turn. It is a
// pure function of mode, book metadata, retrieved segments, bounded
// history and the user message; all four modes flow through the same
// assembly, differing only in their ModeSpec records.
type PromptBuilder struct {
	historyWindow int
}

// NewPromptBuilder creates a prompt builder. A window of 0 takes
// DefaultHistoryWindow.
func NewPromptBuilder(historyWindow int) *PromptBuilder {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &PromptBuilder{historyWindow: historyWindow}
}

// HistoryWindow returns the configured exchange window.
func (p *PromptBuilder) HistoryWindow() int {
	return p.historyWindow
}

// Build composes the system prompt and message list for one turn.
func (p *PromptBuilder) Build(
	book *domain.Book,
	spec domain.ModeSpec,
	segments []domain.RetrievedSegment,
	history []domain.Exchange,
	userMessage string,
) (string, []driven.ChatMessage) {
	var sys strings.Builder

	author := book.Author
	if author == "" {
		author = "the author"
	}
	sys.WriteString(fmt.Sprintf(spec.Persona, book.Title, author))

	sys.WriteString("\n\n")
	switch {
	case spec.RequireCitations:
		sys.WriteString("Mark the source location inline for every claim, e.g. (p. 12) or (ch. 3).")
	case spec.EncourageCitations:
		sys.WriteString("Mention page or chapter locations where it helps the reader find the passage.")
	}
	if spec.ExpandConcepts {
		sys.WriteString(" Define domain concepts briefly as you introduce them.")
	}
	sys.WriteString(" Answer in the language the question was asked in.")

	sys.WriteString("\n\nExcerpts from the book:\n")
	for i, seg := range segments {
		sys.WriteString(fmt.Sprintf("\n[%d]%s\n%s\n", i+1, locationHint(seg.Segment), seg.Text))
	}

	// Bounded window: the last N exchanges, oldest first.
	window := history
	if len(window) > p.historyWindow {
		window = window[len(window)-p.historyWindow:]
	}

	messages := make([]driven.ChatMessage, 0, len(window)*2+1)
	for _, ex := range window {
		messages = append(messages,
			driven.ChatMessage{Role: "user", Content: ex.UserMessage},
			driven.ChatMessage{Role: "assistant", Content: ex.Response},
		)
	}
	messages = append(messages, driven.ChatMessage{Role: "user", Content: userMessage})

	return sys.String(), messages
}

// locationHint formats a segment's page/chapter hint for the prompt.
func locationHint(seg domain.Segment) string {
	switch {
	case seg.Chapter != "" && seg.Page > 0:
		return fmt.Sprintf(" (ch. %s, p. %d)", seg.Chapter, seg.Page)
	case seg.Chapter != "":
		return fmt.Sprintf(" (ch. %s)", seg.Chapter)
	case seg.Page > 0:
		return fmt.Sprintf(" (p. %d)", seg.Page)
	default:
		return ""
	}
}
