package domain

import "time"

// EventType identifies a notification/analytics event.
type EventType string

// Events emitted by the pipeline. Delivery is fire-and-forget; sink
// failures never propagate into the pipeline.
const (
	EventBookIngested     EventType = "book.ingested"
	EventBookFailed       EventType = "book.failed"
	EventExchangeRecorded EventType = "chat.exchange"
)

// Event is a fire-and-forget notification payload.
type Event struct {
	// Type identifies the event.
	Type EventType

	// BookID is the related book, when any.
	BookID string

	// UserID is the related user, when any.
	UserID string

	// Detail carries event-specific fields.
	Detail map[string]any

	// OccurredAt is when the event was emitted.
	OccurredAt time.Time
}
