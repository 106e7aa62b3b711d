// Package lognotify writes pipeline events to the application log.
// It is the default sink when no webhook is configured.
package lognotify

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure Sink implements the interface.
var _ driven.EventSink = (*Sink)(nil)

// Sink logs each event at info level.
type Sink struct{}

// New creates a logging sink.
func New() *Sink {
	return &Sink{}
}

// Emit logs the event. It never fails.
func (s *Sink) Emit(_ context.Context, event domain.Event) error {
	args := []any{"type", string(event.Type)}
	if event.BookID != "" {
		args = append(args, "book", event.BookID)
	}
	if event.UserID != "" {
		args = append(args, "user", event.UserID)
	}
	for key, value := range event.Detail {
		args = append(args, key, value)
	}

	logger.Info("event", args...)
	return nil
}
