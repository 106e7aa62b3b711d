package driven

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// EventSink receives fire-and-forget notification/analytics events.
// Emission is best-effort: the pipeline logs sink failures and moves
// on, never blocking or failing an operation on them.
type EventSink interface {
	// Emit delivers one event.
	Emit(ctx context.Context, event domain.Event) error
}
