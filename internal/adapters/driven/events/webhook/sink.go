// Package webhook delivers pipeline events to an HTTP endpoint as
// JSON. Deployments point it at their notification or analytics
// collector.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// DefaultTimeout bounds one delivery attempt. Sinks are fire-and-forget;
// a slow collector must not pile up goroutines.
const DefaultTimeout = 10 * time.Second

// Config holds configuration for the webhook sink.
type Config struct {
	// URL is the endpoint events are POSTed to (required).
	URL string

	// Secret, when set, is sent as a bearer token.
	Secret string

	// Timeout for one delivery (default: 10s).
	Timeout time.Duration
}

// Ensure Sink implements the interface.
var _ driven.EventSink = (*Sink)(nil)

// Sink POSTs events to a webhook endpoint.
type Sink struct {
	url    string
	secret string
	client *http.Client
}

// New creates a webhook sink.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Sink{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// eventPayload is the wire form of one event.
type eventPayload struct {
	Type       string         `json:"type"`
	BookID     string         `json:"book_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Emit delivers one event. Any non-2xx response is an error; the
// caller logs and drops it.
func (s *Sink) Emit(ctx context.Context, event domain.Event) error {
	payload := eventPayload{
		Type:       string(event.Type),
		BookID:     event.BookID,
		UserID:     event.UserID,
		Detail:     event.Detail,
		OccurredAt: event.OccurredAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("Authorization", "Bearer "+s.secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver event: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
