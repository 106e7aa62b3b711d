package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
	"github.com/inkwell-ai/inkwell-core/internal/promptfilter"
)

// Ensure ChatService implements the interface.
var _ driving.ChatService = (*ChatService)(nil)

// Chat defaults.
const (
	// DefaultGenerateTimeout bounds one model call. On timeout no
	// exchange is persisted and no tokens are consumed.
	DefaultGenerateTimeout = 60 * time.Second

	// DefaultMaxResponseTokens caps the generated response length.
	DefaultMaxResponseTokens = 1024

	// DefaultTemperature is the generation temperature.
	DefaultTemperature = 0.7
)

// ChatConfig tunes the conversation pipeline. Zero values take the
// defaults.
type ChatConfig struct {
	// HistoryWindow is how many prior exchanges feed the model.
	HistoryWindow int

	// CostEstimate is the speculative token cost for the budget
	// pre-check.
	CostEstimate int

	// GenerateTimeout bounds one model call.
	GenerateTimeout time.Duration

	// MaxResponseTokens caps the response length.
	MaxResponseTokens int

	// Temperature is the generation temperature.
	Temperature float64
}

func (c *ChatConfig) applyDefaults() {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.CostEstimate <= 0 {
		c.CostEstimate = domain.DefaultChatCostEstimate
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = DefaultGenerateTimeout
	}
	if c.MaxResponseTokens <= 0 {
		c.MaxResponseTokens = DefaultMaxResponseTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
}

// ChatService coordinates one chat turn: retrieve context, compose the
// mode prompt, generate, persist the exchange and consume tokens.
// Turns within one session are serialized; different sessions run
// concurrently.
type ChatService struct {
	books     driven.BookStore
	sessions  driven.SessionStore
	budgets   driven.BudgetStore
	retriever *Retriever
	prompts   *PromptBuilder
	generator driven.LLMService
	counter   driven.TokenCounter
	filter    *promptfilter.Filter
	sinks     []driven.EventSink
	cfg       ChatConfig

	// Per-session serialization.
	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes turns within one session. Reference counting
// lets idle entries be dropped from the map.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewChatService creates the conversation service. The counter and
// sinks are optional; the filter may be nil to disable screening.
func NewChatService(
	books driven.BookStore,
	sessions driven.SessionStore,
	budgets driven.BudgetStore,
	retriever *Retriever,
	prompts *PromptBuilder,
	generator driven.LLMService,
	counter driven.TokenCounter,
	filter *promptfilter.Filter,
	sinks []driven.EventSink,
	cfg ChatConfig,
) *ChatService {
	cfg.applyDefaults()

	return &ChatService{
		books:     books,
		sessions:  sessions,
		budgets:   budgets,
		retriever: retriever,
		prompts:   prompts,
		generator: generator,
		counter:   counter,
		filter:    filter,
		sinks:     sinks,
		cfg:       cfg,
		locks:     make(map[string]*sessionLock),
	}
}

// SendMessage runs one chat turn.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (s *ChatService) SendMessage(ctx context.Context, req driving.ChatRequest) (*domain.Exchange, error) {
	// 1. VALIDATE INPUT
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" || req.BookID == "" {
		return nil, fmt.Errorf("%w: user and book are required", domain.ErrInvalidInput)
	}
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	if req.Mode == "" {
		req.Mode = domain.ModeKnowledge
	}
	spec, ok := req.Mode.Spec()
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, req.Mode)
	}

	// 2. LOOK UP THE BOOK AND VERIFY IT IS READY
	book, err := s.books.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book.OwnerID != req.UserID {
		return nil, fmt.Errorf("get book: %w", domain.ErrNotFound)
	}
	if !book.IsProcessed() {
		return nil, fmt.Errorf("%w: state is %s", domain.ErrBookNotReady, book.State)
	}

	// 3. RESOLVE THE SESSION
	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	// Serialize turns within this session.
	unlock := s.lockSession(session.ID)
	defer unlock()

	// 4. SCREEN DISALLOWED CONTENT (before retrieval, before any spend)
	if s.filter != nil && s.filter.Blocked(req.Message) {
		logger.Info("message blocked by content filter", "session", session.ID)
		return s.persistZeroCostExchange(ctx, session, req, s.filter.Refusal())
	}

	// 5. PRE-CHECK THE TOKEN BUDGET
	budget, err := s.budgets.GetBudget(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	if !budget.Covers(s.cfg.CostEstimate) {
		return nil, &domain.BudgetExceededError{
			UserID:    req.UserID,
			Remaining: budget.Remaining(),
			Required:  s.cfg.CostEstimate,
		}
	}

	// 6. LOAD THE BOUNDED HISTORY WINDOW
	history, err := s.sessions.GetExchanges(ctx, session.ID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	// 7. RETRIEVE CONTEXT
	segments, err := s.retriever.Retrieve(ctx, book.ID, req.Message)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(segments) == 0 {
		// Nothing relevant: answer with the fixed fallback instead of
		// letting the model guess. No model call, no token spend.
		logger.Debug("no relevant context", "book", book.ID, "session", session.ID)
		return s.persistZeroCostExchange(ctx, session, req, FallbackNoContext)
	}

	// 8. COMPOSE THE PROMPT AND GENERATE
	systemPrompt, messages := s.prompts.Build(book, spec, segments, history, req.Message)

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()

	result, err := s.generator.Generate(genCtx, systemPrompt, messages, driven.GenerateOptions{
		MaxTokens:   s.cfg.MaxResponseTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	// 9. ACCOUNT TOKENS (provider counts, or an estimate)
	promptTokens, completionTokens := result.PromptTokens, result.CompletionTokens
	if !result.HasUsage() {
		promptTokens = s.countTokens(systemPrompt)
		for _, m := range messages {
			promptTokens += s.countTokens(m.Content)
		}
		completionTokens = s.countTokens(result.Text)
	}

	exchange := &domain.Exchange{
		ID:               uuid.New().String(),
		SessionID:        session.ID,
		BookID:           book.ID,
		UserID:           req.UserID,
		Mode:             req.Mode,
		UserMessage:      req.Message,
		Response:         result.Text,
		Context:          segmentRefs(segments),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TokensUsed:       promptTokens + completionTokens,
		CreatedAt:        time.Now().UTC(),
	}
	if spec.RequireCitations {
		exchange.Citations = domain.CitationsFromSegments(segments)
	}

	// 10. PERSIST AND CONSUME TOKENS IN ONE TRANSACTION
	if err := s.sessions.AppendExchange(ctx, exchange); err != nil {
		return nil, fmt.Errorf("persist exchange: %w", err)
	}

	s.emit(ctx, domain.Event{
		Type:   domain.EventExchangeRecorded,
		BookID: book.ID,
		UserID: req.UserID,
		Detail: map[string]any{
			"session_id": session.ID,
			"mode":       string(req.Mode),
			"tokens":     exchange.TokensUsed,
			"model":      result.Model,
		},
		OccurredAt: exchange.CreatedAt,
	})

	logger.Info("chat turn complete",
		"session", session.ID, "mode", req.Mode, "tokens", exchange.TokensUsed)
	return exchange, nil
}

// History returns a session's exchanges ordered oldest first.
func (s *ChatService) History(ctx context.Context, userID, sessionID string) ([]domain.Exchange, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("get session: %w", domain.ErrNotFound)
	}

	exchanges, err := s.sessions.GetExchanges(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get exchanges: %w", err)
	}
	return exchanges, nil
}

// Sessions lists the user's sessions, optionally scoped to a book.
func (s *ChatService) Sessions(ctx context.Context, userID, bookID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListSessions(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// resolveSession loads the requested session or lazily creates one
// bound to the book.
func (s *ChatService) resolveSession(ctx context.Context, req driving.ChatRequest) (*domain.Session, error) {
	if req.SessionID != "" {
		session, err := s.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		if session.UserID != req.UserID {
			return nil, fmt.Errorf("get session: %w", domain.ErrNotFound)
		}
		if session.BookID != req.BookID {
			return nil, domain.ErrSessionBookMismatch
		}
		return session, nil
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:        uuid.New().String(),
		BookID:    req.BookID,
		UserID:    req.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// persistZeroCostExchange records a turn answered without a model call
// (content refusal or empty-context fallback).
func (s *ChatService) persistZeroCostExchange(
	ctx context.Context,
	session *domain.Session,
	req driving.ChatRequest,
	response string,
) (*domain.Exchange, error) {
	exchange := &domain.Exchange{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		BookID:      req.BookID,
		UserID:      req.UserID,
		Mode:        req.Mode,
		UserMessage: req.Message,
		Response:    response,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.sessions.AppendExchange(ctx, exchange); err != nil {
		return nil, fmt.Errorf("persist exchange: %w", err)
	}
	return exchange, nil
}

// countTokens estimates with the configured counter, falling back to a
// crude word count when none is set.
func (s *ChatService) countTokens(text string) int {
	if s.counter != nil {
		return s.counter.Count(text)
	}
	return len(strings.Fields(text))
}

// segmentRefs records which segments grounded a response.
func segmentRefs(segments []domain.RetrievedSegment) []domain.SegmentRef {
	refs := make([]domain.SegmentRef, len(segments))
	for i, seg := range segments {
		refs[i] = domain.SegmentRef{
			SegmentID: seg.ID,
			Index:     seg.Index,
			Score:     seg.Score,
		}
	}
	return refs
}

// emit delivers an event to every sink, fire-and-forget. Sink errors
// are logged and never propagate.
func (s *ChatService) emit(ctx context.Context, event domain.Event) {
	for _, sink := range s.sinks {
		go func(sk driven.EventSink) {
			if err := sk.Emit(context.WithoutCancel(ctx), event); err != nil {
				logger.Warn("event sink failed", "type", string(event.Type), "error", err)
			}
		}(sink)
	}
}

// lockSession acquires the per-session lock, returning the unlock
// function.
func (s *ChatService) lockSession(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
