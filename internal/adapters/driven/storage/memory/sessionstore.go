package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure SessionStore implements both interfaces. Budgets live in the
// same store because AppendExchange must consume tokens and persist
// the exchange under one lock.
var (
	_ driven.SessionStore = (*SessionStore)(nil)
	_ driven.BudgetStore  = (*SessionStore)(nil)
)

// SessionStore is an in-memory implementation of driven.SessionStore
// and driven.BudgetStore.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]domain.Session
	exchanges map[string][]domain.Exchange
	budgets   map[string]domain.TokenBudget
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]domain.Session),
		exchanges: make(map[string][]domain.Exchange),
		budgets:   make(map[string]domain.TokenBudget),
	}
}

// SaveSession stores or updates a session.
func (s *SessionStore) SaveSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

// ListSessions returns a user's sessions for a book, most recent first.
func (s *SessionStore) ListSessions(_ context.Context, userID, bookID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Session
	for id := range s.sessions {
		session := s.sessions[id]
		if session.UserID != userID {
			continue
		}
		if bookID != "" && session.BookID != bookID {
			continue
		}
		result = append(result, session)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// AppendExchange persists an exchange and consumes the user's budget
// under one lock. A budget that cannot absorb the spend fails the whole
// append.
func (s *SessionStore) AppendExchange(_ context.Context, exchange *domain.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[exchange.SessionID]
	if !ok {
		return domain.ErrNotFound
	}

	if exchange.TokensUsed > 0 {
		budget := s.budgetLocked(exchange.UserID)
		if !budget.Covers(exchange.TokensUsed) {
			return &domain.BudgetExceededError{
				UserID:    exchange.UserID,
				Remaining: budget.Remaining(),
				Required:  exchange.TokensUsed,
			}
		}
		budget.Used += exchange.TokensUsed
		budget.UpdatedAt = time.Now().UTC()
		s.budgets[exchange.UserID] = budget
	}

	s.exchanges[exchange.SessionID] = append(s.exchanges[exchange.SessionID], *exchange)
	session.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = session
	return nil
}

// GetExchanges returns a session's exchanges ordered oldest first,
// trimmed to the most recent limit entries when limit is positive.
func (s *SessionStore) GetExchanges(_ context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.exchanges[sessionID]
	if limit > 0 && len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}
	result := make([]domain.Exchange, len(stored))
	copy(result, stored)
	return result, nil
}

// GetBudget retrieves a user's budget, creating a default record on
// first use.
func (s *SessionStore) GetBudget(_ context.Context, userID string) (*domain.TokenBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget := s.budgetLocked(userID)
	s.budgets[userID] = budget
	return &budget, nil
}

// SetLimit replaces a user's allowance.
func (s *SessionStore) SetLimit(_ context.Context, userID string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget := s.budgetLocked(userID)
	budget.Limit = limit
	budget.UpdatedAt = time.Now().UTC()
	s.budgets[userID] = budget
	return nil
}

// budgetLocked returns the user's budget, defaulting a fresh one.
// Callers must hold the lock.
func (s *SessionStore) budgetLocked(userID string) domain.TokenBudget {
	if budget, ok := s.budgets[userID]; ok {
		return budget
	}
	return domain.TokenBudget{
		UserID:    userID,
		Limit:     domain.DefaultTokenLimit,
		UpdatedAt: time.Now().UTC(),
	}
}
