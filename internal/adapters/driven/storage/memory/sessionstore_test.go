package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

func testMemSession(id, bookID, userID string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:        id,
		BookID:    bookID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testMemExchange(sessionID, userID string, tokens int) *domain.Exchange {
	return &domain.Exchange{
		ID:          "ex-" + sessionID + "-" + fmt.Sprint(tokens),
		SessionID:   sessionID,
		BookID:      "book-1",
		UserID:      userID,
		Mode:        domain.ModeKnowledge,
		UserMessage: "What does the pond symbolise?",
		Response:    "The pond stands for clarity and self-examination.",
		TokensUsed:  tokens,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestNewSessionStore(t *testing.T) {
	store := NewSessionStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.sessions)
	assert.NotNil(t, store.exchanges)
	assert.NotNil(t, store.budgets)
}

func TestSessionStore_SaveSession_RoundTrip(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))

	saved, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", saved.ID)
	assert.Equal(t, "book-1", saved.BookID)
	assert.Equal(t, "user-1", saved.UserID)
}

func TestSessionStore_GetSession_NotFound(t *testing.T) {
	store := NewSessionStore()

	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_ListSessions_FiltersByUserAndBook(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-2", "book-2", "user-1")))
	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-3", "book-1", "user-2")))

	all, err := store.ListSessions(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := store.ListSessions(ctx, "user-1", "book-1")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "sess-1", scoped[0].ID)
}

func TestSessionStore_ListSessions_MostRecentFirst(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	stale := testMemSession("sess-1", "book-1", "user-1")
	stale.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.SaveSession(ctx, stale))
	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-2", "book-1", "user-1")))

	sessions, err := store.ListSessions(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].ID)

	// A new exchange moves the stale session back to the front.
	require.NoError(t, store.AppendExchange(ctx, testMemExchange("sess-1", "user-1", 0)))

	sessions, err = store.ListSessions(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessions[0].ID)
}

func TestSessionStore_AppendExchange_SessionNotFound(t *testing.T) {
	store := NewSessionStore()

	err := store.AppendExchange(context.Background(), testMemExchange("missing", "user-1", 100))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_AppendExchange_ConsumesBudget(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	require.NoError(t, store.AppendExchange(ctx, testMemExchange("sess-1", "user-1", 180)))

	budget, err := store.GetBudget(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 180, budget.Used)
	assert.Equal(t, domain.DefaultTokenLimit-180, budget.Remaining())
}

func TestSessionStore_AppendExchange_BudgetExceeded(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	require.NoError(t, store.SetLimit(ctx, "user-1", 100))

	err := store.AppendExchange(ctx, testMemExchange("sess-1", "user-1", 500))

	var budgetErr *domain.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 100, budgetErr.Remaining)
	assert.Equal(t, 500, budgetErr.Required)

	// All or nothing: no exchange, no spend.
	history, err := store.GetExchanges(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	budget, err := store.GetBudget(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, budget.Used)
}

func TestSessionStore_AppendExchange_ZeroCostAlwaysSucceeds(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	require.NoError(t, store.SetLimit(ctx, "user-1", 0))

	// Refusals and fallbacks persist at zero cost even with no allowance.
	require.NoError(t, store.AppendExchange(ctx, testMemExchange("sess-1", "user-1", 0)))

	history, err := store.GetExchanges(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSessionStore_GetExchanges_Window(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	for i := 0; i < 5; i++ {
		exchange := testMemExchange("sess-1", "user-1", 0)
		exchange.ID = fmt.Sprintf("ex-%d", i)
		require.NoError(t, store.AppendExchange(ctx, exchange))
	}

	full, err := store.GetExchanges(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, full, 5)
	assert.Equal(t, "ex-0", full[0].ID)

	window, err := store.GetExchanges(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "ex-3", window[0].ID)
	assert.Equal(t, "ex-4", window[1].ID)
}

func TestSessionStore_GetExchanges_EmptySession(t *testing.T) {
	store := NewSessionStore()

	history, err := store.GetExchanges(context.Background(), "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSessionStore_GetBudget_DefaultsOnFirstUse(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	budget, err := store.GetBudget(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", budget.UserID)
	assert.Equal(t, domain.DefaultTokenLimit, budget.Limit)
	assert.Zero(t, budget.Used)
}

func TestSessionStore_SetLimit_PreservesUsage(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	require.NoError(t, store.SetLimit(ctx, "user-1", 1000))
	require.NoError(t, store.AppendExchange(ctx, testMemExchange("sess-1", "user-1", 400)))

	require.NoError(t, store.SetLimit(ctx, "user-1", 2000))

	budget, err := store.GetBudget(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2000, budget.Limit)
	assert.Equal(t, 400, budget.Used)
}

func TestSessionStore_Concurrency_BudgetNeverOverspent(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testMemSession("sess-1", "book-1", "user-1")))
	require.NoError(t, store.SetLimit(ctx, "user-1", 1000))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			exchange := testMemExchange("sess-1", "user-1", 100)
			exchange.ID = fmt.Sprintf("ex-%d", id)
			_ = store.AppendExchange(ctx, exchange)
		}(i)
	}
	wg.Wait()

	// Exactly ten 100-token exchanges fit in a 1000-token allowance.
	history, err := store.GetExchanges(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 10)

	budget, err := store.GetBudget(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, budget.Used)
}
