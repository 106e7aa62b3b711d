package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// sessionStore implements driven.SessionStore.
type sessionStore struct {
	store *Store
}

var _ driven.SessionStore = (*sessionStore)(nil)

// SaveSession stores or updates a session.
func (s *sessionStore) SaveSession(ctx context.Context, session *domain.Session) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, book_id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at
	`, session.ID, session.BookID, session.UserID, session.CreatedAt, session.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *sessionStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, book_id, user_id, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	var session domain.Session
	if err := row.Scan(&session.ID, &session.BookID, &session.UserID,
		&session.CreatedAt, &session.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &session, nil
}

// ListSessions returns a user's sessions, most recent first. An empty
// bookID returns sessions across all books.
func (s *sessionStore) ListSessions(ctx context.Context, userID, bookID string) ([]domain.Session, error) {
	query := `
		SELECT id, book_id, user_id, created_at, updated_at
		FROM sessions WHERE user_id = ?`
	args := []any{userID}
	if bookID != "" {
		query += " AND book_id = ?"
		args = append(args, bookID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session //nolint:prealloc // size unknown from query
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.ID, &session.BookID, &session.UserID,
			&session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// AppendExchange persists an exchange and consumes the user's token
// budget in one transaction. A failed budget check rolls back the
// exchange insert, so partial writes cannot occur.
func (s *sessionStore) AppendExchange(ctx context.Context, exchange *domain.Exchange) error {
	now := time.Now().UTC()
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = now
	}

	contextJSON, err := json.Marshal(exchange.Context)
	if err != nil {
		return fmt.Errorf("marshalling context refs: %w", err)
	}
	citationsJSON, err := json.Marshal(exchange.Citations)
	if err != nil {
		return fmt.Errorf("marshalling citations: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Touch the session; zero rows means it does not exist.
	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", now, exchange.SessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking session update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	if exchange.TokensUsed > 0 {
		if err := consumeBudget(ctx, tx, exchange.UserID, exchange.TokensUsed, now); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exchanges (id, session_id, book_id, user_id, mode, user_message,
			response, context, citations, prompt_tokens, completion_tokens, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exchange.ID, exchange.SessionID, exchange.BookID, exchange.UserID,
		string(exchange.Mode), exchange.UserMessage, exchange.Response,
		string(contextJSON), string(citationsJSON),
		exchange.PromptTokens, exchange.CompletionTokens, exchange.TokensUsed, exchange.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving exchange: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// consumeBudget deducts tokens inside the caller's transaction. The
// guard on the UPDATE keeps the budget from going over its limit even
// under concurrent spends.
func consumeBudget(ctx context.Context, tx *sql.Tx, userID string, amount int, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO budgets (user_id, token_limit, used, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, domain.DefaultTokenLimit, now)
	if err != nil {
		return fmt.Errorf("ensuring budget: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE budgets SET used = used + ?, updated_at = ?
		WHERE user_id = ? AND used + ? <= token_limit
	`, amount, now, userID, amount)
	if err != nil {
		return fmt.Errorf("consuming budget: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking budget update: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var limit, used int
	if err := tx.QueryRowContext(ctx,
		"SELECT token_limit, used FROM budgets WHERE user_id = ?", userID).
		Scan(&limit, &used); err != nil {
		return fmt.Errorf("reading budget: %w", err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &domain.BudgetExceededError{
		UserID:    userID,
		Remaining: remaining,
		Required:  amount,
	}
}

// GetExchanges returns a session's exchanges ordered oldest first.
// A positive limit keeps only the most recent N.
func (s *sessionStore) GetExchanges(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	// rowid reflects insertion order, which breaks created_at ties.
	query := `
		SELECT id, session_id, book_id, user_id, mode, user_message, response,
			context, citations, prompt_tokens, completion_tokens, tokens_used, created_at
		FROM exchanges WHERE session_id = ?
		ORDER BY rowid ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
		SELECT id, session_id, book_id, user_id, mode, user_message, response,
			context, citations, prompt_tokens, completion_tokens, tokens_used, created_at
		FROM (
			SELECT rowid AS rid, id, session_id, book_id, user_id, mode, user_message, response,
				context, citations, prompt_tokens, completion_tokens, tokens_used, created_at
			FROM exchanges WHERE session_id = ?
			ORDER BY rid DESC LIMIT ?
		) ORDER BY rid ASC`
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []domain.Exchange //nolint:prealloc // size unknown from query
	for rows.Next() {
		exchange, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, *exchange)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exchanges: %w", err)
	}
	return exchanges, nil
}

// scanExchange scans an exchange from *sql.Rows.
func scanExchange(rows *sql.Rows) (*domain.Exchange, error) {
	var exchange domain.Exchange
	var mode, contextJSON, citationsJSON string

	if err := rows.Scan(&exchange.ID, &exchange.SessionID, &exchange.BookID, &exchange.UserID,
		&mode, &exchange.UserMessage, &exchange.Response, &contextJSON, &citationsJSON,
		&exchange.PromptTokens, &exchange.CompletionTokens, &exchange.TokensUsed,
		&exchange.CreatedAt); err != nil {
		return nil, fmt.Errorf("scanning exchange: %w", err)
	}

	exchange.Mode = domain.Mode(mode)
	if err := json.Unmarshal([]byte(contextJSON), &exchange.Context); err != nil {
		return nil, fmt.Errorf("unmarshalling context refs: %w", err)
	}
	if err := json.Unmarshal([]byte(citationsJSON), &exchange.Citations); err != nil {
		return nil, fmt.Errorf("unmarshalling citations: %w", err)
	}
	return &exchange, nil
}

// budgetStore implements driven.BudgetStore.
type budgetStore struct {
	store *Store
}

var _ driven.BudgetStore = (*budgetStore)(nil)

// GetBudget retrieves a user's budget, creating the default record on
// first use.
func (s *budgetStore) GetBudget(ctx context.Context, userID string) (*domain.TokenBudget, error) {
	budget, err := s.readBudget(ctx, userID)
	if err == nil {
		return budget, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, token_limit, used, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, domain.DefaultTokenLimit, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("creating budget: %w", err)
	}

	return s.readBudget(ctx, userID)
}

// SetLimit replaces a user's allowance.
func (s *budgetStore) SetLimit(ctx context.Context, userID string, limit int) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, token_limit, used, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			token_limit = excluded.token_limit,
			updated_at = excluded.updated_at
	`, userID, limit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting budget limit: %w", err)
	}
	return nil
}

// readBudget fetches the stored budget row.
func (s *budgetStore) readBudget(ctx context.Context, userID string) (*domain.TokenBudget, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT user_id, token_limit, used, updated_at FROM budgets WHERE user_id = ?", userID)

	var budget domain.TokenBudget
	if err := row.Scan(&budget.UserID, &budget.Limit, &budget.Used, &budget.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning budget: %w", err)
	}
	return &budget, nil
}
