package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
)

// ==================== Test Services ====================

// setupTestServices installs mock services so commands run without a
// real stack. Tests needing custom behaviour replace the service vars
// after calling it; cleanup restores the originals either way.
func setupTestServices() func() {
	oldLibrary := libraryService
	oldIngestion := ingestionService
	oldChat := chatService

	libraryService = &cliMockLibrary{}
	ingestionService = &cliMockIngestion{}
	chatService = &cliMockChat{}

	return func() {
		libraryService = oldLibrary
		ingestionService = oldIngestion
		chatService = oldChat
	}
}

func testCLIBook(id string) *domain.Book {
	return &domain.Book{
		ID:               id,
		OwnerID:          "local",
		Title:            "Walden",
		Author:           "Henry David Thoreau",
		OriginalFilename: "walden.txt",
		FileType:         domain.FileTypePlain,
		FileSize:         1024,
		State:            domain.ProcessingCompleted,
		TotalChunks:      12,
		TotalWords:       3000,
		EstimatedPages:   12,
		EmbeddingModel:   "text-embedding-3-small",
		CreatedAt:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		ProcessedAt:      time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
	}
}

type cliMockLibrary struct {
	uploadFn   func(ctx context.Context, req driving.UploadRequest) (*domain.Book, error)
	getFn      func(ctx context.Context, ownerID, bookID string) (*domain.Book, error)
	listFn     func(ctx context.Context, ownerID string) ([]domain.Book, error)
	deleteFn   func(ctx context.Context, ownerID, bookID string) error
	downloadFn func(ctx context.Context, ownerID, bookID string) (string, error)
}

func (m *cliMockLibrary) Upload(ctx context.Context, req driving.UploadRequest) (*domain.Book, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, req)
	}
	book := testCLIBook("book-1")
	book.State = domain.ProcessingPending
	return book, nil
}

func (m *cliMockLibrary) Get(ctx context.Context, ownerID, bookID string) (*domain.Book, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, bookID)
	}
	return testCLIBook(bookID), nil
}

func (m *cliMockLibrary) List(ctx context.Context, ownerID string) ([]domain.Book, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return []domain.Book{*testCLIBook("book-1")}, nil
}

func (m *cliMockLibrary) Delete(ctx context.Context, ownerID, bookID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, bookID)
	}
	return nil
}

func (m *cliMockLibrary) DownloadURL(ctx context.Context, ownerID, bookID string) (string, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, ownerID, bookID)
	}
	return "file:///tmp/blobs/" + bookID, nil
}

type cliMockIngestion struct {
	enqueueFn   func(ctx context.Context, bookID string) error
	reprocessFn func(ctx context.Context, bookID string) error
	statusFn    func(ctx context.Context, bookID string) (*driving.IngestStatus, error)
}

func (m *cliMockIngestion) Enqueue(ctx context.Context, bookID string) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, bookID)
	}
	return nil
}

func (m *cliMockIngestion) Reprocess(ctx context.Context, bookID string) error {
	if m.reprocessFn != nil {
		return m.reprocessFn(ctx, bookID)
	}
	return nil
}

func (m *cliMockIngestion) Status(ctx context.Context, bookID string) (*driving.IngestStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, bookID)
	}
	return &driving.IngestStatus{
		BookID:      bookID,
		State:       domain.ProcessingCompleted,
		TotalChunks: 12,
		ProcessedAt: time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
	}, nil
}

func (m *cliMockIngestion) Start(context.Context) error { return nil }

func (m *cliMockIngestion) Stop() error { return nil }

type cliMockChat struct {
	sendFn     func(ctx context.Context, req driving.ChatRequest) (*domain.Exchange, error)
	historyFn  func(ctx context.Context, userID, sessionID string) ([]domain.Exchange, error)
	sessionsFn func(ctx context.Context, userID, bookID string) ([]domain.Session, error)
}

func (m *cliMockChat) SendMessage(ctx context.Context, req driving.ChatRequest) (*domain.Exchange, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, req)
	}
	return &domain.Exchange{
		ID:          "exch-1",
		SessionID:   "sess-1",
		BookID:      req.BookID,
		UserID:      req.UserID,
		Mode:        req.Mode,
		UserMessage: req.Message,
		Response:    "Thoreau went to the woods to live deliberately.",
		TokensUsed:  180,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (m *cliMockChat) History(ctx context.Context, userID, sessionID string) ([]domain.Exchange, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, sessionID)
	}
	return nil, nil
}

func (m *cliMockChat) Sessions(ctx context.Context, userID, bookID string) ([]domain.Session, error) {
	if m.sessionsFn != nil {
		return m.sessionsFn(ctx, userID, bookID)
	}
	return nil, nil
}

// ==================== Root Command Tests ====================

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "inkwell", rootCmd.Use)
}

func TestRootCmd_Short(t *testing.T) {
	assert.Equal(t, "Chat with your books", rootCmd.Short)
}

func TestRootCmd_HasConfigFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag, "config flag should exist")
	assert.Equal(t, "c", flag.Shorthand)
}

func TestRootCmd_HasVerboseFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag, "verbose flag should exist")
	assert.Equal(t, "v", flag.Shorthand)
	assert.Equal(t, "false", flag.DefValue)
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"add", "ask", "books", "serve", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
