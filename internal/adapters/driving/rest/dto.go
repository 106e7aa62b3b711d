package rest

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
)

var validate = validator.New()

// checkStruct runs tag validation and reports failures per field.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	valErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(valErrs))
	for _, e := range valErrs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return newValidationError(fields)
}

// chatMessageRequest is one chat turn.
type chatMessageRequest struct {
	BookID    string `json:"book_id" validate:"required"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Message   string `json:"message" validate:"required"`
}

// bookResponse is the wire form of a book.
type bookResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Author           string    `json:"author,omitempty"`
	Language         string    `json:"language,omitempty"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	State            string    `json:"state"`
	ProcessingError  string    `json:"processing_error,omitempty"`
	TotalChunks      int       `json:"total_chunks"`
	TotalWords       int       `json:"total_words"`
	EstimatedPages   int       `json:"estimated_pages"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessedAt      string    `json:"processed_at,omitempty"`
}

func newBookResponse(book *domain.Book) bookResponse {
	resp := bookResponse{
		ID:               book.ID,
		Title:            book.Title,
		Author:           book.Author,
		Language:         book.Language,
		OriginalFilename: book.OriginalFilename,
		FileType:         string(book.FileType),
		FileSize:         book.FileSize,
		State:            string(book.State),
		ProcessingError:  book.ProcessingError,
		TotalChunks:      book.TotalChunks,
		TotalWords:       book.TotalWords,
		EstimatedPages:   book.EstimatedPages,
		CreatedAt:        book.CreatedAt,
	}
	if !book.ProcessedAt.IsZero() {
		resp.ProcessedAt = book.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

// bookListResponse wraps the owner's books.
type bookListResponse struct {
	Books []bookResponse `json:"books"`
	Total int            `json:"total"`
}

// ingestStatusResponse reports a book's ingestion state.
type ingestStatusResponse struct {
	BookID      string `json:"book_id"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	TotalChunks int    `json:"total_chunks"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

func newIngestStatusResponse(status *driving.IngestStatus) ingestStatusResponse {
	resp := ingestStatusResponse{
		BookID:      status.BookID,
		State:       string(status.State),
		Error:       status.Error,
		TotalChunks: status.TotalChunks,
	}
	if !status.ProcessedAt.IsZero() {
		resp.ProcessedAt = status.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

// citationResponse is one source reference on a reply.
type citationResponse struct {
	Page    int     `json:"page,omitempty"`
	Chapter string  `json:"chapter,omitempty"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// segmentRefResponse names one segment that grounded a reply.
type segmentRefResponse struct {
	SegmentID string  `json:"segment_id"`
	Index     int     `json:"index"`
	Score     float64 `json:"score"`
}

// exchangeResponse is the wire form of one chat turn.
type exchangeResponse struct {
	ID          string               `json:"id"`
	SessionID   string               `json:"session_id"`
	BookID      string               `json:"book_id"`
	Mode        string               `json:"mode"`
	UserMessage string               `json:"user_message"`
	Response    string               `json:"response"`
	Context     []segmentRefResponse `json:"context,omitempty"`
	Citations   []citationResponse   `json:"citations,omitempty"`
	TokensUsed  int                  `json:"tokens_used"`
	CreatedAt   time.Time            `json:"created_at"`
}

func newExchangeResponse(exchange *domain.Exchange) exchangeResponse {
	resp := exchangeResponse{
		ID:          exchange.ID,
		SessionID:   exchange.SessionID,
		BookID:      exchange.BookID,
		Mode:        string(exchange.Mode),
		UserMessage: exchange.UserMessage,
		Response:    exchange.Response,
		TokensUsed:  exchange.TokensUsed,
		CreatedAt:   exchange.CreatedAt,
	}
	for _, ref := range exchange.Context {
		resp.Context = append(resp.Context, segmentRefResponse{
			SegmentID: ref.SegmentID,
			Index:     ref.Index,
			Score:     ref.Score,
		})
	}
	for _, cit := range exchange.Citations {
		resp.Citations = append(resp.Citations, citationResponse{
			Page:    cit.Page,
			Chapter: cit.Chapter,
			Excerpt: cit.Excerpt,
			Score:   cit.Score,
		})
	}
	return resp
}

// messageResponse is one side of an exchange in a history listing.
type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// historyResponse is a session's exchanges flattened into messages.
type historyResponse struct {
	SessionID string            `json:"session_id"`
	BookID    string            `json:"book_id,omitempty"`
	Messages  []messageResponse `json:"messages"`
	Total     int               `json:"total"`
}

func newHistoryResponse(sessionID string, exchanges []domain.Exchange) historyResponse {
	resp := historyResponse{
		SessionID: sessionID,
		Messages:  make([]messageResponse, 0, len(exchanges)*2),
	}
	for _, ex := range exchanges {
		resp.BookID = ex.BookID
		resp.Messages = append(resp.Messages,
			messageResponse{Role: "user", Content: ex.UserMessage, CreatedAt: ex.CreatedAt},
			messageResponse{Role: "assistant", Content: ex.Response, CreatedAt: ex.CreatedAt},
		)
	}
	resp.Total = len(resp.Messages)
	return resp
}

// sessionResponse summarises one conversation.
type sessionResponse struct {
	SessionID string    `json:"session_id"`
	BookID    string    `json:"book_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// downloadResponse carries a presigned URL.
type downloadResponse struct {
	URL string `json:"url"`
}

// successResponse acknowledges a mutation with no payload.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// acceptedResponse acknowledges a queued ingestion run.
type acceptedResponse struct {
	BookID string `json:"book_id"`
	Status string `json:"status"`
}
