package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
)

// chatHandler serves the conversation endpoints.
type chatHandler struct {
	chat driving.ChatService
}

func newChatHandler(chat driving.ChatService) *chatHandler {
	return &chatHandler{chat: chat}
}

// handleMessage runs one chat turn and returns the exchange.
func (h *chatHandler) handleMessage(c *fiber.Ctx) error {
	var req chatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return newAPIError(fiber.StatusBadRequest, "invalid JSON request")
	}
	if err := checkStruct(&req); err != nil {
		return err
	}

	mode := domain.Mode(req.Mode)
	if req.Mode == "" {
		mode = domain.ModeKnowledge
	}

	exchange, err := h.chat.SendMessage(c.UserContext(), driving.ChatRequest{
		UserID:    currentUser(c),
		BookID:    req.BookID,
		SessionID: req.SessionID,
		Mode:      mode,
		Message:   req.Message,
	})
	if err != nil {
		return err
	}

	return c.JSON(newExchangeResponse(exchange))
}

// handleHistory returns a session's exchanges flattened into messages,
// oldest first.
func (h *chatHandler) handleHistory(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")

	exchanges, err := h.chat.History(c.UserContext(), currentUser(c), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(newHistoryResponse(sessionID, exchanges))
}

// handleSessions lists the user's sessions, optionally scoped to one
// book via ?book_id=.
func (h *chatHandler) handleSessions(c *fiber.Ctx) error {
	sessions, err := h.chat.Sessions(c.UserContext(), currentUser(c), c.Query("book_id"))
	if err != nil {
		return err
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			SessionID: s.ID,
			BookID:    s.BookID,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return c.JSON(resp)
}
