package rest

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
)

// bookHandler serves the library endpoints.
type bookHandler struct {
	library   driving.LibraryService
	ingestion driving.IngestionService
}

func newBookHandler(library driving.LibraryService, ingestion driving.IngestionService) *bookHandler {
	return &bookHandler{library: library, ingestion: ingestion}
}

// handleUpload accepts a multipart book upload. The file goes in the
// "file" field; title, author and language are optional form values.
func (h *bookHandler) handleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return newAPIError(fiber.StatusBadRequest, "multipart 'file' field is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return newAPIError(fiber.StatusBadRequest, "unreadable upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return newAPIError(fiber.StatusBadRequest, "unreadable upload")
	}

	book, err := h.library.Upload(c.UserContext(), driving.UploadRequest{
		OwnerID:  currentUser(c),
		Filename: fileHeader.Filename,
		Title:    c.FormValue("title"),
		Author:   c.FormValue("author"),
		Language: c.FormValue("language"),
		Data:     data,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(newBookResponse(book))
}

func (h *bookHandler) handleList(c *fiber.Ctx) error {
	books, err := h.library.List(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}

	resp := bookListResponse{
		Books: make([]bookResponse, 0, len(books)),
		Total: len(books),
	}
	for i := range books {
		resp.Books = append(resp.Books, newBookResponse(&books[i]))
	}
	return c.JSON(resp)
}

func (h *bookHandler) handleGet(c *fiber.Ctx) error {
	book, err := h.library.Get(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(newBookResponse(book))
}

func (h *bookHandler) handleDelete(c *fiber.Ctx) error {
	if err := h.library.Delete(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(successResponse{Success: true, Message: "book deleted"})
}

func (h *bookHandler) handleDownloadURL(c *fiber.Ctx) error {
	url, err := h.library.DownloadURL(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(downloadResponse{URL: url})
}

// handleIngest queues a fresh ingestion run. A book already queued or
// mid-run yields 409 through the error mapping.
func (h *bookHandler) handleIngest(c *fiber.Ctx) error {
	bookID := c.Params("id")

	// Ownership check before touching the pipeline.
	if _, err := h.library.Get(c.UserContext(), currentUser(c), bookID); err != nil {
		return err
	}

	if err := h.ingestion.Reprocess(c.UserContext(), bookID); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(acceptedResponse{BookID: bookID, Status: "accepted"})
}

func (h *bookHandler) handleStatus(c *fiber.Ctx) error {
	bookID := c.Params("id")

	if _, err := h.library.Get(c.UserContext(), currentUser(c), bookID); err != nil {
		return err
	}

	status, err := h.ingestion.Status(c.UserContext(), bookID)
	if err != nil {
		return err
	}
	return c.JSON(newIngestStatusResponse(status))
}
