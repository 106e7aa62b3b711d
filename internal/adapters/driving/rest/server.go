// Package rest exposes the library and chat services over HTTP.
package rest

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Server defaults.
const (
	// DefaultAddr is the listen address.
	DefaultAddr = ":8000"

	// DefaultBodyLimit caps upload size (default: 50 MiB, enough for a
	// scanned PDF).
	DefaultBodyLimit = 50 << 20

	// DefaultReadTimeout bounds reading one request.
	DefaultReadTimeout = 2 * time.Minute
)

// Config holds configuration for the HTTP server.
type Config struct {
	// Addr is the listen address (default: ":8000").
	Addr string

	// BodyLimit caps the request body size in bytes.
	BodyLimit int

	// ReadTimeout bounds reading one request.
	ReadTimeout time.Duration
}

// Services are the driving ports the server exposes.
type Services struct {
	Library   driving.LibraryService
	Ingestion driving.IngestionService
	Chat      driving.ChatService
}

// Server serves the REST API.
type Server struct {
	app  *fiber.App
	addr string
}

// New creates the server and registers all routes.
func New(cfg Config, services Services) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	app := fiber.New(fiber.Config{
		AppName:               "inkwell",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	server := &Server{app: app, addr: cfg.Addr}
	server.routes(services)
	return server
}

func (s *Server) routes(services Services) {
	var (
		books = newBookHandler(services.Library, services.Ingestion)
		chat  = newChatHandler(services.Chat)

		check = s.app.Group("/check")
		apiv1 = s.app.Group("/api/v1", requireUser)
	)

	check.Get("/healthy", handleHealthy)

	apiv1.Post("/books", books.handleUpload)
	apiv1.Get("/books", books.handleList)
	apiv1.Get("/books/:id", books.handleGet)
	apiv1.Delete("/books/:id", books.handleDelete)
	apiv1.Get("/books/:id/download", books.handleDownloadURL)
	apiv1.Post("/books/:id/ingest", books.handleIngest)
	apiv1.Get("/books/:id/status", books.handleStatus)

	apiv1.Post("/chat", chat.handleMessage)
	apiv1.Get("/chat/history/:session_id", chat.handleHistory)
	apiv1.Get("/chat/sessions", chat.handleSessions)
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	logger.Info("http server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleHealthy reports liveness.
func handleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "service": "inkwell"})
}
