package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell-core/internal/adapters/driving/inbox"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driving/rest"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// shutdownGrace bounds draining in-flight requests on shutdown.
const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	Long: `Starts the HTTP API, the ingestion workers and, when configured,
the inbox watcher. Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(); err != nil {
		return err
	}
	if currentStack == nil {
		return errors.New("server requires the full stack, not injected services")
	}
	cfg := currentStack.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ingestion workers.
	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- ingestionService.Start(ctx)
	}()

	// Inbox watcher.
	var inboxDone chan error
	if cfg.Inbox.Enabled {
		watcher, err := inbox.New(libraryService, inbox.Config{
			Dir:         cfg.Inbox.Dir,
			OwnerID:     cfg.Inbox.Owner,
			SettleDelay: time.Duration(cfg.Inbox.SettleDelaySeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("inbox watcher: %w", err)
		}
		inboxDone = make(chan error, 1)
		go func() {
			inboxDone <- watcher.Run(ctx)
		}()
	}

	// HTTP server.
	server := rest.New(rest.Config{
		Addr:      cfg.Server.Addr,
		BodyLimit: cfg.Server.BodyLimit(),
	}, rest.Services{
		Library:   libraryService,
		Ingestion: ingestionService,
		Chat:      chatService,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Run()
	}()

	cmd.Printf("inkwell %s listening on %s\n", version, cfg.Server.Addr)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Drain HTTP first so nothing new reaches the pipeline, then let
	// the workers finish what they hold.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if err := <-ingestDone; err != nil {
		logger.Warn("ingestion shutdown", "error", err)
	}
	if inboxDone != nil {
		if err := <-inboxDone; err != nil {
			logger.Warn("inbox shutdown", "error", err)
		}
	}
	return nil
}
