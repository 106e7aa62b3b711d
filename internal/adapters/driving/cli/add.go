package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
)

// pollInterval is how often add checks ingestion progress.
const pollInterval = 500 * time.Millisecond

var (
	addTitle    string
	addAuthor   string
	addLanguage string
	addUser     string
	addTimeout  time.Duration
)

var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Upload a book and wait for ingestion",
	Long: `Upload a PDF, EPUB or plain-text file, then run the ingestion
pipeline and wait until the book is ready for chat.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "book title (defaults to the filename)")
	addCmd.Flags().StringVarP(&addAuthor, "author", "a", "", "book author")
	addCmd.Flags().StringVarP(&addLanguage, "language", "l", "", "language hint (ISO 639-1)")
	addCmd.Flags().StringVarP(&addUser, "user", "u", "local", "owner id to act as")
	addCmd.Flags().DurationVar(&addTimeout, "timeout", 10*time.Minute, "how long to wait for ingestion")

	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), addTimeout)
	defer cancel()

	// One-shot commands run the workers only for their own lifetime.
	workersDone := make(chan error, 1)
	go func() {
		workersDone <- ingestionService.Start(ctx)
	}()
	defer func() {
		_ = ingestionService.Stop()
		<-workersDone
	}()

	book, err := libraryService.Upload(ctx, driving.UploadRequest{
		OwnerID:  addUser,
		Filename: filepath.Base(args[0]),
		Title:    addTitle,
		Author:   addAuthor,
		Language: addLanguage,
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	cmd.Printf("Uploaded %q as %s, ingesting...\n", book.Title, book.ID)

	status, err := waitForIngestion(ctx, book.ID, addTimeout)
	if err != nil {
		return err
	}

	if status.State == domain.ProcessingFailed {
		return fmt.Errorf("ingestion failed: %s", status.Error)
	}

	cmd.Printf("Done. %d chunks indexed.\n", status.TotalChunks)
	cmd.Printf("Chat with it: inkwell ask %s \"your question\"\n", book.ID)
	return nil
}

// waitForIngestion polls until the book reaches a terminal state or the
// context expires.
func waitForIngestion(ctx context.Context, bookID string, timeout time.Duration) (*driving.IngestStatus, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := ingestionService.Status(ctx, bookID)
		if err != nil {
			return nil, fmt.Errorf("ingestion status: %w", err)
		}
		if status.State == domain.ProcessingCompleted || status.State == domain.ProcessingFailed {
			return status, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("ingestion still running after %s; check later with: inkwell books get %s", timeout, bookID)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
