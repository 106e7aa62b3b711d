package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// bookUser is the owner the CLI acts as. Local single-user installs
// keep the default.
var bookUser string

// reprocessTimeout bounds how long reprocess waits for the pipeline.
var reprocessTimeout time.Duration

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Manage uploaded books",
	Long:  `List, inspect, reprocess or remove books in the library.`,
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books",
	Args:  cobra.NoArgs,
	RunE:  runBooksList,
}

var booksGetCmd = &cobra.Command{
	Use:   "get [book-id]",
	Short: "Show book details",
	Args:  cobra.ExactArgs(1),
	RunE:  runBooksGet,
}

var booksRemoveCmd = &cobra.Command{
	Use:   "rm [book-id]",
	Short: "Delete a book and its index",
	Args:  cobra.ExactArgs(1),
	RunE:  runBooksRemove,
}

var booksReprocessCmd = &cobra.Command{
	Use:   "reprocess [book-id]",
	Short: "Re-run ingestion for a book",
	Long: `Re-extract, re-chunk and re-embed a book, rebuilding its vector
index from scratch. Useful after a failed ingestion or an embedding
model change.`,
	Args: cobra.ExactArgs(1),
	RunE: runBooksReprocess,
}

func init() {
	booksCmd.PersistentFlags().StringVarP(&bookUser, "user", "u", "local", "owner id to act as")
	booksReprocessCmd.Flags().DurationVar(&reprocessTimeout, "timeout", 10*time.Minute, "how long to wait for ingestion")

	booksCmd.AddCommand(booksListCmd)
	booksCmd.AddCommand(booksGetCmd)
	booksCmd.AddCommand(booksRemoveCmd)
	booksCmd.AddCommand(booksReprocessCmd)
	rootCmd.AddCommand(booksCmd)
}

func runBooksList(cmd *cobra.Command, _ []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	books, err := libraryService.List(context.Background(), bookUser)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}

	if len(books) == 0 {
		cmd.Println("No books uploaded yet.")
		return nil
	}

	cmd.Println("Books:")
	cmd.Println()
	for i := range books {
		b := &books[i]
		cmd.Printf("  %s\n", b.ID)
		cmd.Printf("    Title:  %s\n", b.Title)
		if b.Author != "" {
			cmd.Printf("    Author: %s\n", b.Author)
		}
		cmd.Printf("    State:  %s\n", b.State)
		if b.TotalChunks > 0 {
			cmd.Printf("    Chunks: %d (%d pages approx.)\n", b.TotalChunks, b.EstimatedPages)
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d books\n", len(books))
	return nil
}

func runBooksGet(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	book, err := libraryService.Get(context.Background(), bookUser, args[0])
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}

	cmd.Printf("Book: %s\n\n", book.ID)
	cmd.Printf("  Title:     %s\n", book.Title)
	if book.Author != "" {
		cmd.Printf("  Author:    %s\n", book.Author)
	}
	cmd.Printf("  File:      %s (%s, %d bytes)\n", book.OriginalFilename, book.FileType, book.FileSize)
	cmd.Printf("  State:     %s\n", book.State)
	if book.ProcessingError != "" {
		cmd.Printf("  Error:     %s\n", book.ProcessingError)
	}
	if book.TotalChunks > 0 {
		cmd.Printf("  Chunks:    %d\n", book.TotalChunks)
		cmd.Printf("  Words:     %d\n", book.TotalWords)
		cmd.Printf("  Pages:     ~%d\n", book.EstimatedPages)
		cmd.Printf("  Embedding: %s\n", book.EmbeddingModel)
	}
	cmd.Printf("  Uploaded:  %s\n", book.CreatedAt.Format("2006-01-02 15:04:05"))
	if !book.ProcessedAt.IsZero() {
		cmd.Printf("  Processed: %s\n", book.ProcessedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runBooksRemove(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	if err := libraryService.Delete(context.Background(), bookUser, args[0]); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	cmd.Printf("Book %s deleted.\n", args[0])
	return nil
}

func runBooksReprocess(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), reprocessTimeout)
	defer cancel()

	// Ownership check before touching the pipeline.
	book, err := libraryService.Get(ctx, bookUser, args[0])
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- ingestionService.Start(ctx)
	}()
	defer func() {
		_ = ingestionService.Stop()
		<-workersDone
	}()

	if err := ingestionService.Reprocess(ctx, book.ID); err != nil {
		return fmt.Errorf("reprocess: %w", err)
	}

	cmd.Printf("Reprocessing %q...\n", book.Title)

	status, err := waitForIngestion(ctx, book.ID, reprocessTimeout)
	if err != nil {
		return err
	}

	if status.State == domain.ProcessingFailed {
		return fmt.Errorf("ingestion failed: %s", status.Error)
	}

	cmd.Printf("Done. %d chunks indexed.\n", status.TotalChunks)
	return nil
}
