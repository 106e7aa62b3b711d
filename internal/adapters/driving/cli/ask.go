package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
)

var (
	askMode    string
	askSession string
	askUser    string
)

var askCmd = &cobra.Command{
	Use:   "ask [book-id] [question]",
	Short: "Ask a question about a book",
	Long: `Ask a single question about an ingested book. Pass --session to
continue an earlier conversation; without it a new session is started.

Modes: knowledge (default), author, coach, citation.`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMode, "mode", "m", string(domain.ModeKnowledge), "dialogue mode")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id to continue")
	askCmd.Flags().StringVarP(&askUser, "user", "u", "local", "owner id to act as")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := ensureServices(); err != nil {
		return err
	}

	exchange, err := chatService.SendMessage(context.Background(), driving.ChatRequest{
		UserID:    askUser,
		BookID:    args[0],
		SessionID: askSession,
		Mode:      domain.Mode(askMode),
		Message:   args[1],
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	cmd.Println(exchange.Response)

	if len(exchange.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range exchange.Citations {
			loc := "unknown location"
			switch {
			case c.Page > 0 && c.Chapter != "":
				loc = fmt.Sprintf("p. %d, %s", c.Page, c.Chapter)
			case c.Page > 0:
				loc = fmt.Sprintf("p. %d", c.Page)
			case c.Chapter != "":
				loc = c.Chapter
			}
			cmd.Printf("  [%s] %q\n", loc, c.Excerpt)
		}
	}

	cmd.Println()
	cmd.Printf("Session: %s (continue with -s %s)\n", exchange.SessionID, exchange.SessionID)
	return nil
}
