// Package cli implements the inkwell command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Services the commands run against. Set by ensureServices on first
// use; tests inject their own.
var (
	libraryService   driving.LibraryService
	ingestionService driving.IngestionService
	chatService      driving.ChatService

	// stackCleanup tears down whatever ensureServices built.
	stackCleanup func()
)

// Persistent flags.
var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Chat with your books",
	Long: `Inkwell ingests books (PDF, EPUB, plain text) into a searchable
knowledge base and answers questions about them, grounded in the text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.SetVerbose(verbose)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if stackCleanup != nil {
			stackCleanup()
			stackCleanup = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: inkwell.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
