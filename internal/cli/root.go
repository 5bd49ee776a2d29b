// Package cli provides the command-line interface for sitechat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat/internal/app"
	"github.com/raphaelgruber/sitechat/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Built by PersistentPreRunE, closed by PersistentPostRun.
	application *app.App
	logCleanup  func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sitechat",
	Short: "Website knowledge base with retrieval-augmented answers",
	Long: `Sitechat crawls a website (or extracts local .txt/.pdf files), splits the
text into overlapping chunks, embeds them into a vector index and answers
questions from the most relevant chunks with a language model.

Configuration comes from the environment (a .env file is read first) and
optionally a YAML file named by SITECHAT_CONFIG.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// No services for version and help
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		var logger *slog.Logger
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		application, err = app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("start sitechat: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeApp()
	},
}

func closeApp() {
	if application != nil {
		if err := application.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to shut down cleanly: %v\n", err)
		}
		application = nil
	}
	if logCleanup != nil {
		_ = logCleanup()
		logCleanup = nil
	}
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	// PostRun is skipped when RunE fails.
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sessionsCmd)
}
