package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "vd17harvest",
		Short: "Build labeled OCR text corpora from an OAI-PMH repository",
		Long: `vd17harvest harvests digitized historical prints from a library's OAI-PMH
repository, classifies each record by its MODS genre terms against a controlled
genre vocabulary, and downloads the OCR full text of a bounded, balanced
selection into a labeled CSV dataset suitable for training text classifiers.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newHarvestCmd())

	return cmd
}
