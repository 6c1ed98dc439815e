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
		Use:   "photosheet",
		Short: "Printable photo-ID sheet generator",
		Long: `Photosheet turns uploaded photos into printable sheets of document photos.

Pick a photo size, crop and adjust each image, optionally remove the
background, choose how many copies to print, and get an A4 PDF with cut
guides. Use the web API (serve) or build a sheet straight from files (sheet).`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSheetCmd())
	cmd.AddCommand(newFormatsCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}
