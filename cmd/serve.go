package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/photosheet/internal/config"
	"github.com/lehigh-university-libraries/photosheet/internal/handlers"
	"github.com/lehigh-university-libraries/photosheet/internal/session"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var skipBackground bool
	var defaultQuantity int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the photo sheet API server",
		Long: `Starts the Photosheet JSON API on the specified port.

Clients create a session, upload photos, drive the editor with gesture
operations, remove backgrounds, set quantities and download the PDF sheet.`,
		Example: `  # Start server on default port 8888
  photosheet serve

  # Start server on custom port, skipping the background removal step
  photosheet serve --port 3000 --skip-background`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := sessionOptions()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("skip-background") {
				opts.Flow.SkipBackgroundRemoval = skipBackground
			}
			if cmd.Flags().Changed("default-quantity") {
				opts.Flow.DefaultQuantity = defaultQuantity
			}

			handler := handlers.New(opts)
			defer handler.Close()

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Routes(),
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Photosheet API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().BoolVar(&skipBackground, "skip-background", false, "Skip the background removal step")
	cmd.Flags().IntVar(&defaultQuantity, "default-quantity", 1, "Copies per newly uploaded photo")

	return cmd
}

// sessionOptions builds session collaborators from the environment.
func sessionOptions() (session.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return session.Options{}, err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return session.Options{}, err
	}
	blobs, err := cfg.Blobs()
	if err != nil {
		return session.Options{}, err
	}
	detector, err := cfg.Detector()
	if err != nil {
		return session.Options{}, err
	}
	slog.Debug("Configuration loaded",
		"dpi", cfg.DPI,
		"formats", catalog.Len(),
		"uploads_dir", cfg.UploadsDir,
		"saliency", cfg.SaliencyProvider,
		"background_url", cfg.BackgroundURL)
	return session.Options{
		Catalog:   catalog,
		DPI:       cfg.DPI,
		Flow:      cfg.Flow(),
		Blobs:     blobs,
		Detector:  detector,
		Segmenter: cfg.Segmenter(),
	}, nil
}
