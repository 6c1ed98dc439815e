package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/lehigh-university-libraries/photosheet/internal/manifest"
	"github.com/lehigh-university-libraries/photosheet/internal/session"
	"github.com/spf13/cobra"
)

// sheetInput is one photo argument, "path" or "path=copies".
type sheetInput struct {
	Path     string
	Quantity int
}

func parseSheetInput(arg string, copies int) (sheetInput, error) {
	in := sheetInput{Path: arg, Quantity: copies}
	if i := strings.LastIndex(arg, "="); i > 0 {
		n, err := strconv.Atoi(arg[i+1:])
		if err != nil {
			return in, fmt.Errorf("invalid copy count in %q: %w", arg, err)
		}
		in.Path = arg[:i]
		in.Quantity = n
	}
	return in, nil
}

func newSheetCmd() *cobra.Command {
	var formatID string
	var output string
	var copies int
	var autoBackground bool
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "sheet [flags] image[=copies]...",
		Short: "Build a PDF sheet from image files",
		Long: `Builds a printable sheet without the web API.

Each image is cropped with the format's automatic fit and centered on the
detected face, then packed onto A4 pages. Append =N to a path to print N
copies of that image.`,
		Example: `  # Two copies of one passport photo
  photosheet sheet --format 2x2 me.jpg=2

  # Remove backgrounds and write a parquet manifest of the tile positions
  photosheet sheet --auto-background --manifest tiles.parquet a.jpg b.png=4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := make([]sheetInput, 0, len(args))
			for _, arg := range args {
				in, err := parseSheetInput(arg, copies)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}

			opts, err := sessionOptions()
			if err != nil {
				return err
			}
			opts.Flow.SkipBackgroundRemoval = !autoBackground

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := buildSheet(ctx, opts, formatID, inputs)
			if err != nil {
				return err
			}

			if output == "" {
				output = result.Filename
			}
			if err := os.WriteFile(output, result.PDF, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Printf("Wrote %s (%d pages, %d photos)\n", output, result.Layout.Pages, result.Layout.Tiles())

			if manifestPath != "" {
				if err := manifest.Write(manifestPath, result.Manifest); err != nil {
					return err
				}
				fmt.Printf("Wrote manifest %s (%d rows)\n", manifestPath, len(result.Manifest))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatID, "format", "f", "3x4", "Photo format ID (see 'photosheet formats')")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PDF path (default photos-<format name>.pdf, e.g. photos-photo-3x4.pdf)")
	cmd.Flags().IntVar(&copies, "copies", 1, "Copies per image when not given with =N")
	cmd.Flags().BoolVar(&autoBackground, "auto-background", false, "Run automatic background removal")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Write tile positions to a .jsonl, .parquet or .yaml file")

	return cmd
}

// buildSheet drives a session through every wizard step for the given files.
func buildSheet(ctx context.Context, opts session.Options, formatID string, inputs []sheetInput) (*session.Result, error) {
	s := session.New(session.NewID(), opts)
	defer s.Close()

	if _, err := s.SelectFormat(formatID); err != nil {
		return nil, err
	}

	files := make([]session.File, 0, len(inputs))
	for _, in := range inputs {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", in.Path, err)
		}
		files = append(files, session.File{Name: filepath.Base(in.Path), Data: data})
	}
	uploaded, err := s.Upload(ctx, files...)
	if err != nil {
		return nil, err
	}
	if len(uploaded.Failures) > 0 {
		f := uploaded.Failures[0]
		return nil, fmt.Errorf("failed to load %s: %s", f.Name, f.Error)
	}

	for i, id := range uploaded.IDs {
		if _, err := s.Finalize(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to adjust %s: %w", inputs[i].Path, err)
		}
		if _, err := s.SetQuantity(id, inputs[i].Quantity); err != nil {
			return nil, err
		}
	}
	if _, err := s.Continue(); err != nil {
		return nil, err
	}

	if !opts.Flow.SkipBackgroundRemoval {
		for i, id := range uploaded.IDs {
			slog.Debug("Removing background", "path", inputs[i].Path)
			if _, err := s.AutoRemoveBackground(ctx, id); err != nil {
				return nil, fmt.Errorf("failed to remove background from %s: %w", inputs[i].Path, err)
			}
		}
		if _, err := s.Continue(); err != nil {
			return nil, err
		}
	}

	return s.Generate()
}
