package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/photosheet/internal/manifest"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spf13/cobra"
)

// pointsPerMm converts PDF user space units to millimeters.
const pointsPerMm = 72 / 25.4

func newInspectCmd() *cobra.Command {
	var manifestPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect sheet.pdf",
		Short: "Validate a generated sheet and show its pages",
		Long: `Validates a PDF sheet and prints its page count and page sizes.

With --manifest, also prints the tile positions from a manifest file
written by 'photosheet sheet --manifest' or the manifest API.`,
		Example: `  # Check a sheet
  photosheet inspect photos-photo-3x4.pdf

  # Check a sheet and list the first 20 tiles
  photosheet inspect photos-photo-3x4.pdf --manifest tiles.jsonl --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if err := inspectPDF(os.Stdout, args[0], data); err != nil {
				return err
			}
			if manifestPath == "" {
				return nil
			}
			rows, err := manifest.Read(manifestPath)
			if err != nil {
				return fmt.Errorf("failed to load manifest: %w", err)
			}
			printRows(os.Stdout, manifestPath, rows, limit)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to a .jsonl, .parquet or .yaml manifest")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of manifest rows to show (0 for all)")

	return cmd
}

func inspectPDF(w io.Writer, name string, data []byte) error {
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("invalid PDF %s: %w", name, err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return fmt.Errorf("failed to count pages: %w", err)
	}
	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return fmt.Errorf("failed to read page sizes: %w", err)
	}

	fmt.Fprintf(w, "SHEET %s\n", name)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Pages:          %d\n", pages)
	for i, d := range dims {
		fmt.Fprintf(w, "Page %-3d        %.1f x %.1f mm\n", i+1, d.Width/pointsPerMm, d.Height/pointsPerMm)
	}
	fmt.Fprintln(w)
	return nil
}

func printRows(w io.Writer, name string, rows []manifest.Row, limit int) {
	fmt.Fprintf(w, "Loaded %d tiles from %s\n", len(rows), name)
	fmt.Fprintln(w, strings.Repeat("-", 80))

	images := map[string]int{}
	for _, r := range rows {
		images[r.ImageID]++
	}
	fmt.Fprintf(w, "Images:         %d\n", len(images))

	shown := rows
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		fmt.Fprintf(w, "page %d slot %-3d (r%d c%d)  %-38s copy %-3d at %.1f,%.1f mm  %.1fx%.1f mm\n",
			r.Page, r.Slot, r.Row, r.Col, r.ImageID, r.Copy, r.XMm, r.YMm, r.WidthMm, r.HeightMm)
	}
	if len(shown) < len(rows) {
		fmt.Fprintf(w, "[... showing first %d of %d tiles ...]\n", len(shown), len(rows))
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
}
