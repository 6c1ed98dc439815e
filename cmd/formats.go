package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/photosheet/internal/config"
	"github.com/lehigh-university-libraries/photosheet/internal/formats"
	"github.com/spf13/cobra"
)

func newFormatsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the available photo formats",
		Long: `Lists the photo formats from PHOTOSHEET_FORMATS, or the built-in catalog.

The yaml output can be edited and loaded back through PHOTOSHEET_FORMATS.`,
		Example: `  # Show a table
  photosheet formats

  # Dump the catalog as a starting point for a custom formats file
  photosheet formats --output yaml > formats.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}
			return printFormats(os.Stdout, catalog, output, cfg.DPI)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, yaml or json")

	return cmd
}

func printFormats(w io.Writer, catalog *formats.Catalog, output string, dpi int) error {
	switch output {
	case "yaml":
		data, err := catalog.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.All())
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDIMENSIONS\tSIZE (MM)\tCANVAS (PX)\tDESCRIPTION")
		for _, f := range catalog.All() {
			cw, ch := f.CanvasSize(dpi)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%gx%g\t%dx%d\t%s\n",
				f.ID, f.Name, f.Dimensions, f.WidthMm, f.HeightMm, cw, ch, f.Description)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, yaml or json)", output)
	}
}
