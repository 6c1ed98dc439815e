// Package manifest exports the placement of every tile of a generated
// sheet, so a print shop can check the cut positions without opening the PDF.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/photosheet/internal/layout"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Supported formats.
const (
	FormatJSONL   = "jsonl"
	FormatParquet = "parquet"
	FormatYAML    = "yaml"
)

// ErrUnknownFormat is returned for an unsupported manifest format.
var ErrUnknownFormat = errors.New("unknown manifest format")

// Row is one placed tile.
type Row struct {
	Page     int     `parquet:"page" json:"page" yaml:"page"`
	Slot     int     `parquet:"slot" json:"slot" yaml:"slot"`
	Row      int     `parquet:"row" json:"row" yaml:"row"`
	Col      int     `parquet:"col" json:"col" yaml:"col"`
	Index    int     `parquet:"index" json:"index" yaml:"index"`
	ImageID  string  `parquet:"image_id" json:"image_id" yaml:"image_id"`
	Copy     int     `parquet:"copy" json:"copy" yaml:"copy"`
	XMm      float64 `parquet:"x_mm" json:"x_mm" yaml:"x_mm"`
	YMm      float64 `parquet:"y_mm" json:"y_mm" yaml:"y_mm"`
	WidthMm  float64 `parquet:"width_mm" json:"width_mm" yaml:"width_mm"`
	HeightMm float64 `parquet:"height_mm" json:"height_mm" yaml:"height_mm"`
}

// Rows flattens l into manifest rows. ids maps a placement's Source index to
// its image ID; missing entries leave ImageID empty.
func Rows(l *layout.Layout, ids []string) []Row {
	rows := make([]Row, 0, l.Tiles())
	for _, p := range l.Placements {
		r := Row{
			Page:     p.Page,
			Slot:     p.Slot,
			Row:      p.Row,
			Col:      p.Col,
			Index:    p.Index,
			Copy:     p.Copy,
			XMm:      p.Tile.X,
			YMm:      p.Tile.Y,
			WidthMm:  p.Tile.W,
			HeightMm: p.Tile.H,
		}
		if p.Source < len(ids) {
			r.ImageID = ids[p.Source]
		}
		rows = append(rows, r)
	}
	return rows
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet, nil
	case ".jsonl", ".json":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch format {
	case FormatParquet:
		return "application/vnd.apache.parquet"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/x-ndjson"
	}
}

// Write stores rows at path in the format implied by its extension.
func Write(path string, rows []Row) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	if err := WriteTo(f, format, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	slog.Info("Manifest written", "path", path, "format", format, "rows", len(rows))
	return nil
}

// WriteTo encodes rows to w.
func WriteTo(w io.Writer, format string, rows []Row) error {
	switch format {
	case FormatParquet:
		pw := parquet.NewGenericWriter[Row](w)
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("failed to finish parquet file: %w", err)
		}
		return nil
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode row: %w", err)
			}
		}
		return nil
	case FormatYAML:
		data, err := yaml.Marshal(rows)
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// Read loads a manifest written by Write.
func Read(path string) ([]Row, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(data, format)
}

// Decode parses manifest bytes in format.
func Decode(data []byte, format string) ([]Row, error) {
	switch format {
	case FormatParquet:
		return decodeParquet(data)
	case FormatJSONL:
		var rows []Row
		sc := bufio.NewScanner(bytes.NewReader(data))
		line := 0
		for sc.Scan() {
			line++
			if len(bytes.TrimSpace(sc.Bytes())) == 0 {
				continue
			}
			var r Row
			if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
				return nil, fmt.Errorf("failed to parse line %d: %w", line, err)
			}
			rows = append(rows, r)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan manifest: %w", err)
		}
		return rows, nil
	case FormatYAML:
		var rows []Row
		if err := yaml.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func decodeParquet(data []byte) ([]Row, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	rows := make([]Row, 0, pf.NumRows())
	batch := make([]Row, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}
