// Package sheet renders a packed layout of photo tiles into a PDF document.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/layout"
)

// ErrNoTiles is wrapped by GenerationError when there is nothing to print.
var ErrNoTiles = errors.New("no photos to print")

// Item is one finished image and the number of copies to print.
type Item struct {
	ID       string
	Data     []byte
	Quantity int
}

// GenerationError reports a failure while assembling the document. No
// partial document accompanies it.
type GenerationError struct {
	ImageID string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.ImageID == "" {
		return fmt.Sprintf("generate sheet: %v", e.Err)
	}
	return fmt.Sprintf("generate sheet: image %s: %v", e.ImageID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Sheet is a generated document together with the layout it was drawn from.
type Sheet struct {
	PDF    []byte
	Layout *layout.Layout
}

// Generator draws layouts onto pages of a fixed geometry.
type Generator struct {
	Page    layout.Page
	Title   string
	Creator string
	// Now stamps the document creation date; nil means time.Now.
	Now func() time.Time
}

// New returns a Generator for page.
func New(page layout.Page) *Generator {
	return &Generator{Page: page, Creator: "photosheet"}
}

// Generate packs items onto A4 pages and returns the PDF bytes.
func Generate(items []Item, tileWidthMm, tileHeightMm float64) ([]byte, error) {
	s, err := New(layout.A4()).Generate(items, tileWidthMm, tileHeightMm)
	if err != nil {
		return nil, err
	}
	return s.PDF, nil
}

// Generate plans the layout, decodes every item, and writes the document.
// A *layout.ConfigurationError is returned before any decoding; any later
// failure is a *GenerationError.
func (g *Generator) Generate(items []Item, tileWidthMm, tileHeightMm float64) (*Sheet, error) {
	quantities := make([]int, len(items))
	for i, it := range items {
		quantities[i] = it.Quantity
	}
	lay, err := layout.Plan(quantities, tileWidthMm, tileHeightMm, g.Page)
	if err != nil {
		return nil, err
	}
	if lay.Tiles() == 0 {
		return nil, &GenerationError{Err: ErrNoTiles}
	}

	// Normalize every bitmap to 8-bit PNG before touching the document so a
	// bad item aborts with nothing drawn.
	pngs := make([][]byte, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		img, err := imageio.DecodeBytes(it.ID, it.Data)
		if err != nil {
			return nil, &GenerationError{ImageID: it.ID, Err: err}
		}
		pngs[i], err = imageio.EncodePNG(img)
		if err != nil {
			return nil, &GenerationError{ImageID: it.ID, Err: err}
		}
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: g.Page.WidthMm, Ht: g.Page.HeightMm},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(g.Creator, true)
	if g.Title != "" {
		pdf.SetTitle(g.Title, true)
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	pdf.SetCreationDate(now())

	for i, data := range pngs {
		if data == nil {
			continue
		}
		pdf.RegisterImageOptionsReader(imageName(i), fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
		if pdf.Err() {
			return nil, &GenerationError{ImageID: items[i].ID, Err: pdf.Error()}
		}
	}

	for page := 1; page <= lay.Pages; page++ {
		pdf.AddPage()
		for _, p := range lay.OnPage(page) {
			g.drawTile(pdf, p, imageName(p.Source))
		}
		g.drawFooter(pdf, page, lay)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &GenerationError{Err: err}
	}
	slog.Info("Sheet generated", "pages", lay.Pages, "tiles", lay.Tiles(), "bytes", buf.Len())
	return &Sheet{PDF: buf.Bytes(), Layout: lay}, nil
}

func imageName(source int) string {
	return fmt.Sprintf("photo-%d", source)
}

func (g *Generator) drawTile(pdf *fpdf.Fpdf, p layout.Placement, name string) {
	t := p.Tile
	pdf.ImageOptions(name, t.X, t.Y, t.W, t.H, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(g.Page.BorderWidthMm)
	b := p.Border
	pdf.Rect(b.X, b.Y, b.W, b.H, "D")

	if len(p.Guides) == 0 {
		return
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.1)
	for _, s := range p.Guides {
		pdf.Line(s.X1, s.Y1, s.X2, s.Y2)
	}
}

func (g *Generator) drawFooter(pdf *fpdf.Fpdf, page int, lay *layout.Layout) {
	text := Footer(page, lay)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(150, 150, 150)
	w := pdf.GetStringWidth(text)
	pdf.Text((g.Page.WidthMm-w)/2, g.Page.HeightMm-5, text)
}

// Footer returns the footer line for page n of lay.
func Footer(n int, lay *layout.Layout) string {
	unit := "photos"
	if lay.Tiles() == 1 {
		unit = "photo"
	}
	return fmt.Sprintf("Page %d/%d - %d %s - %gx%g mm", n, lay.Pages, lay.Tiles(), unit, lay.TileW, lay.TileH)
}
