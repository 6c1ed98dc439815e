// Package layout packs fixed-size photo tiles onto printable pages.
//
// All geometry is in millimeters with the origin at the top-left corner of
// the page. Layout is pure: it computes placements and never draws.
package layout

import (
	"fmt"
	"math"
)

// Page describes the physical page and the decoration drawn around tiles.
type Page struct {
	WidthMm   float64 `json:"width_mm" yaml:"width_mm"`
	HeightMm  float64 `json:"height_mm" yaml:"height_mm"`
	MarginMm  float64 `json:"margin_mm" yaml:"margin_mm"`
	SpacingMm float64 `json:"spacing_mm" yaml:"spacing_mm"`

	// BorderInsetMm is the distance from the tile edge to the border line.
	BorderInsetMm float64 `json:"border_inset_mm" yaml:"border_inset_mm"`
	BorderWidthMm float64 `json:"border_width_mm" yaml:"border_width_mm"`

	// GuideOffsetMm is the gap between a tile corner and its cut guides.
	// GuideLengthMm of 0 disables guides.
	GuideOffsetMm float64 `json:"guide_offset_mm" yaml:"guide_offset_mm"`
	GuideLengthMm float64 `json:"guide_length_mm" yaml:"guide_length_mm"`
}

// A4 returns a portrait A4 page with the standard margins.
func A4() Page {
	return Page{
		WidthMm:       210,
		HeightMm:      297,
		MarginMm:      15,
		SpacingMm:     5,
		BorderInsetMm: 0.1,
		BorderWidthMm: 0.2,
		GuideOffsetMm: 0.5,
		GuideLengthMm: 2,
	}
}

// Validate checks that decoration stays within the page geometry: the
// border must fit inside the tile and the guides inside the gutter.
func (p Page) Validate() error {
	switch {
	case !(p.WidthMm > 0) || !(p.HeightMm > 0):
		return &ConfigurationError{Reason: fmt.Sprintf("page size %.1fx%.1fmm must be positive", p.WidthMm, p.HeightMm)}
	case p.MarginMm < 0 || p.SpacingMm < 0:
		return &ConfigurationError{Reason: "margin and spacing must not be negative"}
	case p.BorderWidthMm < 0 || p.BorderInsetMm < p.BorderWidthMm/2:
		return &ConfigurationError{Reason: "border must lie inside the tile"}
	case p.GuideLengthMm < 0 || p.GuideOffsetMm < 0:
		return &ConfigurationError{Reason: "guide geometry must not be negative"}
	}
	if p.GuideLengthMm > 0 {
		reach := p.GuideOffsetMm + p.GuideLengthMm
		if reach > p.MarginMm {
			return &ConfigurationError{Reason: fmt.Sprintf("cut guides reach %.1fmm past tiles, margin is %.1fmm", reach, p.MarginMm)}
		}
		if 2*reach > p.SpacingMm+1e-9 {
			return &ConfigurationError{Reason: fmt.Sprintf("cut guides of neighbouring tiles overlap in %.1fmm spacing", p.SpacingMm)}
		}
	}
	return nil
}

// ConfigurationError reports a tile or page geometry that cannot produce a
// usable sheet. It is returned before anything is drawn.
type ConfigurationError struct {
	TileWidthMm  float64
	TileHeightMm float64
	Reason       string
}

func (e *ConfigurationError) Error() string {
	if e.TileWidthMm == 0 && e.TileHeightMm == 0 {
		return "invalid page configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid tile %.1fx%.1fmm: %s", e.TileWidthMm, e.TileHeightMm, e.Reason)
}

// Grid is the number of tiles that fit on one page.
type Grid struct {
	PerRow int `json:"per_row"`
	PerCol int `json:"per_col"`
}

// PerPage is PerRow * PerCol.
func (g Grid) PerPage() int { return g.PerRow * g.PerCol }

// Fit computes the tile grid for tw×th tiles on p:
//
//	perRow = floor((width - 2*margin + spacing) / (tw + spacing))
//
// and likewise for columns.
func Fit(p Page, tw, th float64) (Grid, error) {
	if err := p.Validate(); err != nil {
		return Grid{}, err
	}
	if !(tw > 0) || !(th > 0) {
		return Grid{}, &ConfigurationError{TileWidthMm: tw, TileHeightMm: th, Reason: "tile size must be positive"}
	}
	g := Grid{
		PerRow: fitCount(p.WidthMm, p.MarginMm, p.SpacingMm, tw),
		PerCol: fitCount(p.HeightMm, p.MarginMm, p.SpacingMm, th),
	}
	if g.PerRow < 1 || g.PerCol < 1 {
		return Grid{}, &ConfigurationError{
			TileWidthMm:  tw,
			TileHeightMm: th,
			Reason:       fmt.Sprintf("larger than the %.1fx%.1fmm printable area", p.WidthMm-2*p.MarginMm, p.HeightMm-2*p.MarginMm),
		}
	}
	return g, nil
}

func fitCount(extent, margin, spacing, tile float64) int {
	return int(math.Floor((extent-2*margin+spacing)/(tile+spacing) + 1e-9))
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x_mm"`
	Y float64 `json:"y_mm"`
	W float64 `json:"width_mm"`
	H float64 `json:"height_mm"`
}

// Segment is a straight line from (X1,Y1) to (X2,Y2).
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// Placement is one tile on one page.
type Placement struct {
	// Page is 1-based; Slot is the 0-based position on that page.
	Page int
	Slot int
	Row  int
	Col  int

	// Index is the 0-based position in the whole tile stream.
	Index int
	// Source is the position of the originating image in the input; Copy is
	// the 0-based copy number of that image.
	Source int
	Copy   int

	Tile   Rect
	Border Rect
	Guides []Segment
}

// Layout is the complete placement of a print job.
type Layout struct {
	Page       Page
	Grid       Grid
	TileW      float64
	TileH      float64
	Pages      int
	Placements []Placement
}

// Tiles returns the total number of placed tiles.
func (l *Layout) Tiles() int { return len(l.Placements) }

// OnPage returns the placements on page n (1-based).
func (l *Layout) OnPage(n int) []Placement {
	if n < 1 || n > l.Pages {
		return nil
	}
	per := l.Grid.PerPage()
	lo := (n - 1) * per
	hi := min(lo+per, len(l.Placements))
	return l.Placements[lo:hi]
}

// Plan expands quantities into a tile stream, copies of one source kept
// contiguous and sources in input order, and places the tiles row-major
// with a new page every Grid.PerPage tiles. A quantity below 1 contributes
// no tiles.
func Plan(quantities []int, tw, th float64, p Page) (*Layout, error) {
	g, err := Fit(p, tw, th)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, q := range quantities {
		total += max(q, 0)
	}

	l := &Layout{
		Page:       p,
		Grid:       g,
		TileW:      tw,
		TileH:      th,
		Placements: make([]Placement, 0, total),
	}
	per := g.PerPage()
	k := 0
	for src, q := range quantities {
		for c := 0; c < q; c++ {
			slot := k % per
			row, col := slot/g.PerRow, slot%g.PerRow
			tile := Rect{
				X: p.MarginMm + float64(col)*(tw+p.SpacingMm),
				Y: p.MarginMm + float64(row)*(th+p.SpacingMm),
				W: tw,
				H: th,
			}
			l.Placements = append(l.Placements, Placement{
				Page:   k/per + 1,
				Slot:   slot,
				Row:    row,
				Col:    col,
				Index:  k,
				Source: src,
				Copy:   c,
				Tile:   tile,
				Border: inset(tile, p.BorderInsetMm),
				Guides: guides(tile, p.GuideOffsetMm, p.GuideLengthMm),
			})
			k++
		}
	}
	if total > 0 {
		l.Pages = (total + per - 1) / per
	}
	return l, nil
}

func inset(r Rect, d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, W: r.W - 2*d, H: r.H - 2*d}
}

// guides returns eight crop ticks, two per corner. Each tick extends one tile
// edge line outward, starting off mm past the corner, so the pair at a corner
// does not touch.
func guides(r Rect, off, length float64) []Segment {
	if length <= 0 {
		return nil
	}
	left, right := r.X, r.X+r.W
	top, bottom := r.Y, r.Y+r.H
	return []Segment{
		// top-left
		{left - off, top, left - off - length, top},
		{left, top - off, left, top - off - length},
		// top-right
		{right + off, top, right + off + length, top},
		{right, top - off, right, top - off - length},
		// bottom-left
		{left - off, bottom, left - off - length, bottom},
		{left, bottom + off, left, bottom + off + length},
		// bottom-right
		{right + off, bottom, right + off + length, bottom},
		{right, bottom + off, right, bottom + off + length},
	}
}
