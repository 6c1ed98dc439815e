package salient

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Brightness finds the brightest window in the upper part of the image, a
// rough proxy for a lit face against a darker background.
type Brightness struct {
	// SampleWidth is the width the image is reduced to before scanning.
	SampleWidth int
	// UpperFraction limits the scan to the top part of the image.
	UpperFraction float64
	// MinContrast is how much brighter, in 8-bit luma levels, the best
	// window must be than the scanned area's mean.
	MinContrast float64
}

// NewBrightness returns the heuristic with default tuning.
func NewBrightness() *Brightness {
	return &Brightness{SampleWidth: 64, UpperFraction: 0.6, MinContrast: 12}
}

func (b *Brightness) Detect(ctx context.Context, img image.Image) (image.Rectangle, bool, error) {
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, false, err
	}
	sb := img.Bounds()
	if sb.Dx() < 4 || sb.Dy() < 4 {
		return image.Rectangle{}, false, nil
	}

	sw := min(b.SampleWidth, sb.Dx())
	small := imaging.Resize(img, sw, 0, imaging.Box)
	w, h := small.Bounds().Dx(), small.Bounds().Dy()
	upper := max(1, int(math.Ceil(float64(h)*b.UpperFraction)))
	ww, wh := max(1, w/4), max(1, h/5)
	wh = min(wh, upper)

	// summed-area table of luma over the upper region
	sat := make([][]float64, upper+1)
	for y := range sat {
		sat[y] = make([]float64, w+1)
	}
	for y := 0; y < upper; y++ {
		row := 0.0
		for x := 0; x < w; x++ {
			i := small.PixOffset(x, y)
			p := small.Pix[i : i+4 : i+4]
			row += 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
			sat[y+1][x+1] = sat[y][x+1] + row
		}
	}
	mean := sat[upper][w] / float64(w*upper)

	best, bx, by := -1.0, 0, 0
	for y := 0; y+wh <= upper; y++ {
		for x := 0; x+ww <= w; x++ {
			sum := sat[y+wh][x+ww] - sat[y][x+ww] - sat[y+wh][x] + sat[y][x]
			if sum > best {
				best, bx, by = sum, x, y
			}
		}
	}
	if best/float64(ww*wh)-mean < b.MinContrast {
		return image.Rectangle{}, false, nil
	}

	sx := float64(sb.Dx()) / float64(w)
	sy := float64(sb.Dy()) / float64(h)
	r := image.Rect(
		sb.Min.X+int(math.Floor(float64(bx)*sx)),
		sb.Min.Y+int(math.Floor(float64(by)*sy)),
		sb.Min.X+int(math.Ceil(float64(bx+ww)*sx)),
		sb.Min.Y+int(math.Ceil(float64(by+wh)*sy)),
	)
	return r.Intersect(sb), true, nil
}
