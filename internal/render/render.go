// Package render bakes a source image and a transform state into a fixed-size
// raster. Rendering is pure: the same inputs always produce the same pixels.
package render

import (
	"image"
	"math"

	"github.com/lehigh-university-libraries/photosheet/internal/transform"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Render draws src onto a white w×h canvas. The canvas origin is moved to its
// center, rotated, scaled by zoom and flips, translated by the offset, and
// the color-filtered source is drawn centered on that origin at its natural
// size. Anything falling outside the canvas is clipped.
func Render(src image.Image, st transform.State, w, h int) *image.RGBA {
	return renderWith(draw.CatmullRom, src, st, w, h)
}

// Preview is Render with a cheaper interpolator, for interactive updates.
func Preview(src image.Image, st transform.State, w, h int) *image.RGBA {
	return renderWith(draw.ApproxBiLinear, src, st, w, h)
}

func renderWith(interp draw.Interpolator, src image.Image, st transform.State, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	if src == nil || src.Bounds().Empty() || !(st.Zoom > 0) {
		return dst
	}

	filtered := Filter(src, st)
	sr := filtered.Bounds()
	interp.Transform(dst, Matrix(sr, st, dst.Bounds().Dx(), dst.Bounds().Dy()), filtered, sr, draw.Over, nil)
	return dst
}

// Matrix returns the source-to-canvas affine transform for st:
//
//	T(canvas center) · R(rotation) · S(zoom·flipX, zoom·flipY) · T(offset) · T(-source center)
func Matrix(sr image.Rectangle, st transform.State, w, h int) f64.Aff3 {
	sin, cos := quarterTurn(st.Rotation)

	sx, sy := st.Zoom, st.Zoom
	if st.FlipH {
		sx = -sx
	}
	if st.FlipV {
		sy = -sy
	}

	tx := st.Offset.X - float64(sr.Min.X) - float64(sr.Dx())/2
	ty := st.Offset.Y - float64(sr.Min.Y) - float64(sr.Dy())/2
	cx, cy := float64(w)/2, float64(h)/2

	return f64.Aff3{
		cos * sx, -sin * sy, cx + cos*sx*tx - sin*sy*ty,
		sin * sx, cos * sy, cy + sin*sx*tx + cos*sy*ty,
	}
}

// quarterTurn returns exact sine and cosine for multiples of 90 degrees so
// that rotated renders stay pixel aligned.
func quarterTurn(deg int) (sin, cos float64) {
	switch transform.NormalizeRotation(deg) {
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	default:
		return 0, 1
	}
}

// FitZoom returns the initial zoom for a source of sw×sh on a w×h canvas:
// the contain-fit scale multiplied by k, capped at maxAuto and kept inside
// [minZoom, maxZoom].
func FitZoom(sw, sh, w, h int, k, maxAuto, minZoom, maxZoom float64) float64 {
	if sw <= 0 || sh <= 0 {
		return math.Max(minZoom, math.Min(1, maxZoom))
	}
	z := math.Min(float64(w)/float64(sw), float64(h)/float64(sh)) * k
	if maxAuto > 0 {
		z = math.Min(z, maxAuto)
	}
	return math.Min(math.Max(z, minZoom), maxZoom)
}

// CenterOn returns the offset that places the center of region at the
// canvas center for an unrotated source with bounds sr. The result is
// limited so the source center never leaves the source bounds.
func CenterOn(sr, region image.Rectangle) transform.Point {
	region = region.Intersect(sr)
	if region.Empty() {
		return transform.Point{}
	}
	scx := float64(sr.Min.X) + float64(sr.Dx())/2
	scy := float64(sr.Min.Y) + float64(sr.Dy())/2
	rcx := float64(region.Min.X+region.Max.X) / 2
	rcy := float64(region.Min.Y+region.Max.Y) / 2

	limX := float64(sr.Dx()) / 2
	limY := float64(sr.Dy()) / 2
	return transform.Point{
		X: math.Max(-limX, math.Min(limX, scx-rcx)),
		Y: math.Max(-limY, math.Min(limY, scy-rcy)),
	}
}
