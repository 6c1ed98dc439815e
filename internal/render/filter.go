package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lehigh-university-libraries/photosheet/internal/transform"
)

// maxSharpenSigma is the Gaussian sigma used at sharpness 100.
const maxSharpenSigma = 2.0

// Filter applies the wired adjustments of st to src: sharpness first, then
// brightness, contrast and saturation as percentage filters (100 is
// identity), then inversion. The color chain uses the CSS filter-effects
// formulas and clamps after each stage. Inert sliders are ignored.
// src is returned unchanged when every wired value is at identity.
func Filter(src image.Image, st transform.State) image.Image {
	img := src
	if sharp := st.Adjustment(transform.Sharpness); sharp > 0 {
		img = imaging.Sharpen(img, sharp/100*maxSharpenSigma)
	}

	br := st.Adjustment(transform.Brightness) / 100
	ct := st.Adjustment(transform.Contrast) / 100
	sat := st.Adjustment(transform.Saturation) / 100
	if br == 1 && ct == 1 && sat == 1 && !st.Invert {
		return img
	}

	m := saturateMatrix(sat)
	invert := st.Invert
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)

		r, g, b = clamp8(r*br), clamp8(g*br), clamp8(b*br)

		r = clamp8((r-127.5)*ct + 127.5)
		g = clamp8((g-127.5)*ct + 127.5)
		b = clamp8((b-127.5)*ct + 127.5)

		r, g, b = clamp8(m[0]*r+m[1]*g+m[2]*b),
			clamp8(m[3]*r+m[4]*g+m[5]*b),
			clamp8(m[6]*r+m[7]*g+m[8]*b)

		if invert {
			r, g, b = 255-r, 255-g, 255-b
		}
		return color.NRGBA{R: round8(r), G: round8(g), B: round8(b), A: c.A}
	})
}

func saturateMatrix(s float64) [9]float64 {
	return [9]float64{
		0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
	}
}

func clamp8(v float64) float64 {
	return math.Min(math.Max(v, 0), 255)
}

func round8(v float64) uint8 {
	return uint8(math.Round(clamp8(v)))
}
