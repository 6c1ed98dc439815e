package render

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/lehigh-university-libraries/photosheet/internal/transform"
)

var (
	red    = color.RGBA{R: 255, A: 255}
	green  = color.RGBA{G: 255, A: 255}
	blue   = color.RGBA{B: 255, A: 255}
	yellow = color.RGBA{R: 255, G: 255, A: 255}
	white  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// quadrants returns a size×size image with red, green, blue and yellow
// quadrants (top-left, top-right, bottom-left, bottom-right).
func quadrants(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			switch {
			case x < half && y < half:
				img.SetRGBA(x, y, red)
			case y < half:
				img.SetRGBA(x, y, green)
			case x < half:
				img.SetRGBA(x, y, blue)
			default:
				img.SetRGBA(x, y, yellow)
			}
		}
	}
	return img
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) <= 8 && d(a.G, b.G) <= 8 && d(a.B, b.B) <= 8 && d(a.A, b.A) <= 8
}

// corners samples the interior of each output quadrant.
func corners(img *image.RGBA) [4]color.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	return [4]color.RGBA{
		img.RGBAAt(w/4, h/4),
		img.RGBAAt(3*w/4, h/4),
		img.RGBAAt(w/4, 3*h/4),
		img.RGBAAt(3*w/4, 3*h/4),
	}
}

func TestRenderOutputSizeAndWhiteFill(t *testing.T) {
	src := quadrants(4)
	st := transform.New(1)
	out := Render(src, st, 40, 30)
	if out.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Fatalf("Expected 40x30 canvas, got %v", out.Bounds())
	}
	if got := out.RGBAAt(0, 0); got != white {
		t.Errorf("Expected white background at corner, got %+v", got)
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 255 {
			t.Fatal("Expected fully opaque output")
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	src := quadrants(16)
	st := transform.New(1.3)
	st.Rotation = 90
	st.FlipH = true
	st.Offset = transform.Point{X: 2.5, Y: -1}
	st.Adjustments[transform.Brightness] = 120
	st.Adjustments[transform.Saturation] = 60
	st.Adjustments[transform.Sharpness] = 40

	a := Render(src, st, 20, 24)
	b := Render(src, st, 20, 24)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("Expected identical output for identical inputs")
	}
}

func TestRenderFlipAndRotate(t *testing.T) {
	tests := []struct {
		name     string
		rotation int
		flipH    bool
		flipV    bool
		want     [4]color.RGBA
	}{
		{name: "identity", want: [4]color.RGBA{red, green, blue, yellow}},
		{name: "flip horizontal", flipH: true, want: [4]color.RGBA{green, red, yellow, blue}},
		{name: "flip vertical", flipV: true, want: [4]color.RGBA{blue, yellow, red, green}},
		{name: "flip both", flipH: true, flipV: true, want: [4]color.RGBA{yellow, blue, green, red}},
		{name: "rotate 90", rotation: 90, want: [4]color.RGBA{blue, red, yellow, green}},
		{name: "rotate 180", rotation: 180, want: [4]color.RGBA{yellow, blue, green, red}},
		{name: "rotate 270", rotation: 270, want: [4]color.RGBA{green, yellow, red, blue}},
	}

	src := quadrants(16)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := transform.New(1)
			st.Rotation = tt.rotation
			st.FlipH = tt.flipH
			st.FlipV = tt.flipV
			got := corners(Render(src, st, 16, 16))
			for i := range got {
				if !near(got[i], tt.want[i]) {
					t.Errorf("Quadrant %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestRenderFlipCombinationsDistinct(t *testing.T) {
	src := quadrants(16)
	seen := make(map[[4]color.RGBA]string)
	for _, combo := range []struct {
		name   string
		fh, fv bool
	}{{"none", false, false}, {"h", true, false}, {"v", false, true}, {"hv", true, true}} {
		st := transform.New(1)
		st.FlipH, st.FlipV = combo.fh, combo.fv
		key := corners(Render(src, st, 16, 16))
		if prev, ok := seen[key]; ok {
			t.Errorf("Expected %s and %s to differ", prev, combo.name)
		}
		seen[key] = combo.name
	}
}

func TestRenderZoomAndOffset(t *testing.T) {
	src := quadrants(8)

	// Zoom 2 on an 8x8 canvas shows only the central 4x4 of the source, so
	// each output quadrant still maps to its own source quadrant.
	st := transform.New(2)
	got := corners(Preview(src, st, 8, 8))
	if !near(got[0], red) || !near(got[3], yellow) {
		t.Errorf("Expected zoomed quadrants red/yellow, got %+v", got)
	}

	// An offset larger than the image pushes it entirely off canvas.
	st = transform.New(1)
	st.Offset = transform.Point{X: 100}
	out := Render(src, st, 8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if out.RGBAAt(x, y) != white {
				t.Fatalf("Expected white canvas at (%d,%d), got %+v", x, y, out.RGBAAt(x, y))
			}
		}
	}

	// Offset is applied after scaling: one source pixel at zoom 2 is two
	// canvas pixels. Shift right by 2 source pixels on a 16px canvas.
	st = transform.New(2)
	st.Offset = transform.Point{X: 2}
	out = Render(src, st, 16, 16)
	if !near(out.RGBAAt(1, 1), white) {
		t.Errorf("Expected white margin after shift, got %+v", out.RGBAAt(1, 1))
	}
	if !near(out.RGBAAt(5, 1), red) {
		t.Errorf("Expected red after white margin, got %+v", out.RGBAAt(5, 1))
	}
}

func TestRenderNilSource(t *testing.T) {
	out := Render(nil, transform.New(1), 3, 3)
	if out.RGBAAt(1, 1) != white {
		t.Errorf("Expected blank white canvas, got %+v", out.RGBAAt(1, 1))
	}
}

func TestFilter(t *testing.T) {
	gray := image.NewRGBA(image.Rect(0, 0, 1, 1))
	gray.SetRGBA(0, 0, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	redPx := image.NewRGBA(image.Rect(0, 0, 1, 1))
	redPx.SetRGBA(0, 0, color.RGBA{R: 200, G: 50, B: 50, A: 255})

	tests := []struct {
		name   string
		src    image.Image
		adjust map[string]float64
		invert bool
		want   color.NRGBA
	}{
		{name: "brightness 150", src: gray, adjust: map[string]float64{transform.Brightness: 150}, want: color.NRGBA{150, 150, 150, 255}},
		{name: "brightness clamps", src: redPx, adjust: map[string]float64{transform.Brightness: 150}, want: color.NRGBA{255, 75, 75, 255}},
		{name: "contrast 50", src: gray, adjust: map[string]float64{transform.Contrast: 50}, want: color.NRGBA{114, 114, 114, 255}},
		{name: "saturation 0", src: redPx, adjust: map[string]float64{transform.Saturation: 0}, want: color.NRGBA{82, 82, 82, 255}},
		{name: "invert", src: gray, invert: true, want: color.NRGBA{155, 155, 155, 255}},
		{name: "brightness then invert", src: gray, adjust: map[string]float64{transform.Brightness: 120}, invert: true, want: color.NRGBA{135, 135, 135, 255}},
		{name: "inert slider ignored", src: gray, adjust: map[string]float64{transform.Vignette: 100, transform.Clarity: 50}, want: color.NRGBA{100, 100, 100, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := transform.New(1)
			for k, v := range tt.adjust {
				st.Adjustments[k] = v
			}
			st.Invert = tt.invert
			out := Filter(tt.src, st)
			got := color.NRGBAModel.Convert(out.At(out.Bounds().Min.X, out.Bounds().Min.Y)).(color.NRGBA)
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestFilterIdentityReturnsSource(t *testing.T) {
	src := quadrants(4)
	if out := Filter(src, transform.New(1)); out != image.Image(src) {
		t.Error("Expected identity filter to return the source image")
	}
}

func TestFitZoom(t *testing.T) {
	tests := []struct {
		name             string
		sw, sh, w, h     int
		k, maxAuto       float64
		minZoom, maxZoom float64
		want             float64
	}{
		{name: "large source", sw: 3540, sh: 4720, w: 354, h: 472, k: 1, maxAuto: 1, minZoom: 0.01, maxZoom: 5, want: 0.1},
		{name: "fit factor", sw: 708, sh: 944, w: 354, h: 472, k: 1.2, maxAuto: 1, minZoom: 0.1, maxZoom: 5, want: 0.6},
		{name: "small source capped", sw: 100, sh: 100, w: 354, h: 472, k: 1, maxAuto: 1, minZoom: 0.1, maxZoom: 5, want: 1},
		{name: "min clamp", sw: 100000, sh: 100000, w: 354, h: 472, k: 1, maxAuto: 1, minZoom: 0.1, maxZoom: 5, want: 0.1},
		{name: "empty source", sw: 0, sh: 0, w: 354, h: 472, k: 1, maxAuto: 1, minZoom: 0.1, maxZoom: 5, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitZoom(tt.sw, tt.sh, tt.w, tt.h, tt.k, tt.maxAuto, tt.minZoom, tt.maxZoom)
			if d := got - tt.want; d > 1e-9 || d < -1e-9 {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCenterOn(t *testing.T) {
	sr := image.Rect(0, 0, 100, 200)
	got := CenterOn(sr, image.Rect(20, 20, 40, 60))
	want := transform.Point{X: 20, Y: 60}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if got := CenterOn(sr, image.Rect(500, 500, 600, 600)); got != (transform.Point{}) {
		t.Errorf("Expected zero offset for region outside source, got %+v", got)
	}
}
