// Package transform holds the editing parameters applied to one source image
// before it is baked into a fixed-size bitmap.
package transform

import "math"

// Slider names.
const (
	Brightness = "brightness"
	Contrast   = "contrast"
	Saturation = "saturation"
	Highlights = "highlights"
	Shadows    = "shadows"
	Whites     = "whites"
	Blacks     = "blacks"
	Vibrance   = "vibrance"
	Sharpness  = "sharpness"
	Clarity    = "clarity"
	Vignette   = "vignette"
)

// Slider declares the range of one named color adjustment. Wired reports
// whether the render engine applies it; inert sliders are stored and clamped
// but have no visual effect.
type Slider struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Wired   bool    `json:"wired"`
}

// Clamp returns v limited to the slider range. NaN maps to the default.
func (s Slider) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return s.Default
	}
	return math.Min(math.Max(v, s.Min), s.Max)
}

var sliders = []Slider{
	{Name: Brightness, Min: 50, Max: 150, Default: 100, Wired: true},
	{Name: Contrast, Min: 50, Max: 150, Default: 100, Wired: true},
	{Name: Saturation, Min: 0, Max: 200, Default: 100, Wired: true},
	{Name: Highlights, Min: -100, Max: 100},
	{Name: Shadows, Min: -100, Max: 100},
	{Name: Whites, Min: -100, Max: 100},
	{Name: Blacks, Min: -100, Max: 100},
	{Name: Vibrance, Min: -100, Max: 100},
	{Name: Sharpness, Min: 0, Max: 100, Wired: true},
	{Name: Clarity, Min: -100, Max: 100},
	{Name: Vignette, Min: 0, Max: 100},
}

// Sliders returns the slider table in display order.
func Sliders() []Slider {
	out := make([]Slider, len(sliders))
	copy(out, sliders)
	return out
}

// LookupSlider returns the declaration for name.
func LookupSlider(name string) (Slider, bool) {
	for _, s := range sliders {
		if s.Name == name {
			return s, true
		}
	}
	return Slider{}, false
}

// DefaultAdjustments returns every slider at its declared default.
func DefaultAdjustments() map[string]float64 {
	m := make(map[string]float64, len(sliders))
	for _, s := range sliders {
		m[s.Name] = s.Default
	}
	return m
}

// Point is a 2D offset in canvas pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// State is the complete set of edit parameters for one image.
type State struct {
	Zoom        float64            `json:"zoom"`
	Offset      Point              `json:"offset"`
	Rotation    int                `json:"rotation"`
	FlipH       bool               `json:"flip_horizontal"`
	FlipV       bool               `json:"flip_vertical"`
	Adjustments map[string]float64 `json:"adjustments"`
	Invert      bool               `json:"invert"`
}

// New returns an identity state at the given zoom.
func New(zoom float64) State {
	return State{Zoom: zoom, Adjustments: DefaultAdjustments()}
}

// Adjustment returns the named slider value, falling back to its default
// when unset.
func (s State) Adjustment(name string) float64 {
	if v, ok := s.Adjustments[name]; ok {
		return v
	}
	if sl, ok := LookupSlider(name); ok {
		return sl.Default
	}
	return 0
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Adjustments = make(map[string]float64, len(s.Adjustments))
	for k, v := range s.Adjustments {
		out.Adjustments[k] = v
	}
	return out
}

// NormalizeRotation maps any multiple of 90 degrees into {0, 90, 180, 270}.
// Other angles snap to the nearest quarter turn.
func NormalizeRotation(deg int) int {
	q := int(math.Round(float64(deg) / 90))
	return ((q%4)+4)%4 * 90
}
