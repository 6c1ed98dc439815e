// Package editor turns pointer, wheel and slider gestures into transform
// state changes for one image and bakes the result into the format's canvas.
//
// A Controller is single-threaded; the owning session serializes calls.
package editor

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/lehigh-university-libraries/photosheet/internal/formats"
	"github.com/lehigh-university-libraries/photosheet/internal/render"
	"github.com/lehigh-university-libraries/photosheet/internal/transform"
)

var (
	ErrNoSource      = errors.New("no source image to render")
	ErrUnknownSlider = errors.New("unknown slider")
	ErrUnknownOp     = errors.New("unknown edit operation")
)

// Controller owns the transform state of one image while it is edited.
type Controller struct {
	src    image.Image
	format formats.Format
	width  int
	height int

	fitZoom float64
	initial transform.State
	state   transform.State

	dragging bool
	anchor   transform.Point

	last *image.RGBA
}

// Option configures a Controller.
type Option func(*Controller)

// WithSalientRegion seeds the initial offset so region lands at the canvas
// center. An empty region leaves the image centered.
func WithSalientRegion(region image.Rectangle) Option {
	return func(c *Controller) {
		if c.src == nil || region.Empty() {
			return
		}
		c.initial.Offset = render.CenterOn(c.src.Bounds(), region)
	}
}

// New opens src for editing in format f at dpi.
func New(src image.Image, f formats.Format, dpi int, opts ...Option) *Controller {
	w, h := f.CanvasSize(dpi)
	c := &Controller{src: src, format: f, width: w, height: h}

	e := f.Editor
	sw, sh := 0, 0
	if src != nil {
		sw, sh = src.Bounds().Dx(), src.Bounds().Dy()
	}
	c.fitZoom = render.FitZoom(sw, sh, w, h, e.FitFactor, e.MaxAutoZoom, e.MinZoom, e.MaxZoom)
	c.initial = c.defaults()
	for _, opt := range opts {
		opt(c)
	}
	c.state = c.initial.Clone()
	return c
}

// defaults is the format's documented starting state: auto-fit zoom,
// centered, with the format's slider presets.
func (c *Controller) defaults() transform.State {
	st := transform.New(c.fitZoom)
	for name, v := range c.format.Editor.Sliders {
		if s, ok := transform.LookupSlider(name); ok {
			st.Adjustments[name] = s.Clamp(v)
		}
	}
	return st
}

// CanvasSize returns the output size in pixels.
func (c *Controller) CanvasSize() (int, int) { return c.width, c.height }

// State returns a copy of the current state.
func (c *Controller) State() transform.State { return c.state.Clone() }

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool { return c.dragging }

// BeginDrag starts a pan at pointer position p.
func (c *Controller) BeginDrag(p transform.Point) {
	c.dragging = true
	c.anchor = p.Sub(c.state.Offset)
}

// UpdateDrag moves the image with the pointer. It does nothing unless a
// drag is in progress.
func (c *Controller) UpdateDrag(p transform.Point) {
	if !c.dragging {
		return
	}
	c.state.Offset = p.Sub(c.anchor)
}

// EndDrag finishes the pan.
func (c *Controller) EndDrag() {
	c.dragging = false
	c.anchor = transform.Point{}
}

// ScrollZoom applies one wheel tick: a positive deltaY zooms out and a
// negative one zooms in by the format's zoom step.
func (c *Controller) ScrollZoom(deltaY float64) {
	switch {
	case deltaY > 0:
		c.SetZoom(c.state.Zoom - c.format.Editor.ZoomStep)
	case deltaY < 0:
		c.SetZoom(c.state.Zoom + c.format.Editor.ZoomStep)
	}
}

// SetZoom sets the zoom clamped to the format's bounds.
func (c *Controller) SetZoom(z float64) {
	if math.IsNaN(z) {
		return
	}
	e := c.format.Editor
	c.state.Zoom = math.Min(math.Max(z, e.MinZoom), e.MaxZoom)
}

// Rotate90 turns the image a quarter turn clockwise.
func (c *Controller) Rotate90() {
	c.state.Rotation = (transform.NormalizeRotation(c.state.Rotation) + 90) % 360
}

func (c *Controller) ToggleFlipHorizontal() { c.state.FlipH = !c.state.FlipH }

func (c *Controller) ToggleFlipVertical() { c.state.FlipV = !c.state.FlipV }

// SetSlider stores v clamped to the slider's range and returns the stored
// value.
func (c *Controller) SetSlider(name string, v float64) (float64, error) {
	s, ok := transform.LookupSlider(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSlider, name)
	}
	v = s.Clamp(v)
	c.state.Adjustments[name] = v
	return v, nil
}

func (c *Controller) SetInvert(on bool) { c.state.Invert = on }

// Reset restores the format defaults, including the auto-fit zoom, with the
// image centered.
func (c *Controller) Reset() {
	c.EndDrag()
	c.state = c.defaults()
}

// Preview renders the current state with the fast interpolator. Without a
// source it returns the last successful preview, which may be nil.
func (c *Controller) Preview() *image.RGBA {
	if c.src == nil {
		return c.last
	}
	c.last = render.Preview(c.src, c.state, c.width, c.height)
	return c.last
}

// Finalize bakes the current state into a canvas-sized bitmap.
func (c *Controller) Finalize() (*image.RGBA, error) {
	if c.src == nil {
		return nil, ErrNoSource
	}
	return render.Render(c.src, c.state, c.width, c.height), nil
}
