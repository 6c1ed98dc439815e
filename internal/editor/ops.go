package editor

import (
	"fmt"

	"github.com/lehigh-university-libraries/photosheet/internal/transform"
)

// Operation names accepted by Apply.
const (
	OpBeginDrag     = "begin_drag"
	OpUpdateDrag    = "update_drag"
	OpEndDrag       = "end_drag"
	OpScroll        = "scroll"
	OpZoom          = "zoom"
	OpRotate        = "rotate"
	OpFlipH         = "flip_horizontal"
	OpFlipV         = "flip_vertical"
	OpSlider        = "slider"
	OpInvert        = "invert"
	OpReset         = "reset"
	OpSetTransforms = "set"
)

// Op is one serialized gesture. Fields not used by Type are ignored.
type Op struct {
	Type string `json:"op"`

	// pointer position for drags
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// wheel delta for scroll, absolute zoom for zoom, value for slider
	Delta float64 `json:"delta,omitempty"`
	Value float64 `json:"value,omitempty"`
	Name  string  `json:"name,omitempty"`

	Enabled bool `json:"enabled,omitempty"`

	// full state for set
	State *transform.State `json:"state,omitempty"`
}

// Apply runs ops in order. It stops at the first invalid op; ops before it
// stay applied.
func (c *Controller) Apply(ops ...Op) error {
	for i, op := range ops {
		if err := c.apply(op); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Type, err)
		}
	}
	return nil
}

func (c *Controller) apply(op Op) error {
	switch op.Type {
	case OpBeginDrag:
		c.BeginDrag(transform.Point{X: op.X, Y: op.Y})
	case OpUpdateDrag:
		c.UpdateDrag(transform.Point{X: op.X, Y: op.Y})
	case OpEndDrag:
		c.EndDrag()
	case OpScroll:
		c.ScrollZoom(op.Delta)
	case OpZoom:
		c.SetZoom(op.Value)
	case OpRotate:
		c.Rotate90()
	case OpFlipH:
		c.ToggleFlipHorizontal()
	case OpFlipV:
		c.ToggleFlipVertical()
	case OpSlider:
		if _, err := c.SetSlider(op.Name, op.Value); err != nil {
			return err
		}
	case OpInvert:
		c.SetInvert(op.Enabled)
	case OpReset:
		c.Reset()
	case OpSetTransforms:
		if op.State == nil {
			return fmt.Errorf("%w: set requires a state", ErrUnknownOp)
		}
		return c.setState(*op.State)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op.Type)
	}
	return nil
}

// setState replaces the whole state through the same clamps the individual
// gestures use.
func (c *Controller) setState(st transform.State) error {
	c.EndDrag()
	c.SetZoom(st.Zoom)
	c.state.Offset = st.Offset
	c.state.Rotation = transform.NormalizeRotation(st.Rotation)
	c.state.FlipH = st.FlipH
	c.state.FlipV = st.FlipV
	c.state.Invert = st.Invert
	for name, v := range st.Adjustments {
		if _, err := c.SetSlider(name, v); err != nil {
			return err
		}
	}
	return nil
}
