// Package wizard is the step machine a session walks through: pick a
// format, adjust every image, remove backgrounds, set quantities, and
// generate the sheet.
package wizard

import (
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/photosheet/internal/collection"
)

type Step string

const (
	StepSelectFormat     Step = "select_format"
	StepAdjust           Step = "adjust"
	StepRemoveBackground Step = "remove_background"
	StepQuantities       Step = "quantities"
	StepComplete         Step = "complete"
)

type Event string

const (
	EventFormatSelected Event = "format_selected"
	EventContinue       Event = "continue"
	EventBack           Event = "back"
	EventStartOver      Event = "start_over"
	EventGenerated      Event = "generated"
)

var (
	ErrInvalidTransition = errors.New("invalid step transition")
	ErrGuard             = errors.New("step requirements not met")
)

// TransitionError reports a refused transition. The machine stays on From.
type TransitionError struct {
	From   Step
	Event  Event
	Reason string
	Err    error
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s on %s: %v", e.Event, e.From, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v: %s", e.Event, e.From, e.Err, e.Reason)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Collection is the part of the image collection the guards look at.
type Collection interface {
	Len() int
	AllReady(stage collection.Stage) bool
}

// Flow selects the product variant.
type Flow struct {
	SkipBackgroundRemoval bool
	DefaultQuantity       int
}

// ReadyStage is the bitmap an image needs before it can be packed.
func (f Flow) ReadyStage() collection.Stage {
	if f.SkipBackgroundRemoval {
		return collection.StageAdjusted
	}
	return collection.StageProcessed
}

// Transition is the result of an accepted event. Reset means the session
// must drop its format and images.
type Transition struct {
	From  Step `json:"from"`
	To    Step `json:"to"`
	Reset bool `json:"reset"`
}

// Machine tracks the current step of one session.
type Machine struct {
	flow Flow
	step Step
}

func New(flow Flow) *Machine {
	return &Machine{flow: flow, step: StepSelectFormat}
}

func (m *Machine) Step() Step { return m.step }

func (m *Machine) Flow() Flow { return m.flow }

// Steps lists the steps of the flow in order.
func (m *Machine) Steps() []Step {
	if m.flow.SkipBackgroundRemoval {
		return []Step{StepSelectFormat, StepAdjust, StepQuantities, StepComplete}
	}
	return []Step{StepSelectFormat, StepAdjust, StepRemoveBackground, StepQuantities, StepComplete}
}

// Fire applies ev. On error the step is unchanged.
func (m *Machine) Fire(ev Event, c Collection) (Transition, error) {
	to, reset, err := m.next(ev, c)
	if err != nil {
		return Transition{From: m.step, To: m.step}, err
	}
	t := Transition{From: m.step, To: to, Reset: reset}
	m.step = to
	return t, nil
}

// Can reports whether ev would be accepted right now.
func (m *Machine) Can(ev Event, c Collection) bool {
	_, _, err := m.next(ev, c)
	return err == nil
}

func (m *Machine) next(ev Event, c Collection) (Step, bool, error) {
	refuse := func(err error, reason string) (Step, bool, error) {
		return m.step, false, &TransitionError{From: m.step, Event: ev, Reason: reason, Err: err}
	}

	if ev == EventStartOver {
		return StepSelectFormat, true, nil
	}

	switch m.step {
	case StepSelectFormat:
		if ev == EventFormatSelected {
			return StepAdjust, false, nil
		}
	case StepAdjust:
		switch ev {
		case EventBack:
			return StepSelectFormat, true, nil
		case EventContinue:
			if c.Len() == 0 {
				return refuse(ErrGuard, "no images uploaded")
			}
			if !c.AllReady(collection.StageAdjusted) {
				return refuse(ErrGuard, "every image must be adjusted")
			}
			if m.flow.SkipBackgroundRemoval {
				return StepQuantities, false, nil
			}
			return StepRemoveBackground, false, nil
		}
	case StepRemoveBackground:
		switch ev {
		case EventBack:
			return StepAdjust, false, nil
		case EventContinue:
			if c.Len() == 0 {
				return refuse(ErrGuard, "no images uploaded")
			}
			if !c.AllReady(collection.StageProcessed) {
				return refuse(ErrGuard, "every image needs its background removed")
			}
			return StepQuantities, false, nil
		}
	case StepQuantities:
		switch ev {
		case EventBack:
			if m.flow.SkipBackgroundRemoval {
				return StepAdjust, false, nil
			}
			return StepRemoveBackground, false, nil
		case EventGenerated:
			if c.Len() == 0 || !c.AllReady(m.flow.ReadyStage()) {
				return refuse(ErrGuard, "images are not ready for printing")
			}
			return StepComplete, false, nil
		}
	case StepComplete:
		if ev == EventGenerated {
			return StepComplete, false, nil
		}
	}
	return refuse(ErrInvalidTransition, "")
}
