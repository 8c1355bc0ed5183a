package rcx

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/layers"
)

var (
	ErrDegenerateDie = errors.New("degenerate die area")
	ErrBadOption     = errors.New("invalid option")

	ErrBadPitch = layers.ErrBadPitch
	ErrNoLayers = layers.ErrNoLayers
)

// Options configure a run
type Options struct {
	// CouplingDistance is the coplanar and over/under search reach, in
	// tracks of the source level.
	CouplingDistance int

	// StepTracks is the window step in tracks of the coarsest pitch.
	StepTracks int

	// ResistanceTracks is the neighbour reach used for resistance.
	ResistanceTracks int

	// PowerCoupling lets power and ground wires act as coplanar
	// neighbours. Their coupling is folded into ground.
	PowerCoupling bool

	// ContextLayers is how many levels above and below a source are
	// searched for over/under fringe.
	ContextLayers int

	// CouplingThreshold in fF: smaller coupling capacitors are folded into
	// ground unless a side touches a terminal.
	CouplingThreshold float64

	// ExtRect limits extraction. The zero Rect means the whole die.
	ExtRect layout.Rect

	// InstanceContext adds instance obstructions as neighbours.
	InstanceContext bool

	// Strict panics on any query of evicted index range.
	Strict bool
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		CouplingDistance:  10,
		StepTracks:        100,
		ResistanceTracks:  3,
		PowerCoupling:     true,
		ContextLayers:     5,
		CouplingThreshold: 0.1,
	}
}

// Validate checks the options against the design. It returns the
// extraction rectangle to use.
func (o Options) Validate(die layout.Rect) (layout.Rect, error) {
	if die.Empty() {
		return layout.Rect{}, fmt.Errorf("%w: %s", ErrDegenerateDie, die)
	}
	switch {
	case o.CouplingDistance <= 0:
		return layout.Rect{}, fmt.Errorf("%w: coupling distance %d", ErrBadOption, o.CouplingDistance)
	case o.StepTracks <= 0:
		return layout.Rect{}, fmt.Errorf("%w: step tracks %d", ErrBadOption, o.StepTracks)
	case o.ResistanceTracks < 0 || o.ResistanceTracks > o.CouplingDistance:
		return layout.Rect{}, fmt.Errorf("%w: resistance tracks %d outside [0,%d]", ErrBadOption, o.ResistanceTracks, o.CouplingDistance)
	case o.ContextLayers < 0:
		return layout.Rect{}, fmt.Errorf("%w: context layers %d", ErrBadOption, o.ContextLayers)
	case o.CouplingThreshold < 0:
		return layout.Rect{}, fmt.Errorf("%w: coupling threshold %g", ErrBadOption, o.CouplingThreshold)
	}

	area := die
	if o.ExtRect != (layout.Rect{}) {
		if o.ExtRect.Empty() {
			return layout.Rect{}, fmt.Errorf("%w: extraction rect %s", ErrDegenerateDie, o.ExtRect)
		}
		area = o.ExtRect
	}
	return area, nil
}
