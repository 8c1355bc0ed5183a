// Package sweep holds the state shared by the components of one sweep
// pass: the wire record, long-axis spans and the SweepState frontiers.
package sweep

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
)

// finalSlack multiplies the coupling reach when the last step is enlarged
// past the high edge.
const finalSlack = 5

// State carries the sweep coordinates of one direction pass. Components
// read it instead of taking the window apart into long argument lists.
type State struct {
	Dir  layout.Dir
	Axis layout.Axis // sweep axis, Dir.Axis()

	Lo, Hi int // extent on the sweep axis
	Step   int

	CouplingTracks   int
	ResistanceTracks int
	ContextLayers    int
	MaxPitch         int
	MaxWidth         int

	// frontiers. A source is ready once its high edge is below
	// ComputeLimit; everything ending below EvictLimit can be dropped.
	LoBound      int
	GenLimit     int
	IndexLimit   int
	ComputeLimit int
	EvictLimit   int

	Steps int
	Final bool
}

// NewState initialises every frontier at lo. The step is StepTracks pitches
// but never less than the coupling reach plus one pitch; a wire wider than
// the coupling reach forces a single step over the whole extent.
func NewState(dir layout.Dir, lo, hi, stepTracks, cc, maxPitch, maxWidth int) State {
	step := max(stepTracks*maxPitch, (cc+1)*maxPitch)
	if maxWidth > cc*maxPitch {
		step = max(hi-lo, step)
	}
	return State{
		Dir:            dir,
		Axis:           dir.Axis(),
		Lo:             lo,
		Hi:             hi,
		Step:           step,
		CouplingTracks: cc,
		MaxPitch:       maxPitch,
		MaxWidth:       maxWidth,
		LoBound:        lo,
		GenLimit:       lo,
		IndexLimit:     lo,
		ComputeLimit:   lo,
		EvictLimit:     lo,
	}
}

// Reach is the coupling distance in DBU at the coarsest pitch.
func (s *State) Reach() int { return s.CouplingTracks * s.MaxPitch }

// Ready reports whether every neighbour within reach of a wire spanning r
// on the sweep axis has been generated.
func (s *State) Ready(r layout.Rect) bool {
	return s.Final || s.SweepHi(r) < s.ComputeLimit
}

// AdvanceFrontier moves the generation limit one step. When at most one
// step remains the limit jumps well past the high edge so the last window
// computes everything that is left.
func (s *State) AdvanceFrontier() {
	if s.Hi-s.GenLimit <= s.Step {
		s.GenLimit = s.Hi + finalSlack*s.Reach()
		s.Final = true
	} else {
		s.GenLimit += s.Step
	}
	s.ComputeLimit = s.GenLimit - s.Reach()
	// pending sources start at most one reach below ComputeLimit; a wider
	// wire forces a single step
	s.EvictLimit = s.ComputeLimit - 2*s.Reach() - s.MaxPitch
	s.Steps++
}

// AdvanceLoBound starts the next window at the current generation limit.
func (s *State) AdvanceLoBound() {
	s.LoBound = s.GenLimit
}

// SweepLo returns r's low bound on the sweep axis.
func (s *State) SweepLo(r layout.Rect) int { return r.Lo(s.Axis) }

// SweepHi returns r's high bound on the sweep axis.
func (s *State) SweepHi(r layout.Rect) int { return r.Hi(s.Axis) }

// LongSpan returns r's extent on the long axis of the pass direction.
func (s *State) LongSpan(r layout.Rect) Span {
	a := s.Dir.Along()
	return Span{r.Lo(a), r.Hi(a)}
}

func (s *State) String() string {
	return fmt.Sprintf("%s step %d [%d,%d) gen %d compute %d evict %d",
		s.Dir, s.Steps, s.LoBound, s.Hi, s.GenLimit, s.ComputeLimit, s.EvictLimit)
}
