package sweep

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
)

// WireType classifies resident geometry
type WireType uint8

const (
	Signal WireType = iota
	Power
	Via
	Obstruction
)

func (t WireType) String() string {
	switch t {
	case Power:
		return "power"
	case Via:
		return "via"
	case Obstruction:
		return "obs"
	}
	return "signal"
}

// ObstructionNet is the owner of instance obstruction geometry.
const ObstructionNet = -1

// Wire is one rectangle of a net shape as the sweep sees it. A via
// contributes two wires, one per landing box, both with the via's shape ID.
type Wire struct {
	Net   int
	Shape int
	Level int
	Rect  layout.Rect
	Type  WireType
}

// Key identifies the shape a wire belongs to.
type Key struct {
	Net   int
	Shape int
}

func (w Wire) Key() Key { return Key{w.Net, w.Shape} }

// Special reports whether the wire belongs to no signal graph: power and
// ground nets and obstructions.
func (w Wire) Special() bool {
	return w.Type == Power || w.Type == Obstruction
}

// IsSource reports whether the wire is a coupling source when swept in its
// own direction.
func (w Wire) IsSource() bool { return w.Type == Signal }

func (w Wire) String() string {
	return fmt.Sprintf("%s net %d shape %d L%d %s", w.Type, w.Net, w.Shape, w.Level, w.Rect)
}

// Span is a half-open interval on the long axis.
type Span struct {
	Lo, Hi int
}

func (s Span) Len() int { return s.Hi - s.Lo }

// Cut splits spans against [lo, hi). It returns the pieces inside and the
// pieces outside, both in input order.
func Cut(spans []Span, lo, hi int) (inside, outside []Span) {
	for _, s := range spans {
		a, b := max(s.Lo, lo), min(s.Hi, hi)
		if a >= b {
			outside = append(outside, s)
			continue
		}
		if s.Lo < a {
			outside = append(outside, Span{s.Lo, a})
		}
		inside = append(inside, Span{a, b})
		if b < s.Hi {
			outside = append(outside, Span{b, s.Hi})
		}
	}
	return inside, outside
}

// Total sums span lengths.
func Total(spans []Span) int {
	n := 0
	for _, s := range spans {
		n += s.Len()
	}
	return n
}
