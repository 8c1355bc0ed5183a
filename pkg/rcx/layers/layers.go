// Package layers is the per-routing-layer metrics table used by the sweep:
// pitch, minimum width, preferred direction and track origin.
package layers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
)

var (
	ErrNoLayers   = errors.New("no routing layers")
	ErrBadPitch   = errors.New("non-positive layer pitch")
	ErrBadLevel   = errors.New("invalid routing level")
	ErrDuplicated = errors.New("duplicate routing level")
)

// Metrics describes one routing level
type Metrics struct {
	Level   int
	Name    string
	Dir     layout.Dir
	Pitch   int
	Width   int
	Spacing int
	Origin  [2]int // track origin per axis
}

// Table is indexed by routing level; index 0 is unused.
type Table struct {
	levels   []Metrics
	maxPitch int
	minPitch int
}

// New builds the table, rejecting non-positive pitch and duplicate or
// non-positive levels.
func New(routing []layout.Layer, die layout.Rect) (*Table, error) {
	if len(routing) == 0 {
		return nil, ErrNoLayers
	}

	sorted := make([]layout.Layer, len(routing))
	copy(sorted, routing)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	top := sorted[len(sorted)-1].Level
	t := &Table{levels: make([]Metrics, top+1)}

	for _, l := range sorted {
		if l.Level <= 0 {
			return nil, fmt.Errorf("%w: layer %s has level %d", ErrBadLevel, l.Name, l.Level)
		}
		if t.levels[l.Level].Level != 0 {
			return nil, fmt.Errorf("%w: %d", ErrDuplicated, l.Level)
		}
		if l.Pitch <= 0 {
			return nil, fmt.Errorf("%w: layer %s pitch %d", ErrBadPitch, l.Name, l.Pitch)
		}
		t.levels[l.Level] = Metrics{
			Level:   l.Level,
			Name:    l.Name,
			Dir:     l.Dir,
			Pitch:   l.Pitch,
			Width:   l.Width,
			Spacing: l.Spacing,
			Origin:  [2]int{die.XMin + l.Offset, die.YMin + l.Offset},
		}
		t.maxPitch = max(t.maxPitch, l.Pitch)
		if t.minPitch == 0 || l.Pitch < t.minPitch {
			t.minPitch = l.Pitch
		}
	}

	// gaps in the level numbering inherit the pitch below so track math
	// never divides by zero
	for lvl := 1; lvl <= top; lvl++ {
		if t.levels[lvl].Level == 0 {
			m := t.levels[lvl-1]
			if lvl == 1 {
				m = t.levels[sorted[0].Level]
			}
			m.Level = lvl
			m.Name = fmt.Sprintf("L%d", lvl)
			t.levels[lvl] = m
		}
	}

	return t, nil
}

// Get returns the metrics of level. Levels outside the table panic.
func (t *Table) Get(level int) Metrics {
	return t.levels[level]
}

// Has reports whether level is a routing level of the table.
func (t *Table) Has(level int) bool {
	return level >= 1 && level < len(t.levels)
}

// Top returns the highest routing level.
func (t *Table) Top() int { return len(t.levels) - 1 }

// MaxPitch returns the coarsest pitch.
func (t *Table) MaxPitch() int { return t.maxPitch }

// MinPitch returns the finest pitch.
func (t *Table) MinPitch() int { return t.minPitch }

// Pitch returns the pitch of level.
func (t *Table) Pitch(level int) int { return t.levels[level].Pitch }

// Track returns the track index of coord on axis a for level. Tracks are
// pitch-wide bands starting at the level's origin; coordinates below the
// origin give negative tracks.
func (t *Table) Track(level int, a layout.Axis, coord int) int {
	m := t.levels[level]
	return floorDiv(coord-m.Origin[a], m.Pitch)
}

// TrackBand returns the [lo, hi) coordinate band of track on axis a.
func (t *Table) TrackBand(level int, a layout.Axis, track int) (int, int) {
	m := t.levels[level]
	lo := m.Origin[a] + track*m.Pitch
	return lo, lo + m.Pitch
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
