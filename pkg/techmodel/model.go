// Package techmodel provides the technology RC model: per-layer unit
// resistance and capacitance as functions of wire width and neighbour
// distance. Widths, distances and lengths are in microns; capacitance is
// in fF/um, resistance in ohm/um, via resistance in ohm per cut.
package techmodel

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Model is the read-only lookup interface used during extraction. Corner
// indexes follow Corners().
type Model interface {
	Corners() []string

	// Fringe is the unit capacitance of a wire on met to a neighbour on
	// layer neighbor (met itself for lateral fringe) at distance dist.
	Fringe(corner, met, neighbor int, width, dist float64) float64

	// Coupling is the unit coupling capacitance between parallel wires on met.
	Coupling(corner, met int, width, dist float64) float64

	// Resistance is the unit resistance of a wire on met with its nearest
	// neighbour at dist (0 means isolated).
	Resistance(corner, met int, width, dist float64) float64

	// OpenFringe is the fallback rate for a side with no neighbour.
	OpenFringe(corner, met int, width float64) float64

	// Via is the resistance of one cut between cut and cut+1.
	Via(corner, cut int) float64
}

type kind int

const (
	kindCoupling kind = iota
	kindFringe
	kindResistance
	kindOpen
	kindVia
)

var kindNames = map[string]kind{
	"coupling":   kindCoupling,
	"fringe":     kindFringe,
	"resistance": kindResistance,
	"open":       kindOpen,
	"via":        kindVia,
}

type tableKey struct {
	kind     kind
	corner   int
	met      int
	neighbor int
}

// row is a curve over distance at one width
type row struct {
	width float64
	pred  interp.Predictor
}

// table holds width rows sorted by width
type table struct {
	rows []row
}

// at interpolates linearly between the two width rows bracketing width and
// clamps outside the grid; each row clamps outside its distance grid.
func (t *table) at(width, dist float64) float64 {
	n := len(t.rows)
	if n == 0 {
		return 0
	}
	if n == 1 || width <= t.rows[0].width {
		return t.rows[0].pred.Predict(dist)
	}
	if width >= t.rows[n-1].width {
		return t.rows[n-1].pred.Predict(dist)
	}
	i := sort.Search(n, func(i int) bool { return t.rows[i].width > width }) - 1
	lo, hi := t.rows[i], t.rows[i+1]
	f := (width - lo.width) / (hi.width - lo.width)
	return lo.pred.Predict(dist)*(1-f) + hi.pred.Predict(dist)*f
}

// Tables is a Model built from a rules file
type Tables struct {
	Name  string
	Units string

	corners []string
	tables  map[tableKey]*table
	levels  map[int]bool
}

// Build validates a parsed rules file and builds its lookup tables.
func Build(file *RulesFile) (*Tables, error) {
	t := &Tables{
		Name:   file.Name,
		Units:  file.Units,
		tables: make(map[tableKey]*table),
		levels: make(map[int]bool),
	}
	if t.Units == "" {
		t.Units = "micron"
	}

	cornerIdx := make(map[string]int)
	for _, c := range file.Corners {
		if _, dup := cornerIdx[c.Name]; dup {
			return nil, fmt.Errorf("duplicate corner %q", c.Name)
		}
		cornerIdx[c.Name] = len(t.corners)
		t.corners = append(t.corners, c.Name)
	}

	// nm files are converted to microns once here
	scale := 1.0
	if t.Units == "nm" {
		scale = 1e-3
	}

	for _, m := range file.Metals {
		if m.Level <= 0 {
			return nil, fmt.Errorf("metal level must be positive, got %d", m.Level)
		}
		t.levels[m.Level] = true

		widths := make(map[tableKey]map[float64]bool)
		for _, e := range m.Entries {
			ci, ok := cornerIdx[e.Corner]
			if !ok {
				return nil, fmt.Errorf("metal %d: undeclared corner %q", m.Level, e.Corner)
			}
			key := tableKey{kind: kindNames[e.Kind], corner: ci, met: m.Level, neighbor: m.Level}
			if e.Neighbor != nil {
				if key.kind != kindFringe {
					return nil, fmt.Errorf("metal %d: neighbor is only valid on fringe rows", m.Level)
				}
				key.neighbor = *e.Neighbor
			}

			width := 0.0
			if e.Width != nil {
				width = *e.Width * scale
			}
			if widths[key] == nil {
				widths[key] = make(map[float64]bool)
			}
			if widths[key][width] {
				return nil, fmt.Errorf("metal %d: duplicate %s row for corner %s width %g", m.Level, e.Kind, e.Corner, width)
			}
			widths[key][width] = true

			pred, err := buildCurve(e, scale)
			if err != nil {
				return nil, fmt.Errorf("metal %d %s %s: %w", m.Level, e.Kind, e.Corner, err)
			}

			tbl := t.tables[key]
			if tbl == nil {
				tbl = &table{}
				t.tables[key] = tbl
			}
			tbl.rows = append(tbl.rows, row{width: width, pred: pred})
		}
	}

	for _, tbl := range t.tables {
		sort.Slice(tbl.rows, func(i, j int) bool { return tbl.rows[i].width < tbl.rows[j].width })
	}

	return t, nil
}

func buildCurve(e *Entry, scale float64) (interp.Predictor, error) {
	if len(e.Dist) == 0 {
		if len(e.Values) != 1 {
			return nil, fmt.Errorf("expected one value without dist, got %d", len(e.Values))
		}
		return interp.Constant(e.Values[0]), nil
	}
	if len(e.Dist) != len(e.Values) {
		return nil, fmt.Errorf("%d distances but %d values", len(e.Dist), len(e.Values))
	}
	xs := make([]float64, len(e.Dist))
	for i, d := range e.Dist {
		xs[i] = d * scale
		if i > 0 && xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("distances must be strictly increasing")
		}
	}
	if len(xs) == 1 {
		return interp.Constant(e.Values[0]), nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, e.Values); err != nil {
		return nil, err
	}
	return pl, nil
}

func (t *Tables) lookup(k kind, corner, met, neighbor int, width, dist float64) float64 {
	tbl, ok := t.tables[tableKey{kind: k, corner: corner, met: met, neighbor: neighbor}]
	if !ok {
		return 0
	}
	return tbl.at(width, dist)
}

func (t *Tables) Corners() []string { return t.corners }

// Fringe falls back to the nearest characterised neighbour on the same side
// when the exact (met, neighbor) pair has no table.
func (t *Tables) Fringe(corner, met, neighbor int, width, dist float64) float64 {
	if tbl, ok := t.tables[tableKey{kindFringe, corner, met, neighbor}]; ok {
		return tbl.at(width, dist)
	}
	if neighbor == met {
		return 0
	}
	step := 1
	if neighbor < met {
		step = -1
	}
	// search outward first, then back toward met
	for n := neighbor + step; n >= 0 && n <= t.maxLevel()+1; n += step {
		if tbl, ok := t.tables[tableKey{kindFringe, corner, met, n}]; ok {
			return tbl.at(width, dist)
		}
	}
	for n := neighbor - step; n != met; n -= step {
		if tbl, ok := t.tables[tableKey{kindFringe, corner, met, n}]; ok {
			return tbl.at(width, dist)
		}
	}
	return 0
}

func (t *Tables) Coupling(corner, met int, width, dist float64) float64 {
	return t.lookup(kindCoupling, corner, met, met, width, dist)
}

func (t *Tables) Resistance(corner, met int, width, dist float64) float64 {
	return t.lookup(kindResistance, corner, met, met, width, dist)
}

func (t *Tables) OpenFringe(corner, met int, width float64) float64 {
	return t.lookup(kindOpen, corner, met, met, width, 0)
}

func (t *Tables) Via(corner, cut int) float64 {
	return t.lookup(kindVia, corner, cut, cut, 0, 0)
}

func (t *Tables) maxLevel() int {
	m := 0
	for l := range t.levels {
		m = max(m, l)
	}
	return m
}

// Levels returns the characterised metal levels in ascending order.
func (t *Tables) Levels() []int {
	levels := make([]int, 0, len(t.levels))
	for l := range t.levels {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	return levels
}

// RowCount returns the number of width rows for one kind on a level,
// summed over corners. Kind is one of the rules file keywords.
func (t *Tables) RowCount(level int, kindName string) int {
	k, ok := kindNames[kindName]
	if !ok {
		return 0
	}
	n := 0
	for key, tbl := range t.tables {
		if key.kind == k && key.met == level {
			n += len(tbl.rows)
		}
	}
	return n
}

// Constant is a Model returning fixed unit values for every query.
type Constant struct {
	CornerNames    []string
	CouplingRate   float64
	FringeRate     float64
	OpenRate       float64
	ResistanceRate float64
	ViaResistance  float64
}

func (c Constant) Corners() []string {
	if len(c.CornerNames) == 0 {
		return []string{"typ"}
	}
	return c.CornerNames
}

func (c Constant) Fringe(corner, met, neighbor int, width, dist float64) float64 {
	return c.FringeRate
}

func (c Constant) Coupling(corner, met int, width, dist float64) float64 {
	return c.CouplingRate
}

func (c Constant) Resistance(corner, met int, width, dist float64) float64 {
	return c.ResistanceRate
}

func (c Constant) OpenFringe(corner, met int, width float64) float64 {
	return c.OpenRate
}

func (c Constant) Via(corner, cut int) float64 { return c.ViaResistance }
