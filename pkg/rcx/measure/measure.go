// Package measure computes the resistance and capacitance of one source
// wire from its resident neighbourhood: coupling and lateral fringe to
// wires on its own level, fringe to wires on the levels above and below,
// and the open-boundary rate for whatever no neighbour covers.
package measure

import (
	"sort"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/layers"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/search"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/tracker"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

// Sink receives measured values
type Sink interface {
	CommitSegment(w sweep.Wire, res, ground []float64)
	CommitCoupling(a, c sweep.Wire, caps []float64)
	AddGround(w sweep.Wire, caps []float64)
}

// Config selects the neighbourhood searched around a source.
type Config struct {
	PowerCoupling bool
	DBUPerMicron  int
}

// Stats counts what Measure saw. Lengths are in microns.
type Stats struct {
	Sources    int
	Couplings  int
	Neighbours int
	Covered    float64 // long-axis length covered by any coplanar neighbour
	Open       float64 // length charged at the open rate
}

// Computer measures sources of one pass.
type Computer struct {
	model   techmodel.Model
	layers  *layers.Table
	index   *search.Index
	context *tracker.Tracker
	sink    Sink
	cfg     Config
	corners int
	stats   Stats
}

// New creates a computer reading neighbours from index and tr.
func New(model techmodel.Model, lt *layers.Table, index *search.Index, tr *tracker.Tracker, sink Sink, cfg Config) *Computer {
	if cfg.DBUPerMicron <= 0 {
		cfg.DBUPerMicron = 1000
	}
	return &Computer{
		model:   model,
		layers:  lt,
		index:   index,
		context: tr,
		sink:    sink,
		cfg:     cfg,
		corners: len(model.Corners()),
	}
}

// Stats returns accumulated counts.
func (c *Computer) Stats() Stats { return c.stats }

func (c *Computer) um(dbu int) float64 {
	return float64(dbu) / float64(c.cfg.DBUPerMicron)
}

func (c *Computer) zero() []float64 { return make([]float64, c.corners) }

type neighbour struct {
	wire  sweep.Wire
	gap   int
	width int
	span  sweep.Span
}

func sortNearest(ns []neighbour) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].gap != ns[j].gap {
			return ns[i].gap < ns[j].gap
		}
		if ns[i].wire.Net != ns[j].wire.Net {
			return ns[i].wire.Net < ns[j].wire.Net
		}
		return ns[i].wire.Shape < ns[j].wire.Shape
	})
}

// Measure computes and commits source s.
func (c *Computer) Measure(st *sweep.State, s sweep.Wire) {
	c.stats.Sources++
	ground := c.zero()

	above, below := c.coplanar(st, s)
	long := st.LongSpan(s.Rect)
	c.lateral(s, long, above, false, ground)
	c.lateral(s, long, below, true, ground)
	c.crossLevel(st, s, ground)
	res := c.resistance(st, s, above, below)

	c.sink.CommitSegment(s, res, ground)
}

// coplanar collects same-level neighbours within coupling reach, split by
// side and sorted nearest first. Pieces of one wire collapse into one.
func (c *Computer) coplanar(st *sweep.State, s sweep.Wire) (above, below []neighbour) {
	p := c.layers.Pitch(s.Level)
	reach := st.CouplingTracks * p
	lo, hi := st.SweepLo(s.Rect), st.SweepHi(s.Rect)

	seen := make(map[sweep.Key]bool)
	for e := range c.index.Query(st.Dir, s.Level, lo-reach, hi+reach) {
		k := e.Key()
		if k == s.Key() || seen[k] {
			continue
		}
		seen[k] = true
		if e.Type == sweep.Power && !c.cfg.PowerCoupling {
			continue
		}
		elo, ehi := st.SweepLo(e.Rect), st.SweepHi(e.Rect)
		nb := neighbour{wire: e.Wire, width: e.Rect.Width(), span: st.LongSpan(e.Rect)}
		switch {
		case elo >= hi && elo-hi <= reach:
			nb.gap = elo - hi
			above = append(above, nb)
		case ehi <= lo && lo-ehi <= reach:
			nb.gap = lo - ehi
			below = append(below, nb)
		}
	}
	sortNearest(above)
	sortNearest(below)
	c.stats.Neighbours += len(above) + len(below)
	return above, below
}

// lateral partitions s's long span nearest first over one side. A covered
// piece couples s to the neighbour and adds lateral fringe to both. On the
// lower side a source neighbour owns the pair and the piece is skipped.
// Residue is charged at the open rate.
func (c *Computer) lateral(s sweep.Wire, long sweep.Span, side []neighbour, lower bool, ground []float64) {
	met := s.Level
	w := c.um(s.Rect.Width())
	residue := []sweep.Span{long}

	for _, nb := range side {
		in, out := sweep.Cut(residue, nb.span.Lo, nb.span.Hi)
		if len(in) == 0 {
			continue
		}
		residue = out
		length := c.um(sweep.Total(in))
		c.stats.Covered += length
		if lower && nb.wire.IsSource() {
			continue
		}

		gap := c.um(nb.gap)
		we := c.um(nb.width)
		cc := c.zero()
		share := c.zero()
		for i := range c.corners {
			cc[i] = length * c.model.Coupling(i, met, w, gap)
			ground[i] += length * c.model.Fringe(i, met, met, w, gap)
			share[i] = length * c.model.Fringe(i, met, met, we, gap)
		}
		c.sink.CommitCoupling(s, nb.wire, cc)
		c.sink.AddGround(nb.wire, share)
		c.stats.Couplings++
	}
	c.open(met, w, residue, ground)
}

func (c *Computer) open(met int, w float64, residue []sweep.Span, ground []float64) {
	length := c.um(sweep.Total(residue))
	if length == 0 {
		return
	}
	c.stats.Open += length
	for i := range c.corners {
		ground[i] += length * c.model.OpenFringe(i, met, w)
	}
}

// crossLevel walks the levels above s outward, then the levels below, each
// with its own residue chain. Tracks of a level are visited nearest first
// and every covered piece adds fringe to s's own ground.
func (c *Computer) crossLevel(st *sweep.State, s sweep.Wire, ground []float64) {
	met := s.Level
	w := c.um(s.Rect.Width())
	lo, hi := st.SweepLo(s.Rect), st.SweepHi(s.Rect)
	long := st.LongSpan(s.Rect)
	pos := tracker.Pos{Sweep: lo, Long: long.Lo}

	up, down := c.chains(met, st.ContextLayers)
	for _, chain := range [][]int{up, down} {
		residue := []sweep.Span{long}
		for _, level := range chain {
			if len(residue) == 0 {
				break
			}
			reach := st.CouplingTracks * c.layers.Pitch(level)
			accept := func(q *tracker.Seq) bool {
				return gap(lo, hi, q.WLo, q.WHi) <= reach
			}
			for _, tr := range c.context.Tracks(level, lo-reach, hi+reach, lo, hi) {
				var next []sweep.Span
				for _, sp := range residue {
					covered, rest := c.context.Overlap(level, tr, pos, sp, accept)
					for _, cv := range covered {
						length := c.um(cv.Span.Len())
						dist := c.um(gap(lo, hi, cv.Seq.WLo, cv.Seq.WHi))
						we := c.um(cv.Seq.Width)
						for i := range c.corners {
							ground[i] += length * c.model.Fringe(i, met, level, we, dist)
						}
					}
					next = append(next, rest...)
				}
				residue = next
				if len(residue) == 0 {
					break
				}
			}
		}
		c.open(met, w, residue, ground)
	}
}

// chains returns the levels above met, nearest first, then those below.
func (c *Computer) chains(met, k int) (up, down []int) {
	for l := met + 1; l <= min(met+k, c.layers.Top()); l++ {
		up = append(up, l)
	}
	for l := met - 1; l >= max(met-k, 1); l-- {
		down = append(down, l)
	}
	return up, down
}

// resistance partitions s over the coplanar neighbours within the
// resistance window on either side, nearest first. Uncovered length uses
// the isolated rate.
func (c *Computer) resistance(st *sweep.State, s sweep.Wire, above, below []neighbour) []float64 {
	met := s.Level
	w := c.um(s.Rect.Width())
	limit := st.ResistanceTracks * c.layers.Pitch(met)

	var near []neighbour
	for _, side := range [][]neighbour{above, below} {
		for _, nb := range side {
			if nb.gap <= limit {
				near = append(near, nb)
			}
		}
	}
	sortNearest(near)

	res := c.zero()
	residue := []sweep.Span{st.LongSpan(s.Rect)}
	for _, nb := range near {
		in, out := sweep.Cut(residue, nb.span.Lo, nb.span.Hi)
		if len(in) == 0 {
			continue
		}
		residue = out
		length := c.um(sweep.Total(in))
		g := c.um(nb.gap)
		for i := range c.corners {
			res[i] += length * c.model.Resistance(i, met, w, g)
		}
	}
	length := c.um(sweep.Total(residue))
	for i := range c.corners {
		res[i] += length * c.model.Resistance(i, met, w, 0)
	}
	return res
}

// gap is the distance between [alo, ahi) and [blo, bhi), zero when they
// overlap.
func gap(alo, ahi, blo, bhi int) int {
	return max(0, blo-ahi, alo-bhi)
}
