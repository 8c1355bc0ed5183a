// Package rcgraph turns measured wire values into the electrical graph:
// one resistor segment per wire, ground capacitance on its target node,
// and coupling capacitors between nets.
package rcgraph

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
)

// Store is the graph the builder mutates
type Store interface {
	EnsureNode(k parasitics.NodeKey) (*parasitics.CapNode, bool)
	RSeg(k parasitics.ShapeKey) (*parasitics.RSeg, bool)
	CreateRSeg(k parasitics.ShapeKey, src, tgt parasitics.NodeID) (*parasitics.RSeg, bool)
	CCSeg(a, b parasitics.NodeID) (*parasitics.CCSeg, bool)
	CreateCCSeg(a, b parasitics.NodeID) *parasitics.CCSeg
}

// FillFunc returns resistance and ground capacitance for a shape the
// sweep never measured.
type FillFunc func(n *layout.Net, s *layout.Shape) (res, ground []float64)

type netInfo struct {
	net  *layout.Net
	topo *layout.Topology
}

// Counters summarise builder activity
type Counters struct {
	Segments  int
	Couplings int // coupling capacitors created
	Folded    int // coupling values folded into ground
	Filled    int
	Skipped   int
}

// Builder commits measured values into a Store.
type Builder struct {
	store     Store
	corners   int
	threshold float64
	nets      map[int]*netInfo
	log       *slog.Logger
	counters  Counters
}

// New creates a builder writing corners values per element. Coupling below
// threshold at the first corner is folded into ground.
func New(store Store, corners int, threshold float64, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		store:     store,
		corners:   corners,
		threshold: threshold,
		nets:      make(map[int]*netInfo),
		log:       log,
	}
}

// Register makes a signal net known to the builder and derives its tree.
// Special nets are ignored.
func (b *Builder) Register(n *layout.Net) *layout.Topology {
	if n.IsSpecial() {
		return nil
	}
	topo := layout.BuildTopology(n)
	b.nets[n.ID] = &netInfo{net: n, topo: topo}
	if topo.Islands > 0 {
		b.log.Debug("net has floating islands", "net", n.Name, "islands", topo.Islands)
	}
	for _, t := range topo.Unattached {
		b.log.Warn("terminal touches no shape", "net", n.Name, "term", t)
	}
	return topo
}

// Nets returns the registered net IDs, sorted.
func (b *Builder) Nets() []int {
	out := make([]int, 0, len(b.nets))
	for id := range b.nets {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Counters returns activity counts.
func (b *Builder) Counters() Counters { return b.counters }

func (b *Builder) info(w sweep.Wire) (*netInfo, bool) {
	ni, ok := b.nets[w.Net]
	if !ok {
		b.log.Warn("wire of unknown net", "net", w.Net, "shape", w.Shape)
		b.counters.Skipped++
		return nil, false
	}
	if _, ok := ni.net.Shape(w.Shape); !ok {
		b.log.Warn("unknown shape", "net", ni.net.Name, "shape", w.Shape)
		b.counters.Skipped++
		return nil, false
	}
	return ni, true
}

// node returns the capacitance node for key of net, attaching terminal
// names when the node is created.
func (b *Builder) node(ni *netInfo, key int) *parasitics.CapNode {
	n, created := b.store.EnsureNode(parasitics.NodeKey{Net: ni.net.ID, Key: key})
	if created {
		switch {
		case key >= 0:
			n.Terms = append(n.Terms, ni.topo.Terms[key]...)
		case key == layout.RootKey && ni.topo.RootTerm != "":
			n.Terms = append(n.Terms, ni.topo.RootTerm)
		}
	}
	return n
}

// segment creates the resistor segment of shape. A second segment for the
// same wire is a programming error.
func (b *Builder) segment(ni *netInfo, shape int) *parasitics.RSeg {
	parent, ok := ni.topo.Parent[shape]
	if !ok {
		parent = layout.RootKey
	}
	src := b.node(ni, parent)
	tgt := b.node(ni, shape)
	r, created := b.store.CreateRSeg(parasitics.ShapeKey{Net: ni.net.ID, Shape: shape}, src.ID, tgt.ID)
	if !created {
		panic(fmt.Sprintf("rcgraph: duplicate resistor segment for net %d shape %d", ni.net.ID, shape))
	}
	b.counters.Segments++
	return r
}

func add(dst, src []float64) {
	for i := range min(len(dst), len(src)) {
		dst[i] += src[i]
	}
}

// CommitSegment creates the segment of a measured wire with its resistance
// and adds ground capacitance to its target node.
func (b *Builder) CommitSegment(w sweep.Wire, res, ground []float64) {
	if w.Special() {
		return
	}
	ni, ok := b.info(w)
	if !ok {
		return
	}
	r := b.segment(ni, w.Shape)
	copy(r.Res, res)
	add(b.node(ni, w.Shape).Ground, ground)
}

// AddGround adds capacitance measured from a neighbour to w's node.
func (b *Builder) AddGround(w sweep.Wire, caps []float64) {
	if w.Special() {
		return
	}
	ni, ok := b.info(w)
	if !ok {
		return
	}
	add(b.node(ni, w.Shape).Ground, caps)
}

// CommitCoupling records coupling between source a and neighbour c. Power
// and obstruction sides and same-net pairs fold into a's ground. Between
// nets the value accumulates into an existing capacitor; a new one is made
// only at or above the threshold or next to a terminal, otherwise the value
// goes to ground on both sides.
func (b *Builder) CommitCoupling(a, c sweep.Wire, caps []float64) {
	switch {
	case a.Special() && c.Special():
		return
	case a.Special():
		b.AddGround(c, caps)
		return
	case c.Special() || a.Net == c.Net:
		b.AddGround(a, caps)
		b.counters.Folded++
		return
	}

	na, ok := b.info(a)
	if !ok {
		return
	}
	nc, ok := b.info(c)
	if !ok {
		return
	}
	x := b.node(na, a.Shape)
	y := b.node(nc, c.Shape)

	if cc, ok := b.store.CCSeg(x.ID, y.ID); ok {
		add(cc.Cap, caps)
		return
	}
	if (len(caps) > 0 && caps[0] >= b.threshold) ||
		na.topo.TouchesTerminal(a.Shape) || nc.topo.TouchesTerminal(c.Shape) {
		add(b.store.CreateCCSeg(x.ID, y.ID).Cap, caps)
		b.counters.Couplings++
		return
	}
	add(x.Ground, caps)
	add(y.Ground, caps)
	b.counters.Folded++
}

// Finalize gives every shape of every registered net a segment, filling
// the ones the sweep never committed with fill.
func (b *Builder) Finalize(fill FillFunc) {
	for _, id := range b.Nets() {
		ni := b.nets[id]
		for _, shape := range ni.topo.Order {
			if _, ok := b.store.RSeg(parasitics.ShapeKey{Net: id, Shape: shape}); ok {
				continue
			}
			s, _ := ni.net.Shape(shape)
			res, ground := fill(ni.net, s)
			r := b.segment(ni, shape)
			copy(r.Res, res)
			add(b.node(ni, shape).Ground, ground)
			b.counters.Filled++
		}
	}
}
