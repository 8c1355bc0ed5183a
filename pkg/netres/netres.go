// Package netres reports the DC resistance from a net's driver to each of
// its terminals and the Elmore delay at each terminal, solving the
// extracted resistor network with a sparse nodal matrix.
package netres

import (
	"errors"
	"fmt"
	"sort"

	"github.com/edp1096/sparse"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
)

var (
	ErrNoDriver     = errors.New("net has no driver node")
	ErrNotSolved    = errors.New("nodal matrix could not be solved")
	ErrBadCorner    = errors.New("corner out of range")
	ErrNotExtracted = errors.New("net is not extracted")
)

// minRes stands in for zero-ohm segments so every branch has finite
// conductance.
const minRes = 1e-6

// Terminal is the result for one sink
type Terminal struct {
	Name       string
	Node       parasitics.NodeID
	Resistance float64 // ohms from the driver
	Elmore     float64 // ps
}

// Report is the analysis of one net at one corner
type Report struct {
	Net       int
	Name      string
	Corner    string
	Driver    string
	Nodes     int // nodes connected to the driver
	Floating  int // nodes not connected to the driver
	TotalCap  float64 // fF, ground plus coupling
	TotalRes  float64 // ohms, sum of segments
	Terminals []Terminal
}

// Options tune the analysis
type Options struct {
	// CouplingFactor scales coupling capacitance when it is lumped to
	// ground for the delay estimate. 1 treats the aggressor as quiet.
	CouplingFactor float64
}

// DefaultOptions returns CouplingFactor 1.
func DefaultOptions() Options { return Options{CouplingFactor: 1} }

// Analyze solves net at corner.
func Analyze(nw *parasitics.Network, net, corner int, opts Options) (*Report, error) {
	if corner < 0 || corner >= len(nw.Corners()) {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadCorner, corner, len(nw.Corners()))
	}
	if !nw.Extracted(net) {
		return nil, fmt.Errorf("net %d: %w", net, ErrNotExtracted)
	}

	root, ok := nw.Node(parasitics.NodeKey{Net: net, Key: layout.RootKey})
	if !ok {
		return nil, fmt.Errorf("net %s: %w", nw.NetName(net), ErrNoDriver)
	}

	rep := &Report{
		Net:    net,
		Name:   nw.NetName(net),
		Corner: nw.Corners()[corner],
		Driver: firstTerm(root),
	}

	segs := nw.RSegs(net)
	adj := make(map[parasitics.NodeID][]*parasitics.RSeg)
	for _, r := range segs {
		adj[r.Source] = append(adj[r.Source], r)
		adj[r.Target] = append(adj[r.Target], r)
		rep.TotalRes += r.Res[corner]
	}

	// number the nodes reachable from the driver; the driver is the
	// reference and gets no row
	index := map[parasitics.NodeID]int{root.ID: 0}
	queue := []parasitics.NodeID{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, r := range adj[id] {
			other := r.Target
			if other == id {
				other = r.Source
			}
			if _, seen := index[other]; seen {
				continue
			}
			index[other] = len(index)
			queue = append(queue, other)
		}
	}

	all := nw.Nodes(net)
	rep.Nodes = len(index)
	rep.Floating = len(all) - len(index)

	caps := make(map[parasitics.NodeID]float64, len(all))
	for _, n := range all {
		caps[n.ID] = n.Ground[corner]
	}
	for _, cc := range nw.CCSegs(net) {
		for _, id := range []parasitics.NodeID{cc.A, cc.B} {
			if _, ok := caps[id]; ok {
				caps[id] += opts.CouplingFactor * cc.Cap[corner]
			}
		}
	}
	for _, c := range caps {
		rep.TotalCap += c
	}

	sinks := terminals(all, index)
	if len(sinks) == 0 {
		return rep, nil
	}

	sys, err := newSystem(len(index) - 1)
	if err != nil {
		return nil, err
	}
	defer sys.destroy()

	for _, r := range segs {
		i, ok1 := index[r.Source]
		j, ok2 := index[r.Target]
		if !ok1 || !ok2 {
			continue
		}
		sys.stamp(i, j, 1/max(r.Res[corner], minRes))
	}
	if err := sys.factor(); err != nil {
		return nil, fmt.Errorf("net %s: %w", rep.Name, err)
	}

	// G v = C gives the Elmore delay at every node in ohm*fF
	load := make([]float64, len(index))
	for id, i := range index {
		load[i] = caps[id]
	}
	delay, err := sys.solve(load)
	if err != nil {
		return nil, fmt.Errorf("net %s: %w", rep.Name, err)
	}

	for _, s := range sinks {
		i := index[s.Node]
		unit := make([]float64, len(index))
		unit[i] = 1
		v, err := sys.solve(unit)
		if err != nil {
			return nil, fmt.Errorf("net %s terminal %s: %w", rep.Name, s.Name, err)
		}
		s.Resistance = v[i]
		s.Elmore = delay[i] * 1e-3
		rep.Terminals = append(rep.Terminals, s)
	}
	return rep, nil
}

func firstTerm(n *parasitics.CapNode) string {
	if len(n.Terms) == 0 {
		return ""
	}
	return n.Terms[0]
}

// terminals lists sink terminals on nodes reachable from the driver, by
// name.
func terminals(nodes []*parasitics.CapNode, index map[parasitics.NodeID]int) []Terminal {
	var out []Terminal
	for _, n := range nodes {
		if n.Key == layout.RootKey {
			continue
		}
		if _, ok := index[n.ID]; !ok {
			continue
		}
		for _, name := range n.Terms {
			out = append(out, Terminal{Name: name, Node: n.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// system is the nodal conductance matrix with the driver grounded. Row i
// of the matrix is node index i, 1-based; index 0 is the driver.
type system struct {
	size int
	mat  *sparse.Matrix
}

func newSystem(size int) (*system, error) {
	mat, err := sparse.Create(int64(size), &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nodal matrix: %w", err)
	}
	mat.Clear()
	return &system{size: size, mat: mat}, nil
}

// stamp adds conductance g between nodes i and j.
func (s *system) stamp(i, j int, g float64) {
	if i > 0 {
		s.mat.GetElement(int64(i), int64(i)).Real += g
	}
	if j > 0 {
		s.mat.GetElement(int64(j), int64(j)).Real += g
	}
	if i > 0 && j > 0 {
		s.mat.GetElement(int64(i), int64(j)).Real -= g
		s.mat.GetElement(int64(j), int64(i)).Real -= g
	}
}

func (s *system) factor() error {
	if err := s.mat.Factor(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotSolved, err)
	}
	return nil
}

// solve takes a vector indexed like the node numbering, entry 0 being the
// driver, and returns the node voltages in the same numbering.
func (s *system) solve(rhs []float64) ([]float64, error) {
	b := make([]float64, s.size+1)
	copy(b[1:], rhs[1:])
	x, err := s.mat.Solve(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSolved, err)
	}
	out := make([]float64, s.size+1)
	copy(out[1:], x[1:])
	return out, nil
}

func (s *system) destroy() { s.mat.Destroy() }

// AnalyzeAll reports every extracted net at corner, in net ID order. Nets
// without a driver are skipped.
func AnalyzeAll(nw *parasitics.Network, corner int, opts Options) ([]*Report, error) {
	var out []*Report
	for _, id := range nw.Nets() {
		if !nw.Extracted(id) {
			continue
		}
		rep, err := Analyze(nw, id, corner, opts)
		if errors.Is(err, ErrNoDriver) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}
