// Package parasitics is the electrical graph extraction writes into:
// capacitance nodes, resistor segments between them, and coupling
// capacitors joining nodes of different nets. Values are per corner.
package parasitics

import (
	"errors"
	"fmt"
	"sort"
)

// NodeKey identifies a capacitance node: a shape ID of the net, or one of
// the root keys of layout.Topology.
type NodeKey struct {
	Net int
	Key int
}

// ShapeKey identifies the wire a resistor segment models.
type ShapeKey struct {
	Net   int
	Shape int
}

type NodeID int

// CapNode is a capacitance node
type CapNode struct {
	ID     NodeID
	Net    int
	Key    int
	Ground []float64
	Terms  []string
}

// RSeg is a resistor segment from Source to Target
type RSeg struct {
	Net    int
	Shape  int
	Source NodeID
	Target NodeID
	Res    []float64
}

// CCSeg is a coupling capacitor between nodes of two nets. A is the node
// with the lower ID.
type CCSeg struct {
	A, B NodeID
	Cap  []float64
}

var ErrNoNet = errors.New("net has no extracted graph")

type ccKey struct{ a, b NodeID }

func pair(a, b NodeID) ccKey {
	if a > b {
		a, b = b, a
	}
	return ccKey{a, b}
}

// Network stores the graph of every net. It is not safe for concurrent use.
type Network struct {
	corners []string

	next  NodeID
	nodes map[NodeID]*CapNode
	byKey map[NodeKey]NodeID

	rsegs map[ShapeKey]*RSeg
	ccs   map[ccKey]*CCSeg
	nodeC map[NodeID][]ccKey

	netNodes  map[int][]NodeID
	netRSegs  map[int][]ShapeKey
	names     map[int]string
	extracted map[int]bool
}

// NewNetwork creates an empty network with the given corner names.
func NewNetwork(corners []string) *Network {
	nw := &Network{corners: append([]string(nil), corners...)}
	nw.reset()
	return nw
}

func (nw *Network) reset() {
	nw.next = 1
	nw.nodes = make(map[NodeID]*CapNode)
	nw.byKey = make(map[NodeKey]NodeID)
	nw.rsegs = make(map[ShapeKey]*RSeg)
	nw.ccs = make(map[ccKey]*CCSeg)
	nw.nodeC = make(map[NodeID][]ccKey)
	nw.netNodes = make(map[int][]NodeID)
	nw.netRSegs = make(map[int][]ShapeKey)
	if nw.names == nil {
		nw.names = make(map[int]string)
	}
	nw.extracted = make(map[int]bool)
}

// Corners returns the corner names.
func (nw *Network) Corners() []string { return nw.corners }

// SetNetName records the name used when writing the network out.
func (nw *Network) SetNetName(net int, name string) { nw.names[net] = name }

// NetName returns the recorded name of net, or "net<ID>".
func (nw *Network) NetName(net int) string {
	if n, ok := nw.names[net]; ok {
		return n
	}
	return fmt.Sprintf("net%d", net)
}

func (nw *Network) zero() []float64 { return make([]float64, len(nw.corners)) }

// Node returns the node for k.
func (nw *Network) Node(k NodeKey) (*CapNode, bool) {
	id, ok := nw.byKey[k]
	if !ok {
		return nil, false
	}
	return nw.nodes[id], true
}

// NodeByID returns the node with the given ID.
func (nw *Network) NodeByID(id NodeID) (*CapNode, bool) {
	n, ok := nw.nodes[id]
	return n, ok
}

// EnsureNode looks up or creates the node for k and reports whether it
// was created.
func (nw *Network) EnsureNode(k NodeKey) (*CapNode, bool) {
	if n, ok := nw.Node(k); ok {
		return n, false
	}
	n := &CapNode{ID: nw.next, Net: k.Net, Key: k.Key, Ground: nw.zero()}
	nw.next++
	nw.nodes[n.ID] = n
	nw.byKey[k] = n.ID
	nw.netNodes[k.Net] = append(nw.netNodes[k.Net], n.ID)
	return n, true
}

// RSeg returns the resistor segment of a wire.
func (nw *Network) RSeg(k ShapeKey) (*RSeg, bool) {
	r, ok := nw.rsegs[k]
	return r, ok
}

// CreateRSeg adds a segment for k. It returns false, and the existing
// segment, if k already has one.
func (nw *Network) CreateRSeg(k ShapeKey, src, tgt NodeID) (*RSeg, bool) {
	if r, ok := nw.rsegs[k]; ok {
		return r, false
	}
	r := &RSeg{Net: k.Net, Shape: k.Shape, Source: src, Target: tgt, Res: nw.zero()}
	nw.rsegs[k] = r
	nw.netRSegs[k.Net] = append(nw.netRSegs[k.Net], k)
	return r, true
}

// CCSeg returns the coupling capacitor between a and b.
func (nw *Network) CCSeg(a, b NodeID) (*CCSeg, bool) {
	c, ok := nw.ccs[pair(a, b)]
	return c, ok
}

// CreateCCSeg adds a coupling capacitor between a and b, or returns the
// existing one.
func (nw *Network) CreateCCSeg(a, b NodeID) *CCSeg {
	k := pair(a, b)
	if c, ok := nw.ccs[k]; ok {
		return c
	}
	c := &CCSeg{A: k.a, B: k.b, Cap: nw.zero()}
	nw.ccs[k] = c
	nw.nodeC[k.a] = append(nw.nodeC[k.a], k)
	nw.nodeC[k.b] = append(nw.nodeC[k.b], k)
	return c
}

// ClearNet removes the graph of net, including every coupling capacitor
// touching it, and unsets its extracted flag.
func (nw *Network) ClearNet(net int) {
	for _, id := range nw.netNodes[net] {
		n := nw.nodes[id]
		for _, k := range nw.nodeC[id] {
			if _, ok := nw.ccs[k]; !ok {
				continue
			}
			delete(nw.ccs, k)
			other := k.a
			if other == id {
				other = k.b
			}
			nw.nodeC[other] = removeKey(nw.nodeC[other], k)
		}
		delete(nw.nodeC, id)
		delete(nw.byKey, NodeKey{n.Net, n.Key})
		delete(nw.nodes, id)
	}
	for _, k := range nw.netRSegs[net] {
		delete(nw.rsegs, k)
	}
	delete(nw.netNodes, net)
	delete(nw.netRSegs, net)
	delete(nw.extracted, net)
}

func removeKey(keys []ccKey, k ccKey) []ccKey {
	out := keys[:0]
	for _, x := range keys {
		if x != k {
			out = append(out, x)
		}
	}
	return out
}

// Clear removes every graph. Net names are kept.
func (nw *Network) Clear() { nw.reset() }

// SetExtracted flags net as the product of a completed run.
func (nw *Network) SetExtracted(net int, ok bool) {
	if ok {
		nw.extracted[net] = true
	} else {
		delete(nw.extracted, net)
	}
}

// Extracted reports whether net was completed by the last run.
func (nw *Network) Extracted(net int) bool { return nw.extracted[net] }

// Nets returns the IDs of nets with at least one node, sorted.
func (nw *Network) Nets() []int {
	out := make([]int, 0, len(nw.netNodes))
	for n, ids := range nw.netNodes {
		if len(ids) > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// Nodes returns the nodes of net in creation order.
func (nw *Network) Nodes(net int) []*CapNode {
	ids := nw.netNodes[net]
	out := make([]*CapNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, nw.nodes[id])
	}
	return out
}

// RSegs returns the resistor segments of net ordered by shape ID.
func (nw *Network) RSegs(net int) []*RSeg {
	keys := nw.netRSegs[net]
	out := make([]*RSeg, 0, len(keys))
	for _, k := range keys {
		out = append(out, nw.rsegs[k])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Shape < out[j].Shape })
	return out
}

// CCSegs returns every coupling capacitor touching net, ordered by node
// pair.
func (nw *Network) CCSegs(net int) []*CCSeg {
	seen := make(map[ccKey]bool)
	var out []*CCSeg
	for _, id := range nw.netNodes[net] {
		for _, k := range nw.nodeC[id] {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, nw.ccs[k])
		}
	}
	sortCC(out)
	return out
}

// AllCCSegs returns every coupling capacitor ordered by node pair.
func (nw *Network) AllCCSegs() []*CCSeg {
	out := make([]*CCSeg, 0, len(nw.ccs))
	for _, c := range nw.ccs {
		out = append(out, c)
	}
	sortCC(out)
	return out
}

func sortCC(cs []*CCSeg) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].A != cs[j].A {
			return cs[i].A < cs[j].A
		}
		return cs[i].B < cs[j].B
	})
}

// Stats counts graph elements
type Stats struct {
	Nets   int
	Nodes  int
	RSegs  int
	CCSegs int
}

func (nw *Network) Stats() Stats {
	return Stats{
		Nets:   len(nw.Nets()),
		Nodes:  len(nw.nodes),
		RSegs:  len(nw.rsegs),
		CCSegs: len(nw.ccs),
	}
}

// GroundCap sums the ground capacitance of net at corner.
func (nw *Network) GroundCap(net, corner int) float64 {
	total := 0.0
	for _, id := range nw.netNodes[net] {
		total += nw.nodes[id].Ground[corner]
	}
	return total
}

// CouplingCap sums the coupling capacitance touching net at corner.
func (nw *Network) CouplingCap(net, corner int) float64 {
	total := 0.0
	for _, c := range nw.CCSegs(net) {
		total += c.Cap[corner]
	}
	return total
}

// NetCapacitance is ground plus coupling capacitance of net at corner.
func (nw *Network) NetCapacitance(net, corner int) float64 {
	return nw.GroundCap(net, corner) + nw.CouplingCap(net, corner)
}

// NetResistance sums the segment resistance of net at corner.
func (nw *Network) NetResistance(net, corner int) float64 {
	total := 0.0
	for _, k := range nw.netRSegs[net] {
		total += nw.rsegs[k].Res[corner]
	}
	return total
}
