// Package layout holds the routed design that extraction reads: routing
// layers, nets with their wire and via shapes, terminals and instances.
package layout

import (
	"iter"
	"sort"
)

// Block is a routed design loaded from a layout file
type Block struct {
	Version   int
	Design    string
	DBU       int // database units per micron
	Die       Rect
	Layers    []Layer
	Nets      []*Net
	Instances []Instance

	netByID   map[int]*Net
	netByName map[string]*Net
}

// Layer is a routing layer
type Layer struct {
	Name    string
	Level   int // routing level, 1 is the lowest metal
	Dir     Dir // preferred direction
	Pitch   int // track pitch in DBU
	Width   int // minimum width in DBU
	Spacing int // minimum spacing in DBU
	Offset  int // first track offset from the die origin
}

// NetUse distinguishes routed signal nets from special (power/ground) nets
type NetUse int

const (
	UseSignal NetUse = iota
	UsePower
	UseGround
)

func (u NetUse) String() string {
	switch u {
	case UsePower:
		return "power"
	case UseGround:
		return "ground"
	}
	return "signal"
}

// Net is an electrical net and its geometry
type Net struct {
	ID     int
	Name   string
	Use    NetUse
	Shapes []Shape
	Terms  []Terminal

	shapeIdx map[int]int
}

// Shape is a wire segment or a via. Shape IDs are unique within a net.
type Shape struct {
	ID    int
	Level int  // routing level; for a via, the cut's bottom level
	Rect  Rect // wire rectangle, or a via's bottom landing box
	Via   bool
	Top   Rect // via top landing box on Level+1
}

// Terminal is an instance pin or block pin attached to a net
type Terminal struct {
	Name   string
	Level  int
	Rect   Rect
	Driver bool
}

// Instance is a placed cell. Obstructions are its internal metal, used as
// extra ground context when requested.
type Instance struct {
	Name         string
	BBox         Rect
	Obstructions []Obstruction
}

// Obstruction is blockage geometry on one layer
type Obstruction struct {
	Level int
	Rect  Rect
}

// IsSpecial reports whether the net is a power or ground net.
func (n *Net) IsSpecial() bool {
	return n.Use == UsePower || n.Use == UseGround
}

// Shape returns the shape with the given ID.
func (n *Net) Shape(id int) (*Shape, bool) {
	if n.shapeIdx == nil {
		n.indexShapes()
	}
	i, ok := n.shapeIdx[id]
	if !ok {
		return nil, false
	}
	return &n.Shapes[i], true
}

func (n *Net) indexShapes() {
	n.shapeIdx = make(map[int]int, len(n.Shapes))
	for i, s := range n.Shapes {
		n.shapeIdx[s.ID] = i
	}
}

// BBox is the bounding box of every shape and terminal of the net.
func (n *Net) BBox() Rect {
	var bb Rect
	for _, s := range n.Shapes {
		bb = bb.Union(s.Rect)
		if s.Via {
			bb = bb.Union(s.Top)
		}
	}
	for _, t := range n.Terms {
		bb = bb.Union(t.Rect)
	}
	return bb
}

// Boxes yields every rectangle of a shape with its level: one for a wire,
// two for a via.
func (s *Shape) Boxes() iter.Seq2[int, Rect] {
	return func(yield func(int, Rect) bool) {
		if !yield(s.Level, s.Rect) {
			return
		}
		if s.Via {
			yield(s.Level+1, s.Top)
		}
	}
}

// Meets reports whether any shape box of the net shares area with area.
// A bounding box crossing area is not enough: an L-shaped net can wrap
// around it.
func (n *Net) Meets(area Rect) bool {
	for i := range n.Shapes {
		for _, r := range n.Shapes[i].Boxes() {
			if r.Overlaps(area) {
				return true
			}
		}
	}
	return false
}

// Length is the long-side extent of a wire.
func (s *Shape) Length() int {
	return max(s.Rect.Dx(), s.Rect.Dy())
}

// Layer returns the routing layer at level.
func (b *Block) Layer(level int) (Layer, bool) {
	for _, l := range b.Layers {
		if l.Level == level {
			return l, true
		}
	}
	return Layer{}, false
}

// Net looks up a net by ID.
func (b *Block) Net(id int) (*Net, bool) {
	if b.netByID == nil {
		b.reindex()
	}
	n, ok := b.netByID[id]
	return n, ok
}

// NetByName looks up a net by name.
func (b *Block) NetByName(name string) (*Net, bool) {
	if b.netByName == nil {
		b.reindex()
	}
	n, ok := b.netByName[name]
	return n, ok
}

// AddNet appends a net and keeps the lookup tables current.
func (b *Block) AddNet(n *Net) {
	b.Nets = append(b.Nets, n)
	if b.netByID != nil {
		b.netByID[n.ID] = n
		b.netByName[n.Name] = n
	}
	n.shapeIdx = nil
}

func (b *Block) reindex() {
	b.netByID = make(map[int]*Net, len(b.Nets))
	b.netByName = make(map[string]*Net, len(b.Nets))
	for _, n := range b.Nets {
		b.netByID[n.ID] = n
		b.netByName[n.Name] = n
	}
}

// Accessors used by the extractor's design interface.

func (b *Block) RoutingLayers() []Layer { return b.Layers }
func (b *Block) DieArea() Rect          { return b.Die }
func (b *Block) DBUPerMicron() int      { return b.DBU }

// AllNets yields nets in ascending ID order.
func (b *Block) AllNets() iter.Seq[*Net] {
	nets := make([]*Net, len(b.Nets))
	copy(nets, b.Nets)
	sort.Slice(nets, func(i, j int) bool { return nets[i].ID < nets[j].ID })
	return func(yield func(*Net) bool) {
		for _, n := range nets {
			if !yield(n) {
				return
			}
		}
	}
}

// AllInstances returns the placed instances.
func (b *Block) AllInstances() []Instance { return b.Instances }
