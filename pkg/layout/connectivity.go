package layout

import "sort"

// RootKey is the node key of a net's driving terminal. Floating islands of
// geometry not reachable from the driver are rooted at FloatingKey(i).
const RootKey = -1

// FloatingKey returns the root key of the i-th disconnected island.
func FloatingKey(i int) int { return -2 - i }

// Topology is the spanning tree of a net's shapes, rooted at its driver.
type Topology struct {
	// Parent maps a shape ID to its parent shape ID, RootKey, or a
	// FloatingKey when the shape is not reachable from the driver.
	Parent map[int]int

	// Terms maps a shape ID to the terminals landing on it.
	Terms map[int][]string

	// RootTerm is the driver terminal name, empty when the net has none.
	RootTerm string

	// Order lists shape IDs in breadth-first order from the root.
	Order []int

	// Islands counts disconnected pieces not reachable from the root.
	Islands int

	// Unattached lists terminals that touch no shape.
	Unattached []string
}

// Children returns the shapes whose parent is key, in traversal order.
func (t *Topology) Children(key int) []int {
	var out []int
	for _, id := range t.Order {
		if t.Parent[id] == key {
			out = append(out, id)
		}
	}
	return out
}

type box struct {
	level int
	rect  Rect
}

func shapeBoxes(s *Shape) []box {
	boxes := []box{{s.Level, s.Rect}}
	if s.Via {
		boxes = append(boxes, box{s.Level + 1, s.Top})
	}
	return boxes
}

func boxesTouch(a, b []box) bool {
	for _, x := range a {
		for _, y := range b {
			if x.level == y.level && x.rect.Touches(y.rect) {
				return true
			}
		}
	}
	return false
}

// BuildTopology derives connectivity from geometry: shapes connect when
// boxes on the same level touch, and vias connect their two levels. The
// tree is a breadth-first spanning tree from the driver terminal (the first
// terminal flagged driver, else the first terminal). Extra connections
// that would close a loop are ignored.
func BuildTopology(n *Net) *Topology {
	t := &Topology{
		Parent: make(map[int]int, len(n.Shapes)),
		Terms:  make(map[int][]string),
	}

	shapes := make([]*Shape, len(n.Shapes))
	for i := range n.Shapes {
		shapes[i] = &n.Shapes[i]
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].ID < shapes[j].ID })

	boxes := make([][]box, len(shapes))
	for i, s := range shapes {
		boxes[i] = shapeBoxes(s)
	}

	// adjacency, quadratic in shapes per net
	adj := make([][]int, len(shapes))
	for i := range shapes {
		for j := i + 1; j < len(shapes); j++ {
			if boxesTouch(boxes[i], boxes[j]) {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}

	driver := -1
	for i, term := range n.Terms {
		if term.Driver {
			driver = i
			break
		}
	}
	if driver < 0 && len(n.Terms) > 0 {
		driver = 0
	}

	visited := make([]bool, len(shapes))
	bfs := func(start []int, rootKey int) {
		queue := make([]int, 0, len(start))
		for _, i := range start {
			if visited[i] {
				continue
			}
			visited[i] = true
			t.Parent[shapes[i].ID] = rootKey
			queue = append(queue, i)
		}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			t.Order = append(t.Order, shapes[i].ID)
			for _, j := range adj[i] {
				if visited[j] {
					continue
				}
				visited[j] = true
				t.Parent[shapes[j].ID] = shapes[i].ID
				queue = append(queue, j)
			}
		}
	}

	if driver >= 0 {
		term := n.Terms[driver]
		t.RootTerm = term.Name
		tb := []box{{term.Level, term.Rect}}
		var start []int
		for i := range shapes {
			if boxesTouch(tb, boxes[i]) {
				start = append(start, i)
			}
		}
		bfs(start, RootKey)
	}

	// with no driver at all the first island becomes the root
	first := driver < 0
	for i := range shapes {
		if visited[i] {
			continue
		}
		if first {
			first = false
			bfs([]int{i}, RootKey)
			continue
		}
		bfs([]int{i}, FloatingKey(t.Islands))
		t.Islands++
	}

	for i, term := range n.Terms {
		if i == driver {
			continue
		}
		tb := []box{{term.Level, term.Rect}}
		attached := false
		// attach to the first shape in traversal order it touches
		for _, id := range t.Order {
			s, _ := n.Shape(id)
			if boxesTouch(tb, shapeBoxes(s)) {
				t.Terms[id] = append(t.Terms[id], term.Name)
				attached = true
				break
			}
		}
		if !attached {
			t.Unattached = append(t.Unattached, term.Name)
		}
	}

	return t
}

// TouchesTerminal reports whether the shape carries a terminal or hangs
// directly off the driver.
func (t *Topology) TouchesTerminal(shapeID int) bool {
	if len(t.Terms[shapeID]) > 0 {
		return true
	}
	p, ok := t.Parent[shapeID]
	return ok && p == RootKey && t.RootTerm != ""
}
