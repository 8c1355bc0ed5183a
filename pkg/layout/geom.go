package layout

import "fmt"

// Axis selects a coordinate: X (0) or Y (1).
type Axis int

const (
	X Axis = 0
	Y Axis = 1
)

func (a Axis) String() string {
	if a == X {
		return "x"
	}
	return "y"
}

// Dir is a wire orientation. The numeric value is also the axis along which
// parallel wires of that orientation are stacked, so a horizontal wire's
// track coordinate is its Y position.
type Dir int

const (
	Vertical   Dir = 0
	Horizontal Dir = 1
)

// Axis returns the stacking axis of wires with this orientation.
func (d Dir) Axis() Axis { return Axis(d) }

// Along returns the axis the wire runs along.
func (d Dir) Along() Axis { return Axis(1 - d) }

func (d Dir) String() string {
	if d == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

// ParseDir accepts "horizontal"/"h" and "vertical"/"v".
func ParseDir(s string) (Dir, error) {
	switch s {
	case "horizontal", "h", "H":
		return Horizontal, nil
	case "vertical", "v", "V":
		return Vertical, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Rect is an axis-aligned rectangle in database units. Bounds are
// inclusive at the low edge and exclusive at the high edge.
type Rect struct {
	XMin, YMin, XMax, YMax int
}

// R builds a Rect, normalising corner order.
func R(x1, y1, x2, y2 int) Rect {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Rect{XMin: x1, YMin: y1, XMax: x2, YMax: y2}
}

func (r Rect) Dx() int { return r.XMax - r.XMin }
func (r Rect) Dy() int { return r.YMax - r.YMin }

// Lo returns the low bound on axis a.
func (r Rect) Lo(a Axis) int {
	if a == X {
		return r.XMin
	}
	return r.YMin
}

// Hi returns the high bound on axis a.
func (r Rect) Hi(a Axis) int {
	if a == X {
		return r.XMax
	}
	return r.YMax
}

// Extent returns Hi(a) - Lo(a).
func (r Rect) Extent(a Axis) int { return r.Hi(a) - r.Lo(a) }

// Dir classifies the rectangle by its long axis. Squares are horizontal.
func (r Rect) Dir() Dir {
	if r.Dx() >= r.Dy() {
		return Horizontal
	}
	return Vertical
}

// Width is the short-side extent.
func (r Rect) Width() int {
	return min(r.Dx(), r.Dy())
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.XMax <= r.XMin || r.YMax <= r.YMin
}

// Overlaps reports whether r and o share interior area.
func (r Rect) Overlaps(o Rect) bool {
	return r.XMin < o.XMax && o.XMin < r.XMax && r.YMin < o.YMax && o.YMin < r.YMax
}

// Touches reports whether r and o overlap or abut, which is how shapes on
// the same layer connect.
func (r Rect) Touches(o Rect) bool {
	return r.XMin <= o.XMax && o.XMin <= r.XMax && r.YMin <= o.YMax && o.YMin <= r.YMax
}

// Union returns the bounding box of r and o. An empty receiver is ignored.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	return Rect{
		XMin: min(r.XMin, o.XMin),
		YMin: min(r.YMin, o.YMin),
		XMax: max(r.XMax, o.XMax),
		YMax: max(r.YMax, o.YMax),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.XMin, r.YMin, r.XMax, r.YMax)
}
