package layout

import (
	"iter"
	"sort"

	"github.com/dhconnelly/rtreego"
)

// minExtent pads degenerate boxes; rtreego rejects zero-length sides.
const minExtent = 1e-3

// bboxItem is an R-tree entry for a net or instance bounding box
type bboxItem struct {
	rect rtreego.Rect
	net  *Net
	inst *Instance
}

func (b *bboxItem) Bounds() rtreego.Rect { return b.rect }

func toRtree(r Rect) rtreego.Rect {
	dx := max(float64(r.Dx()), minExtent)
	dy := max(float64(r.Dy()), minExtent)
	rect, err := rtreego.NewRect(rtreego.Point{float64(r.XMin), float64(r.YMin)}, []float64{dx, dy})
	if err != nil {
		// lengths are clamped positive above
		panic(err)
	}
	return rect
}

// BBoxIndex answers "which nets/instances meet this area" queries.
type BBoxIndex struct {
	nets  *rtreego.Rtree
	insts *rtreego.Rtree
}

// NewBBoxIndex indexes the bounding boxes of every net with geometry and
// every instance.
func NewBBoxIndex(nets iter.Seq[*Net], insts []Instance) *BBoxIndex {
	idx := &BBoxIndex{
		nets:  rtreego.NewTree(2, 25, 50),
		insts: rtreego.NewTree(2, 25, 50),
	}
	for n := range nets {
		if len(n.Shapes) == 0 && len(n.Terms) == 0 {
			continue
		}
		idx.nets.Insert(&bboxItem{rect: toRtree(n.BBox()), net: n})
	}
	for i := range insts {
		inst := &insts[i]
		if inst.BBox.Empty() {
			continue
		}
		idx.insts.Insert(&bboxItem{rect: toRtree(inst.BBox), inst: inst})
	}
	return idx
}

// Nets returns the nets whose bounding box shares area with area, sorted
// by ID. Boxes that merely abut the area are excluded, the same rule as
// Rect.Overlaps. A bounding box is a coarse filter: Net.Meets tells
// whether any shape lies inside.
func (idx *BBoxIndex) Nets(area Rect) []*Net {
	var out []*Net
	for _, s := range idx.nets.SearchIntersect(toRtree(area)) {
		out = append(out, s.(*bboxItem).net)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Instances returns the instances whose bounding box shares area with area,
// sorted by name.
func (idx *BBoxIndex) Instances(area Rect) []*Instance {
	var out []*Instance
	for _, s := range idx.insts.SearchIntersect(toRtree(area)) {
		out = append(out, s.(*bboxItem).inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NetCount returns the number of indexed nets.
func (idx *BBoxIndex) NetCount() int {
	return idx.nets.Size()
}
