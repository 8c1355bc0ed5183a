// Package search is the bucketed spatial index of resident wires. Entries
// are filed per direction and level into fixed-size bands along the sweep
// axis; a wire straddling band edges is split into one piece per band.
package search

import (
	"fmt"
	"iter"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/arena"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
)

// Entry is one indexed piece. Wire keeps the full rectangle; Lo and Hi are
// the piece bounds on the sweep axis.
type Entry struct {
	sweep.Wire
	Dir    layout.Dir
	Lo, Hi int
}

type bucket struct {
	handles []arena.Handle
}

type plane struct {
	buckets map[int]*bucket
}

// Index files wires by (direction, level, band).
type Index struct {
	arena  *arena.Arena[Entry]
	band   int
	origin int
	planes [2]map[int]*plane

	watermark  [2]int
	evicted    [2]bool
	violations int

	// Strict makes a query below the eviction watermark panic instead of
	// returning nothing.
	Strict bool
}

// New creates an index over a with band-wide buckets starting at origin.
func New(a *arena.Arena[Entry], band, origin int) *Index {
	if band <= 0 {
		panic(fmt.Sprintf("search: band size %d", band))
	}
	return &Index{
		arena:  a,
		band:   band,
		origin: origin,
		planes: [2]map[int]*plane{{}, {}},
	}
}

func (x *Index) bucketOf(coord int) int {
	d := coord - x.origin
	q := d / x.band
	if d%x.band != 0 && d < 0 {
		q--
	}
	return q
}

func (x *Index) plane(dir layout.Dir, level int) *plane {
	p, ok := x.planes[dir][level]
	if !ok {
		p = &plane{buckets: make(map[int]*bucket)}
		x.planes[dir][level] = p
	}
	return p
}

// Insert files w under the direction of its long axis and returns the
// number of pieces it was split into.
func (x *Index) Insert(w sweep.Wire) int {
	if w.Rect.Empty() {
		return 0
	}
	dir := w.Rect.Dir()
	axis := dir.Axis()
	lo, hi := w.Rect.Lo(axis), w.Rect.Hi(axis)
	p := x.plane(dir, w.Level)

	n := 0
	for b := x.bucketOf(lo); b <= x.bucketOf(hi-1); b++ {
		blo := x.origin + b*x.band
		e := Entry{
			Wire: w,
			Dir:  dir,
			Lo:   max(lo, blo),
			Hi:   min(hi, blo+x.band),
		}
		bk, ok := p.buckets[b]
		if !ok {
			bk = &bucket{}
			p.buckets[b] = bk
		}
		bk.handles = append(bk.handles, x.arena.Alloc(e))
		n++
	}
	return n
}

// Query yields pieces of dir wires on level whose sweep-axis extent meets
// the closed range [lo, hi], ordered by band and then insertion. Asking
// for a range below the eviction watermark yields nothing and counts a
// violation; in strict mode it panics.
func (x *Index) Query(dir layout.Dir, level, lo, hi int) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if x.evicted[dir] && lo < x.watermark[dir] {
			x.violations++
			if x.Strict {
				panic(fmt.Sprintf("search: %s query [%d,%d] on level %d below eviction watermark %d",
					dir, lo, hi, level, x.watermark[dir]))
			}
			return
		}
		p, ok := x.planes[dir][level]
		if !ok {
			return
		}
		for b := x.bucketOf(lo); b <= x.bucketOf(hi); b++ {
			bk, ok := p.buckets[b]
			if !ok {
				continue
			}
			// stale handles are compacted away in place
			live := bk.handles[:0]
			for i, h := range bk.handles {
				e, ok := x.arena.Get(h)
				if !ok {
					continue
				}
				live = append(live, h)
				if e.Hi < lo || e.Lo > hi {
					continue
				}
				if !yield(*e) {
					bk.handles = append(live, bk.handles[i+1:]...)
					return
				}
			}
			bk.handles = live
		}
	}
}

// Evict frees every dir piece whose upper bound is below below and raises
// the watermark. It returns the number of pieces freed.
func (x *Index) Evict(dir layout.Dir, below int) int {
	n := x.arena.Sweep(func(e *Entry) bool {
		return e.Dir == dir && e.Hi < below
	})
	for _, p := range x.planes[dir] {
		for b := range p.buckets {
			if x.origin+(b+1)*x.band < below {
				delete(p.buckets, b)
			}
		}
	}
	if !x.evicted[dir] || below > x.watermark[dir] {
		x.watermark[dir] = below
	}
	x.evicted[dir] = true
	return n
}

// Watermark returns the eviction watermark of dir and whether any eviction
// has happened.
func (x *Index) Watermark(dir layout.Dir) (int, bool) {
	return x.watermark[dir], x.evicted[dir]
}

// Violations counts queries that asked for evicted ranges.
func (x *Index) Violations() int { return x.violations }

// Len returns the number of resident pieces.
func (x *Index) Len() int { return x.arena.Live() }
