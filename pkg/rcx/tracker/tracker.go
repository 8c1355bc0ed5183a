// Package tracker keeps the over/under context of a sweep pass: for every
// level and track, the shapes projected onto that track sorted along the
// long axis, with a read cursor that only moves forward.
package tracker

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/arena"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/layers"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
)

// Seq is a shape clipped to one track. Lo and Hi are on the long axis,
// WLo and WHi the clipped extent on the sweep axis, Width the short side
// of the whole shape.
type Seq struct {
	Lo, Hi   int
	WLo, WHi int
	Width    int
	Wire     sweep.Wire
}

// Pos is a reader position: the source's low sweep coordinate, then its
// long-axis start.
type Pos struct {
	Sweep int
	Long  int
}

func (p Pos) less(o Pos) bool {
	if p.Sweep != o.Sweep {
		return p.Sweep < o.Sweep
	}
	return p.Long < o.Long
}

// Cover is a piece of a span that a context entry covers.
type Cover struct {
	Span sweep.Span
	Seq  Seq
}

type trackKey struct {
	level int
	track int
}

type sequence struct {
	band    [2]int // sweep-axis band [lo, hi)
	entries []arena.Handle
	lo      []int // long-axis start per entry, kept sorted
	cursor  int
	pos     Pos
	read    bool
}

// Tracker holds the track sequences of one direction pass.
type Tracker struct {
	arena  *arena.Arena[Seq]
	layers *layers.Table
	dir    layout.Dir
	tracks map[trackKey]*sequence
}

// New creates a tracker for the pass swept in dir.
func New(a *arena.Arena[Seq], lt *layers.Table, dir layout.Dir) *Tracker {
	return &Tracker{
		arena:  a,
		layers: lt,
		dir:    dir,
		tracks: make(map[trackKey]*sequence),
	}
}

// Add projects w onto every track of its level that its sweep-axis extent
// crosses and returns the number of pieces stored.
func (t *Tracker) Add(w sweep.Wire) int {
	if w.Rect.Empty() || !t.layers.Has(w.Level) {
		return 0
	}
	axis := t.dir.Axis()
	along := t.dir.Along()
	lo, hi := w.Rect.Lo(axis), w.Rect.Hi(axis)

	n := 0
	for tr := t.layers.Track(w.Level, axis, lo); tr <= t.layers.Track(w.Level, axis, hi-1); tr++ {
		blo, bhi := t.layers.TrackBand(w.Level, axis, tr)
		s := Seq{
			Lo:    w.Rect.Lo(along),
			Hi:    w.Rect.Hi(along),
			WLo:   max(lo, blo),
			WHi:   min(hi, bhi),
			Width: w.Rect.Width(),
			Wire:  w,
		}
		k := trackKey{w.Level, tr}
		sq, ok := t.tracks[k]
		if !ok {
			sq = &sequence{band: [2]int{blo, bhi}}
			t.tracks[k] = sq
		}
		sq.insert(t.arena.Alloc(s), s.Lo)
		n++
	}
	return n
}

func (sq *sequence) insert(h arena.Handle, lo int) {
	i := sort.SearchInts(sq.lo, lo+1)
	sq.entries = append(sq.entries, arena.Handle{})
	copy(sq.entries[i+1:], sq.entries[i:])
	sq.entries[i] = h
	sq.lo = append(sq.lo, 0)
	copy(sq.lo[i+1:], sq.lo[i:])
	sq.lo[i] = lo
	// a late arrival before the cursor must stay visible to the reader
	if i < sq.cursor {
		sq.cursor = i
	}
}

// seek positions the cursor for a reader at pos. A new sweep coordinate
// rewinds to the start; within one coordinate the cursor skips entries
// that end at or before the reader's long-axis start.
func (t *Tracker) seek(sq *sequence, pos Pos) {
	if sq.read && pos.less(sq.pos) {
		panic(fmt.Sprintf("tracker: reader moved back from %v to %v", sq.pos, pos))
	}
	if !sq.read || pos.Sweep != sq.pos.Sweep {
		sq.cursor = 0
	}
	sq.pos = pos
	sq.read = true
	for sq.cursor < len(sq.entries) {
		s, ok := t.arena.Get(sq.entries[sq.cursor])
		if ok && s.Hi > pos.Long {
			break
		}
		sq.cursor++
	}
}

// Overlap splits span against the track sequence of (level, track), walking
// from the cursor positioned for pos. Entries rejected by accept neither
// cover nor shadow. Covered pieces come back tagged with their entry in
// long-axis order; the rest is returned as residue.
func (t *Tracker) Overlap(level, track int, pos Pos, span sweep.Span, accept func(*Seq) bool) ([]Cover, []sweep.Span) {
	sq, ok := t.tracks[trackKey{level, track}]
	if !ok {
		return nil, []sweep.Span{span}
	}
	t.seek(sq, pos)

	var covered []Cover
	var residue []sweep.Span
	cur := span.Lo
	for i := sq.cursor; i < len(sq.entries) && cur < span.Hi; i++ {
		s, ok := t.arena.Get(sq.entries[i])
		if !ok {
			continue
		}
		if s.Lo >= span.Hi {
			break
		}
		if s.Hi <= cur || (accept != nil && !accept(s)) {
			continue
		}
		lo := max(s.Lo, cur)
		if lo > cur {
			residue = append(residue, sweep.Span{Lo: cur, Hi: lo})
		}
		end := min(s.Hi, span.Hi)
		covered = append(covered, Cover{Span: sweep.Span{Lo: lo, Hi: end}, Seq: *s})
		cur = end
	}
	if cur < span.Hi {
		residue = append(residue, sweep.Span{Lo: cur, Hi: span.Hi})
	}
	return covered, residue
}

// Tracks returns the tracks of level whose band meets the closed sweep
// range [lo, hi], nearest to [near, nearHi) first.
func (t *Tracker) Tracks(level, lo, hi, near, nearHi int) []int {
	if !t.layers.Has(level) {
		return nil
	}
	axis := t.dir.Axis()
	first := t.layers.Track(level, axis, lo)
	last := t.layers.Track(level, axis, hi)
	out := make([]int, 0, last-first+1)
	gap := make(map[int]int, last-first+1)
	for tr := first; tr <= last; tr++ {
		blo, bhi := t.layers.TrackBand(level, axis, tr)
		out = append(out, tr)
		gap[tr] = max(0, blo-nearHi+1, near-bhi+1)
	}
	sort.SliceStable(out, func(i, j int) bool { return gap[out[i]] < gap[out[j]] })
	return out
}

// Evict drops every track whose band ends below below and returns the
// number of pieces freed.
func (t *Tracker) Evict(below int) int {
	n := 0
	for k, sq := range t.tracks {
		if sq.band[1] >= below {
			continue
		}
		for _, h := range sq.entries {
			if t.arena.Free(h) {
				n++
			}
		}
		delete(t.tracks, k)
	}
	return n
}

// Len returns the number of resident pieces.
func (t *Tracker) Len() int { return t.arena.Live() }

// TrackCount returns the number of non-empty tracks.
func (t *Tracker) TrackCount() int { return len(t.tracks) }
