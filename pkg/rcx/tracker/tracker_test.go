package tracker

import (
	"reflect"
	"testing"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/arena"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/layers"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	lt, err := layers.New([]layout.Layer{
		{Name: "M1", Level: 1, Dir: layout.Horizontal, Pitch: 100},
		{Name: "M2", Level: 2, Dir: layout.Vertical, Pitch: 100},
	}, layout.R(0, 0, 10000, 10000))
	if err != nil {
		t.Fatalf("layers.New failed: %v", err)
	}
	return New(arena.New[Seq](0), lt, layout.Horizontal)
}

func wire(net, level, x1, y1, x2, y2 int) sweep.Wire {
	return sweep.Wire{Net: net, Shape: 1, Level: level, Rect: layout.R(x1, y1, x2, y2)}
}

func TestAddProjectsOntoTracks(t *testing.T) {
	tr := newTracker(t)

	// vertical M2 wire crossing y tracks 0..4
	if n := tr.Add(wire(1, 2, 500, 0, 550, 450)); n != 5 {
		t.Errorf("Add() = %d pieces, want 5", n)
	}
	// horizontal wire inside one track
	if n := tr.Add(wire(2, 2, 0, 10, 2000, 60)); n != 1 {
		t.Errorf("Add() = %d pieces, want 1", n)
	}
	if n := tr.Add(wire(3, 9, 0, 0, 10, 10)); n != 0 {
		t.Errorf("unknown level added %d pieces", n)
	}
	if tr.TrackCount() != 5 || tr.Len() != 6 {
		t.Errorf("TrackCount/Len = %d/%d", tr.TrackCount(), tr.Len())
	}

	cov, _ := tr.Overlap(2, 4, Pos{}, sweep.Span{Lo: 0, Hi: 1000}, nil)
	if len(cov) != 1 {
		t.Fatalf("track 4 covers = %v", cov)
	}
	s := cov[0].Seq
	if s.WLo != 400 || s.WHi != 450 || s.Width != 50 || s.Lo != 500 || s.Hi != 550 {
		t.Errorf("clipped piece = %+v", s)
	}
}

func TestOverlapPartition(t *testing.T) {
	tr := newTracker(t)
	tr.Add(wire(1, 1, 100, 0, 200, 50))
	tr.Add(wire(2, 1, 300, 0, 500, 50))
	tr.Add(wire(3, 1, 150, 0, 350, 50)) // overlaps both
	tr.Add(wire(9, 1, 600, 0, 700, 50)) // rejected by accept

	accept := func(s *Seq) bool { return s.Wire.Net != 9 }
	cov, res := tr.Overlap(1, 0, Pos{0, 0}, sweep.Span{Lo: 0, Hi: 800}, accept)

	var got []sweep.Span
	var nets []int
	for _, c := range cov {
		got = append(got, c.Span)
		nets = append(nets, c.Seq.Wire.Net)
	}
	wantCov := []sweep.Span{{100, 200}, {200, 350}, {350, 500}}
	if !reflect.DeepEqual(got, wantCov) || !reflect.DeepEqual(nets, []int{1, 3, 2}) {
		t.Errorf("covered = %v nets %v, want %v nets [1 3 2]", got, nets, wantCov)
	}
	wantRes := []sweep.Span{{0, 100}, {500, 800}}
	if !reflect.DeepEqual(res, wantRes) {
		t.Errorf("residue = %v, want %v", res, wantRes)
	}
	if sweep.Total(res)+sweep.Total(got) != 800 {
		t.Error("partition lost length")
	}

	// empty track returns the span untouched
	cov, res = tr.Overlap(1, 7, Pos{0, 0}, sweep.Span{Lo: 5, Hi: 9}, nil)
	if cov != nil || !reflect.DeepEqual(res, []sweep.Span{{5, 9}}) {
		t.Errorf("empty track = %v / %v", cov, res)
	}
}

func TestCursor(t *testing.T) {
	tr := newTracker(t)
	tr.Add(wire(1, 1, 0, 0, 100, 50))
	tr.Add(wire(2, 1, 200, 0, 300, 50))
	tr.Add(wire(3, 1, 400, 0, 500, 50))
	sq := tr.tracks[trackKey{1, 0}]

	tr.Overlap(1, 0, Pos{10, 250}, sweep.Span{Lo: 250, Hi: 260}, nil)
	if sq.cursor != 1 {
		t.Errorf("cursor = %d, want 1", sq.cursor)
	}

	tr.Overlap(1, 0, Pos{10, 450}, sweep.Span{Lo: 450, Hi: 460}, nil)
	if sq.cursor != 2 {
		t.Errorf("cursor = %d, want 2", sq.cursor)
	}

	// an entry added before the cursor reaches past the reader and must
	// still cover it at the same position
	tr.Add(wire(4, 1, 150, 0, 600, 50))
	if sq.cursor != 1 {
		t.Errorf("cursor after insert = %d, want 1", sq.cursor)
	}
	cov, _ := tr.Overlap(1, 0, Pos{10, 450}, sweep.Span{Lo: 450, Hi: 460}, nil)
	if len(cov) != 1 || cov[0].Seq.Wire.Net != 4 {
		t.Errorf("covers after late insert = %+v, want net 4", cov)
	}

	// a new sweep coordinate rewinds; net 4 shadows nets 2 and 3
	cov, _ = tr.Overlap(1, 0, Pos{20, 0}, sweep.Span{Lo: 0, Hi: 1000}, nil)
	if len(cov) != 2 {
		t.Errorf("covers after rewind = %d, want 2", len(cov))
	}

	defer func() {
		if recover() == nil {
			t.Error("backward reader did not panic")
		}
	}()
	tr.Overlap(1, 0, Pos{15, 0}, sweep.Span{Lo: 0, Hi: 10}, nil)
}

func TestTracksNearestFirst(t *testing.T) {
	tr := newTracker(t)
	got := tr.Tracks(1, 150, 450, 250, 350)
	want := []int{2, 3, 1, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tracks() = %v, want %v", got, want)
	}
	if tr.Tracks(9, 0, 100, 0, 10) != nil {
		t.Error("unknown level returned tracks")
	}
}

func TestEvict(t *testing.T) {
	tr := newTracker(t)
	tr.Add(wire(1, 1, 0, 0, 100, 50))
	tr.Add(wire(2, 1, 0, 150, 100, 250)) // tracks 1 and 2
	tr.Add(wire(3, 1, 0, 500, 100, 550))

	if n := tr.Evict(201); n != 2 {
		t.Errorf("Evict freed %d, want 2", n)
	}
	if tr.TrackCount() != 2 || tr.Len() != 2 {
		t.Errorf("TrackCount/Len = %d/%d", tr.TrackCount(), tr.Len())
	}
}
