package sweep

import (
	"reflect"
	"testing"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
)

func TestCut(t *testing.T) {
	tests := []struct {
		name    string
		spans   []Span
		lo, hi  int
		inside  []Span
		outside []Span
	}{
		{"disjoint", []Span{{0, 10}}, 20, 30, nil, []Span{{0, 10}}},
		{"covers all", []Span{{0, 10}}, -5, 15, []Span{{0, 10}}, nil},
		{"middle", []Span{{0, 10}}, 3, 7, []Span{{3, 7}}, []Span{{0, 3}, {7, 10}}},
		{"abutting is outside", []Span{{0, 10}}, 10, 20, nil, []Span{{0, 10}}},
		{"several", []Span{{0, 4}, {6, 10}}, 2, 8, []Span{{2, 4}, {6, 8}}, []Span{{0, 2}, {8, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := Cut(tt.spans, tt.lo, tt.hi)
			if !reflect.DeepEqual(in, tt.inside) || !reflect.DeepEqual(out, tt.outside) {
				t.Errorf("Cut() = %v / %v, want %v / %v", in, out, tt.inside, tt.outside)
			}
			if Total(in)+Total(out) != Total(tt.spans) {
				t.Error("Cut lost length")
			}
		})
	}
}

func TestStateSteps(t *testing.T) {
	s := NewState(layout.Horizontal, 0, 10000, 10, 3, 200, 100)
	if s.Step != 2000 {
		t.Fatalf("Step = %d, want 2000", s.Step)
	}

	var gens []int
	for !s.Final {
		s.AdvanceFrontier()
		gens = append(gens, s.GenLimit)
		if s.ComputeLimit != s.GenLimit-600 || s.EvictLimit != s.ComputeLimit-1400 {
			t.Errorf("limits at gen %d: compute %d evict %d", s.GenLimit, s.ComputeLimit, s.EvictLimit)
		}
		s.AdvanceLoBound()
		if s.LoBound != s.GenLimit {
			t.Error("LoBound did not follow GenLimit")
		}
	}

	// 2000, 4000, 6000, 8000, then the last 2000 is absorbed
	want := []int{2000, 4000, 6000, 8000, 10000 + 5*600}
	if !reflect.DeepEqual(gens, want) {
		t.Errorf("generation limits = %v, want %v", gens, want)
	}
	if s.Steps != len(want) {
		t.Errorf("Steps = %d", s.Steps)
	}
}

func TestStateReady(t *testing.T) {
	s := NewState(layout.Horizontal, 0, 10000, 10, 3, 200, 100)
	s.AdvanceFrontier() // gen 2000, compute 1400

	tests := []struct {
		name string
		rect layout.Rect
		want bool
	}{
		{"well inside", layout.R(0, 1000, 500, 1100), true},
		{"neighbours past the frontier", layout.R(0, 1300, 500, 1400), false},
		{"high edge just below", layout.R(0, 1299, 500, 1399), true},
		{"low edge inside, high edge out", layout.R(0, 1000, 500, 1500), false},
	}
	for _, tt := range tests {
		if got := s.Ready(tt.rect); got != tt.want {
			t.Errorf("%s: Ready(%s) = %v, want %v", tt.name, tt.rect, got, tt.want)
		}
	}

	for !s.Final {
		s.AdvanceFrontier()
	}
	if !s.Ready(layout.R(0, 9000, 500, 20000)) {
		t.Error("the final step must compute everything")
	}
}

func TestStateStepFloor(t *testing.T) {
	// step never drops below the coupling reach plus one pitch
	s := NewState(layout.Vertical, 0, 100000, 1, 10, 200, 100)
	if s.Step != 11*200 {
		t.Errorf("Step = %d, want %d", s.Step, 11*200)
	}
	if s.Axis != layout.X {
		t.Errorf("vertical pass sweeps %s", s.Axis)
	}
}

func TestStateWideWire(t *testing.T) {
	s := NewState(layout.Horizontal, 0, 100000, 10, 3, 200, 5000)
	s.AdvanceFrontier()
	if !s.Final || s.Steps != 1 {
		t.Errorf("wide wire should force a single step, got %+v", s)
	}
}

func TestWire(t *testing.T) {
	w := Wire{Net: 3, Shape: 7, Level: 2, Rect: layout.R(0, 0, 100, 10), Type: Signal}
	if !w.IsSource() || w.Special() {
		t.Error("signal wire misclassified")
	}
	if w.Key() != (Key{3, 7}) {
		t.Errorf("Key = %v", w.Key())
	}
	for _, typ := range []WireType{Power, Obstruction} {
		w.Type = typ
		if !w.Special() || w.IsSource() {
			t.Errorf("%s wire misclassified", typ)
		}
	}
	w.Type = Via
	if w.Special() || w.IsSource() {
		t.Error("via wire misclassified")
	}
}
