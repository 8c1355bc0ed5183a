package rcx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

var rates = techmodel.Constant{CouplingRate: 2, FringeRate: 3, OpenRate: 5, ResistanceRate: 7, ViaResistance: 11}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBlock(nets ...*layout.Net) *layout.Block {
	return &layout.Block{
		Version: 1,
		Design:  "test",
		DBU:     1000,
		Die:     layout.R(0, 0, 20000, 20000),
		Layers: []layout.Layer{
			{Name: "M1", Level: 1, Dir: layout.Horizontal, Pitch: 200, Width: 100, Spacing: 100, Offset: 100},
			{Name: "M2", Level: 2, Dir: layout.Vertical, Pitch: 200, Width: 100, Spacing: 100, Offset: 100},
			{Name: "M3", Level: 3, Dir: layout.Horizontal, Pitch: 400, Width: 200, Spacing: 200, Offset: 200},
		},
		Nets: nets,
	}
}

// wireNet is a one-wire net driven from the wire's low corner.
func wireNet(id int, name string, level int, r layout.Rect) *layout.Net {
	return &layout.Net{
		ID:     id,
		Name:   name,
		Shapes: []layout.Shape{{ID: 1, Level: level, Rect: r}},
		Terms: []layout.Terminal{
			{Name: name + "/drv", Level: level, Rect: layout.R(r.XMin, r.YMin, r.XMin+100, r.YMin+100), Driver: true},
		},
	}
}

func testOptions() Options {
	o := DefaultOptions()
	o.StepTracks = 5
	o.CouplingThreshold = 0
	o.Strict = true
	return o
}

func run(t *testing.T, d Design, model techmodel.Model, nw *parasitics.Network, opts Options) Stats {
	t.Helper()
	st, err := New(d, model, nw, opts, quiet()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return st
}

func approx(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %g, want %g", what, got, want)
	}
}

func TestTwoWireConservation(t *testing.T) {
	a := wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100))
	b := wireNet(2, "b", 1, layout.R(0, 1200, 10000, 1300))
	nw := parasitics.NewNetwork(rates.Corners())
	st := run(t, testBlock(a, b), rates, nw, testOptions())

	// 10um each: lateral fringe plus three open sides to ground, one
	// coupling capacitor between them
	const length = 10.0
	for _, id := range []int{1, 2} {
		approx(t, "ground", nw.GroundCap(id, 0), length*(rates.FringeRate+3*rates.OpenRate))
		approx(t, "coupling", nw.CouplingCap(id, 0), length*rates.CouplingRate)
		approx(t, "resistance", nw.NetResistance(id, 0), length*rates.ResistanceRate)
		if !nw.Extracted(id) {
			t.Errorf("net %d not marked extracted", id)
		}
	}
	if n := len(nw.AllCCSegs()); n != 1 {
		t.Errorf("coupling segments = %d, want 1", n)
	}
	if len(st.Passes) != 2 || st.Nets != 2 || st.Wires != 2 {
		t.Errorf("Stats = %+v", st)
	}
	for _, p := range st.Passes {
		if p.Violations != 0 {
			t.Errorf("%s pass: %d eviction violations", p.Dir, p.Violations)
		}
	}
}

func TestCouplingFoldedBelowThreshold(t *testing.T) {
	a := wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100))
	b := wireNet(2, "b", 1, layout.R(0, 1200, 10000, 1300))
	a.Terms, b.Terms = nil, nil

	opts := testOptions()
	opts.CouplingThreshold = 1000
	nw := parasitics.NewNetwork(rates.Corners())
	run(t, testBlock(a, b), rates, nw, opts)

	if n := len(nw.AllCCSegs()); n != 0 {
		t.Errorf("coupling segments = %d, want all folded", n)
	}
	for _, id := range []int{1, 2} {
		approx(t, "ground", nw.GroundCap(id, 0), 10*(rates.CouplingRate+rates.FringeRate+3*rates.OpenRate))
	}
}

func TestTerminalCouplingNeverFolded(t *testing.T) {
	a := wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100))
	b := wireNet(2, "b", 1, layout.R(0, 1200, 10000, 1300))

	opts := testOptions()
	opts.CouplingThreshold = 1000
	nw := parasitics.NewNetwork(rates.Corners())
	run(t, testBlock(a, b), rates, nw, opts)

	if n := len(nw.AllCCSegs()); n != 1 {
		t.Errorf("coupling segments = %d, want 1", n)
	}
}

func loadDemo(t *testing.T) (*layout.Block, *techmodel.Tables) {
	t.Helper()
	block, err := layout.ParseFile("../../testdata/demo.rcxl")
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	model, err := techmodel.Load("../../testdata/generic.rcm")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return block, model
}

func TestDemoGraph(t *testing.T) {
	block, model := loadDemo(t)
	opts := testOptions()
	opts.InstanceContext = true
	nw := parasitics.NewNetwork(model.Corners())
	st := run(t, block, model, nw, opts)

	for n := range block.AllNets() {
		if n.IsSpecial() {
			if len(nw.Nodes(n.ID)) != 0 || nw.Extracted(n.ID) {
				t.Errorf("power net %s has graph", n.Name)
			}
			continue
		}
		// one resistor segment per shape
		segs := nw.RSegs(n.ID)
		if len(segs) != len(n.Shapes) {
			t.Errorf("net %s: %d segments for %d shapes", n.Name, len(segs), len(n.Shapes))
		}
		seen := make(map[int]bool)
		for _, r := range segs {
			if seen[r.Shape] {
				t.Errorf("net %s: shape %d has two segments", n.Name, r.Shape)
			}
			seen[r.Shape] = true
		}
		islands, err := nw.CheckTree(n.ID)
		if err != nil {
			t.Errorf("CheckTree(%s): %v", n.Name, err)
		}
		if islands != 1 {
			t.Errorf("net %s: %d islands, want 1", n.Name, islands)
		}
		for c := range model.Corners() {
			if nw.NetCapacitance(n.ID, c) <= 0 || nw.NetResistance(n.ID, c) <= 0 {
				t.Errorf("net %s corner %d: C=%g R=%g", n.Name, c, nw.NetCapacitance(n.ID, c), nw.NetResistance(n.ID, c))
			}
		}
	}

	// the two data nets run 0.1um apart on both levels
	if len(nw.CCSegs(1)) == 0 {
		t.Error("data_a has no coupling to data_b")
	}
	if st.Builder.Filled == 0 {
		t.Error("vias were not filled")
	}
}

func TestIdempotentRerun(t *testing.T) {
	block, model := loadDemo(t)
	nw := parasitics.NewNetwork(model.Corners())
	opts := testOptions()

	first := run(t, block, model, nw, opts)
	type totals struct{ ground, cc, res float64 }
	snapshot := func() map[int][]totals {
		out := make(map[int][]totals)
		for _, id := range nw.Nets() {
			for c := range model.Corners() {
				out[id] = append(out[id], totals{nw.GroundCap(id, c), nw.CouplingCap(id, c), nw.NetResistance(id, c)})
			}
		}
		return out
	}
	before := snapshot()

	second := run(t, block, model, nw, opts)
	after := snapshot()

	if first.Graph != second.Graph {
		t.Errorf("graph changed: %+v then %+v", first.Graph, second.Graph)
	}
	if len(before) != len(after) {
		t.Fatalf("net count changed: %d then %d", len(before), len(after))
	}
	for id, want := range before {
		got := after[id]
		for c := range want {
			if got[c] != want[c] {
				t.Errorf("net %d corner %d: %+v then %+v", id, c, want[c], got[c])
			}
		}
	}
}

func TestNetOutsideExtractionRect(t *testing.T) {
	a := wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100))
	b := wireNet(2, "b", 1, layout.R(0, 1200, 10000, 1300))
	far := wireNet(3, "far", 1, layout.R(14000, 15000, 19000, 15100))
	// bounding box covers the rect, shapes wrap around it
	ell := &layout.Net{
		ID:   4,
		Name: "ell",
		Shapes: []layout.Shape{
			{ID: 1, Level: 1, Rect: layout.R(0, 15000, 19000, 15100)},
			{ID: 2, Level: 2, Rect: layout.R(18900, 0, 19000, 15100)},
		},
		Terms: []layout.Terminal{
			{Name: "ell/drv", Level: 1, Rect: layout.R(0, 15000, 100, 15100), Driver: true},
		},
	}
	// shares only an edge with the rect
	abut := wireNet(5, "abut", 1, layout.R(12000, 2000, 15000, 2100))

	opts := testOptions()
	opts.ExtRect = layout.R(0, 0, 12000, 5000)
	nw := parasitics.NewNetwork(rates.Corners())
	st := run(t, testBlock(a, b, far, ell, abut), rates, nw, opts)

	if st.Nets != 2 {
		t.Errorf("extracted %d nets, want 2", st.Nets)
	}
	for _, id := range []int{3, 4, 5} {
		if len(nw.RSegs(id)) != 0 || nw.NetCapacitance(id, 0) != 0 || nw.Extracted(id) {
			t.Errorf("net %d outside the rect has segments %d, C=%g", id, len(nw.RSegs(id)), nw.NetCapacitance(id, 0))
		}
	}
	if !nw.Extracted(1) || !nw.Extracted(2) {
		t.Error("nets inside the rect not extracted")
	}
}

// mixedBlock has signal wires of several widths on M1, horizontal M3
// wires over them, vertical M2 crossings and a wide M1 rail, spread over
// several window steps.
func mixedBlock() *layout.Block {
	var nets []*layout.Net
	for i := range 12 {
		y := 500 + i*1500
		nets = append(nets, wireNet(1+i, fmt.Sprintf("m1_%d", i), 1, layout.R(1000, y, 15000, y+100+(i%3)*100)))
	}
	for i := range 8 {
		y := 1300 + i*2300
		nets = append(nets, wireNet(21+i, fmt.Sprintf("m3_%d", i), 3, layout.R(2000, y, 18000, y+200)))
	}
	for i := range 5 {
		x := 3000 + i*3000
		nets = append(nets, wireNet(31+i, fmt.Sprintf("m2_%d", i), 2, layout.R(x, 0, x+100, 19000)))
	}
	rail := wireNet(40, "VSS", 1, layout.R(0, 18000, 20000, 19200))
	rail.Use = layout.UseGround
	return testBlock(append(nets, rail)...)
}

func TestResultIndependentOfStep(t *testing.T) {
	type totals struct{ ground, coupling, res float64 }
	extract := func(stepTracks int) (map[int]totals, Stats) {
		opts := testOptions()
		opts.StepTracks = stepTracks
		nw := parasitics.NewNetwork(rates.Corners())
		st := run(t, mixedBlock(), rates, nw, opts)
		out := make(map[int]totals)
		for _, id := range nw.Nets() {
			out[id] = totals{nw.GroundCap(id, 0), nw.CouplingCap(id, 0), nw.NetResistance(id, 0)}
		}
		return out, st
	}
	near := func(a, b float64) bool {
		return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
	}

	want, st := extract(50)
	if st.Passes[0].Steps != 1 {
		t.Fatalf("reference run took %d steps, want one window", st.Passes[0].Steps)
	}
	for _, steps := range []int{5, 12, 17} {
		got, st := extract(steps)
		if st.Passes[0].Steps < 3 {
			t.Errorf("step %d: only %d windows", steps, st.Passes[0].Steps)
		}
		if len(got) != len(want) {
			t.Fatalf("step %d: %d nets, want %d", steps, len(got), len(want))
		}
		for id, w := range want {
			g := got[id]
			if !near(g.ground, w.ground) || !near(g.coupling, w.coupling) || !near(g.res, w.res) {
				t.Errorf("step %d net %d: %+v, single window %+v", steps, id, g, w)
			}
		}
	}
}

func TestCrossingAttributedOnce(t *testing.T) {
	a := wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100))
	c := wireNet(3, "c", 2, layout.R(5000, 0, 5100, 3000))
	nw := parasitics.NewNetwork(rates.Corners())

	ex := New(testBlock(a, c), rates, nw, testOptions(), quiet())
	sources := make(map[sweep.Key][]layout.Dir)
	ex.SetObserver(func(dir layout.Dir, step int, ws []sweep.Wire) {
		for _, w := range ws {
			sources[w.Key()] = append(sources[w.Key()], dir)
		}
	})
	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, n := range []*layout.Net{a, c} {
		k := sweep.Key{Net: n.ID, Shape: 1}
		dirs := sources[k]
		if len(dirs) != 1 || dirs[0] != n.Shapes[0].Rect.Dir() {
			t.Errorf("net %s was a source in passes %v", n.Name, dirs)
		}
	}

	// 0.1um of each wire is covered by the other at distance zero
	approx(t, "ground a", nw.GroundCap(1, 0), 0.1*rates.FringeRate+(2*10+9.9+10)*rates.OpenRate)
	approx(t, "ground c", nw.GroundCap(3, 0), 0.1*rates.FringeRate+(2*3+3+2.9)*rates.OpenRate)
	if n := len(nw.AllCCSegs()); n != 0 {
		t.Errorf("crossing wires made %d coupling segments", n)
	}
}

func TestCancelledRunLeavesNetsUnextracted(t *testing.T) {
	block, model := loadDemo(t)
	nw := parasitics.NewNetwork(model.Corners())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(block, model, nw, testOptions(), quiet()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	for n := range block.AllNets() {
		if nw.Extracted(n.ID) {
			t.Errorf("net %s marked extracted", n.Name)
		}
	}
	if s := nw.Stats(); s.RSegs != 0 || s.CCSegs != 0 {
		t.Errorf("partial graph left behind: %+v", s)
	}
}

func TestRunErrors(t *testing.T) {
	die := layout.R(0, 0, 20000, 20000)
	tests := []struct {
		name   string
		mutate func(b *layout.Block, o *Options)
		want   error
	}{
		{"degenerate die", func(b *layout.Block, o *Options) { b.Die = layout.R(0, 0, 0, 100) }, ErrDegenerateDie},
		{"degenerate rect", func(b *layout.Block, o *Options) { o.ExtRect = layout.R(10, 10, 10, 500) }, ErrDegenerateDie},
		{"zero coupling distance", func(b *layout.Block, o *Options) { o.CouplingDistance = 0 }, ErrBadOption},
		{"resistance beyond coupling", func(b *layout.Block, o *Options) { o.ResistanceTracks = 11 }, ErrBadOption},
		{"zero step", func(b *layout.Block, o *Options) { o.StepTracks = 0 }, ErrBadOption},
		{"negative threshold", func(b *layout.Block, o *Options) { o.CouplingThreshold = -1 }, ErrBadOption},
		{"zero pitch", func(b *layout.Block, o *Options) { b.Layers[1].Pitch = 0 }, ErrBadPitch},
		{"no layers", func(b *layout.Block, o *Options) { b.Layers = nil }, ErrNoLayers},
		{"no units", func(b *layout.Block, o *Options) { b.DBU = 0 }, ErrBadOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBlock(wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100)))
			o := testOptions()
			tt.mutate(b, &o)
			nw := parasitics.NewNetwork(rates.Corners())
			_, err := New(b, rates, nw, o, quiet()).Run(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
			if nw.Extracted(1) {
				t.Error("net marked extracted after error")
			}
		})
	}

	if area, err := DefaultOptions().Validate(die); err != nil || area != die {
		t.Errorf("Validate(default) = %v, %v", area, err)
	}
}

func TestCornerMismatch(t *testing.T) {
	nw := parasitics.NewNetwork([]string{"typ", "max"})
	_, err := New(testBlock(), rates, nw, testOptions(), quiet()).Run(context.Background())
	if !errors.Is(err, ErrBadOption) {
		t.Errorf("Run error = %v, want ErrBadOption", err)
	}
}

func TestProgressReports(t *testing.T) {
	var got []Progress
	a := wireNet(1, "a", 1, layout.R(0, 1000, 10000, 1100))
	b := wireNet(2, "b", 1, layout.R(0, 1200, 10000, 1300))
	nw := parasitics.NewNetwork(rates.Corners())

	ex := New(testBlock(a, b), rates, nw, testOptions(), quiet())
	ex.SetReporter(ReporterFunc(func(p Progress) { got = append(got, p) }))
	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(got) == 0 || got[len(got)-1].Percent != 100 {
		t.Fatalf("reports = %+v, want a final 100%%", got)
	}
	if len(got) > 100/progressStep+1 {
		t.Errorf("%d reports", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Percent < got[i-1].Percent {
			t.Errorf("progress went backwards: %+v", got)
		}
	}
}
