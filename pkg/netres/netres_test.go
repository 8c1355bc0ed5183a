package netres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

func approx(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9*max(1, math.Abs(want)) {
		t.Errorf("%s = %g, want %g", what, got, want)
	}
}

// tree builds
//
//	drv --10-- n1 --20-- n2 (t2)
//	            \--5--- n3 (t3)
//
// with ground 1, 2, 3 fF on n1, n2, n3.
func tree(t *testing.T) *parasitics.Network {
	t.Helper()
	nw := parasitics.NewNetwork([]string{"typ"})
	nw.SetNetName(1, "sig")

	node := func(key int, ground float64, terms ...string) *parasitics.CapNode {
		n, _ := nw.EnsureNode(parasitics.NodeKey{Net: 1, Key: key})
		n.Ground[0] = ground
		n.Terms = terms
		return n
	}
	root := node(layout.RootKey, 0, "drv")
	n1 := node(1, 1)
	n2 := node(2, 2, "t2")
	n3 := node(3, 3, "t3")

	seg := func(shape int, src, tgt *parasitics.CapNode, r float64) {
		s, ok := nw.CreateRSeg(parasitics.ShapeKey{Net: 1, Shape: shape}, src.ID, tgt.ID)
		if !ok {
			t.Fatalf("segment %d exists", shape)
		}
		s.Res[0] = r
	}
	seg(1, root, n1, 10)
	seg(2, n1, n2, 20)
	seg(3, n1, n3, 5)
	nw.SetExtracted(1, true)
	return nw
}

func TestAnalyzeTree(t *testing.T) {
	nw := tree(t)
	rep, err := Analyze(nw, 1, 0, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if rep.Driver != "drv" || rep.Nodes != 4 || rep.Floating != 0 {
		t.Errorf("Report = %+v", rep)
	}
	approx(t, "TotalRes", rep.TotalRes, 35)
	approx(t, "TotalCap", rep.TotalCap, 6)

	if len(rep.Terminals) != 2 {
		t.Fatalf("Terminals = %+v", rep.Terminals)
	}
	tests := []struct {
		name   string
		res    float64
		elmore float64
	}{
		{"t2", 30, (10*6 + 20*2) * 1e-3},
		{"t3", 15, (10*6 + 5*3) * 1e-3},
	}
	for i, tt := range tests {
		got := rep.Terminals[i]
		if got.Name != tt.name {
			t.Errorf("terminal %d = %s, want %s", i, got.Name, tt.name)
			continue
		}
		approx(t, tt.name+" resistance", got.Resistance, tt.res)
		approx(t, tt.name+" elmore", got.Elmore, tt.elmore)
	}
}

func TestCouplingFactor(t *testing.T) {
	nw := tree(t)
	other, _ := nw.EnsureNode(parasitics.NodeKey{Net: 2, Key: 1})
	n2, _ := nw.Node(parasitics.NodeKey{Net: 1, Key: 2})
	nw.CreateCCSeg(n2.ID, other.ID).Cap[0] = 4

	tests := []struct {
		factor float64
		want   float64
	}{
		{0, (10*6 + 20*2) * 1e-3},
		{1, (10*10 + 20*6) * 1e-3},
		{2, (10*14 + 20*10) * 1e-3},
	}
	for _, tt := range tests {
		rep, err := Analyze(nw, 1, 0, Options{CouplingFactor: tt.factor})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		approx(t, "t2 elmore", rep.Terminals[0].Elmore, tt.want)
	}
}

func TestFloatingIsland(t *testing.T) {
	nw := tree(t)
	island, _ := nw.EnsureNode(parasitics.NodeKey{Net: 1, Key: layout.FloatingKey(0)})
	leaf, _ := nw.EnsureNode(parasitics.NodeKey{Net: 1, Key: 9})
	leaf.Terms = []string{"lost"}
	nw.CreateRSeg(parasitics.ShapeKey{Net: 1, Shape: 9}, island.ID, leaf.ID)

	rep, err := Analyze(nw, 1, 0, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if rep.Floating != 2 {
		t.Errorf("Floating = %d, want 2", rep.Floating)
	}
	for _, term := range rep.Terminals {
		if term.Name == "lost" {
			t.Error("unreachable terminal reported")
		}
	}
}

func TestAnalyzeErrors(t *testing.T) {
	nw := tree(t)
	if _, err := Analyze(nw, 1, 3, DefaultOptions()); !errors.Is(err, ErrBadCorner) {
		t.Errorf("bad corner: %v", err)
	}
	if _, err := Analyze(nw, 7, 0, DefaultOptions()); !errors.Is(err, ErrNotExtracted) {
		t.Errorf("unknown net: %v", err)
	}

	nw.SetExtracted(7, true)
	if _, err := Analyze(nw, 7, 0, DefaultOptions()); !errors.Is(err, ErrNoDriver) {
		t.Errorf("no driver: %v", err)
	}
}

// pathRes walks target to driver through the segments of net.
func pathRes(nw *parasitics.Network, net int, node parasitics.NodeID, corner int) float64 {
	byTarget := make(map[parasitics.NodeID]*parasitics.RSeg)
	for _, r := range nw.RSegs(net) {
		byTarget[r.Target] = r
	}
	total := 0.0
	for {
		r, ok := byTarget[node]
		if !ok {
			return total
		}
		total += r.Res[corner]
		node = r.Source
	}
}

func TestDemoMatchesTreePaths(t *testing.T) {
	block, err := layout.ParseFile("../../testdata/demo.rcxl")
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	model, err := techmodel.Load("../../testdata/generic.rcm")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	nw := parasitics.NewNetwork(model.Corners())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := rcx.New(block, model, nw, rcx.DefaultOptions(), log).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for c := range model.Corners() {
		reps, err := AnalyzeAll(nw, c, DefaultOptions())
		if err != nil {
			t.Fatalf("AnalyzeAll failed: %v", err)
		}
		if len(reps) != 3 {
			t.Fatalf("reports = %d, want 3", len(reps))
		}
		for _, rep := range reps {
			if len(rep.Terminals) != 1 {
				t.Errorf("net %s: %d sinks", rep.Name, len(rep.Terminals))
			}
			for _, term := range rep.Terminals {
				approx(t, rep.Name+"/"+term.Name, term.Resistance, pathRes(nw, rep.Net, term.Node, c))
				if term.Elmore <= 0 {
					t.Errorf("%s/%s: Elmore %g", rep.Name, term.Name, term.Elmore)
				}
			}
		}
	}
}
