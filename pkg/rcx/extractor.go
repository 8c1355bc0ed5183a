// Package rcx runs windowed parasitic extraction over a routed design: a
// horizontal pass and a vertical pass of the sweep window, committing into
// a parasitic network.
package rcx

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/layers"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/rcgraph"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/window"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

// Design is the routed design read by the extractor. *layout.Block
// implements it.
type Design interface {
	RoutingLayers() []layout.Layer
	DieArea() layout.Rect
	DBUPerMicron() int
	AllNets() iter.Seq[*layout.Net]
	AllInstances() []layout.Instance
}

// PassStats describe one direction pass
type PassStats struct {
	Dir layout.Dir
	window.Stats
}

// Stats describe a finished run
type Stats struct {
	Area     layout.Rect
	Nets     int // signal nets extracted
	Wires    int // wires fed to each pass
	Passes   []PassStats
	Builder  rcgraph.Counters
	Graph    parasitics.Stats
	Duration time.Duration
}

// Observer sees the sources computed in every step of both passes.
type Observer func(dir layout.Dir, step int, sources []sweep.Wire)

// Extractor extracts a design into a network.
type Extractor struct {
	design   Design
	model    techmodel.Model
	network  *parasitics.Network
	opts     Options
	log      *slog.Logger
	reporter Reporter
	observer Observer
}

// New creates an extractor. The network must carry one value per model
// corner.
func New(d Design, model techmodel.Model, nw *parasitics.Network, opts Options, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{design: d, model: model, network: nw, opts: opts, log: log}
}

// SetReporter installs a progress reporter.
func (e *Extractor) SetReporter(r Reporter) { e.reporter = r }

// SetObserver installs a hook called after every Compute phase.
func (e *Extractor) SetObserver(o Observer) { e.observer = o }

// Run extracts every net touching the extraction area. Nets are marked
// extracted only when both passes complete.
func (e *Extractor) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	area, err := e.opts.Validate(e.design.DieArea())
	if err != nil {
		return Stats{}, err
	}
	if got, want := len(e.network.Corners()), len(e.model.Corners()); got != want {
		return Stats{}, fmt.Errorf("%w: network has %d corners, model has %d", ErrBadOption, got, want)
	}
	lt, err := layers.New(e.design.RoutingLayers(), e.design.DieArea())
	if err != nil {
		return Stats{}, fmt.Errorf("failed to build layer table: %w", err)
	}
	dbu := e.design.DBUPerMicron()
	if dbu <= 0 {
		return Stats{}, fmt.Errorf("%w: %d database units per micron", ErrBadOption, dbu)
	}

	insts := e.design.AllInstances()
	idx := layout.NewBBoxIndex(e.design.AllNets(), insts)
	var selected []*layout.Net
	for _, n := range idx.Nets(area) {
		if n.Meets(area) {
			selected = append(selected, n)
		}
	}

	builder := rcgraph.New(e.network, len(e.model.Corners()), e.opts.CouplingThreshold, e.log)
	var signal []*layout.Net
	for _, n := range selected {
		if n.IsSpecial() {
			continue
		}
		e.network.ClearNet(n.ID)
		e.network.SetNetName(n.ID, n.Name)
		builder.Register(n)
		signal = append(signal, n)
	}

	var obs []*layout.Instance
	if e.opts.InstanceContext {
		obs = idx.Instances(area)
	}
	feed := e.buildFeed(lt, area, selected, obs)
	e.log.Info("extraction start", "area", area, "nets", len(signal), "wires", len(feed),
		"layers", len(e.design.RoutingLayers()), "corners", len(e.model.Corners()))

	stats := Stats{Area: area, Nets: len(signal), Wires: len(feed)}
	prog := newProgress(e.reporter, 2*len(feed))

	for _, dir := range []layout.Dir{layout.Horizontal, layout.Vertical} {
		ps, err := e.pass(ctx, dir, area, lt, builder, feed, prog)
		if err != nil {
			e.abandon(signal)
			return stats, err
		}
		stats.Passes = append(stats.Passes, ps)
	}

	builder.Finalize(e.fill(lt, dbu))
	for _, n := range signal {
		e.network.SetExtracted(n.ID, true)
	}
	prog.finish()

	stats.Builder = builder.Counters()
	stats.Graph = e.network.Stats()
	stats.Duration = time.Since(start)
	e.log.Info("extraction done", "nets", stats.Nets, "rsegs", stats.Graph.RSegs,
		"ccsegs", stats.Graph.CCSegs, "filled", stats.Builder.Filled, "elapsed", stats.Duration)
	return stats, nil
}

func (e *Extractor) pass(ctx context.Context, dir layout.Dir, area layout.Rect, lt *layers.Table,
	builder *rcgraph.Builder, feed []sweep.Wire, prog *progressTracker) (PassStats, error) {
	w := window.New(window.Config{
		Dir:              dir,
		Area:             area,
		CouplingTracks:   e.opts.CouplingDistance,
		StepTracks:       e.opts.StepTracks,
		ResistanceTracks: e.opts.ResistanceTracks,
		ContextLayers:    e.opts.ContextLayers,
		PowerCoupling:    e.opts.PowerCoupling,
		DBUPerMicron:     e.design.DBUPerMicron(),
		Strict:           e.opts.Strict,
	}, lt, e.model, builder, feed, e.log)

	prog.pass = dir
	w.OnIndex(prog.add)
	if e.observer != nil {
		w.SetObserver(func(step int, sources []sweep.Wire) { e.observer(dir, step, sources) })
	}

	for w.Step() != window.Done {
		if err := ctx.Err(); err != nil {
			e.log.Warn("extraction cancelled", "dir", dir, "state", w.State(), "steps", w.Sweep().Steps)
			return PassStats{}, err
		}
	}
	st := w.Stats()
	e.log.Debug("pass stats", "dir", dir, "steps", st.Steps, "sources", st.Sources,
		"couplings", st.Measure.Couplings, "peak_index", st.PeakIndex, "peak_context", st.PeakContext)
	return PassStats{Dir: dir, Stats: st}, nil
}

// abandon drops the partial graph of nets whose run did not complete.
func (e *Extractor) abandon(nets []*layout.Net) {
	for _, n := range nets {
		e.network.ClearNet(n.ID)
	}
}

// buildFeed collects every box sharing area with the extraction rect:
// signal wires as sources, via landing boxes, power and ground geometry,
// and instance obstructions. Boxes that only abut the rect are left out,
// as in net selection.
func (e *Extractor) buildFeed(lt *layers.Table, area layout.Rect, nets []*layout.Net, insts []*layout.Instance) []sweep.Wire {
	var feed []sweep.Wire
	add := func(w sweep.Wire) {
		if !w.Rect.Overlaps(area) {
			return
		}
		if !lt.Has(w.Level) {
			e.log.Warn("shape on unknown level", "net", w.Net, "shape", w.Shape, "level", w.Level)
			return
		}
		feed = append(feed, w)
	}

	for _, n := range nets {
		for i := range n.Shapes {
			s := &n.Shapes[i]
			typ := sweep.Signal
			switch {
			case n.IsSpecial():
				typ = sweep.Power
			case s.Via:
				typ = sweep.Via
			}
			for level, r := range s.Boxes() {
				add(sweep.Wire{Net: n.ID, Shape: s.ID, Level: level, Rect: r, Type: typ})
			}
		}
	}

	id := 0
	for _, inst := range insts {
		for _, o := range inst.Obstructions {
			id++
			add(sweep.Wire{Net: sweep.ObstructionNet, Shape: id, Level: o.Level, Rect: o.Rect, Type: sweep.Obstruction})
		}
	}
	return feed
}

// fill values shapes the sweep never measured as isolated wires: open
// fringe on all four sides and resistance at no neighbour. Vias take the
// cut resistance.
func (e *Extractor) fill(lt *layers.Table, dbu int) rcgraph.FillFunc {
	corners := len(e.model.Corners())
	um := func(v int) float64 { return float64(v) / float64(dbu) }
	return func(n *layout.Net, s *layout.Shape) ([]float64, []float64) {
		res := make([]float64, corners)
		ground := make([]float64, corners)
		if s.Via {
			for c := range corners {
				res[c] = e.model.Via(c, s.Level)
			}
			return res, ground
		}
		if !lt.Has(s.Level) {
			return res, ground
		}
		length, width := um(s.Length()), um(s.Rect.Width())
		for c := range corners {
			res[c] = length * e.model.Resistance(c, s.Level, width, 0)
			ground[c] = 4 * length * e.model.OpenFringe(c, s.Level, width)
		}
		return res, ground
	}
}
