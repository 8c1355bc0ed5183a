// Package window drives one direction pass of the sweep: it walks the
// extraction area along the sweep axis in steps, feeding geometry into the
// context tracker and spatial index, measuring sources once all their
// neighbours are resident, and evicting what no later source can reach.
package window

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/arena"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/layers"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/measure"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/search"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/sweep"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx/tracker"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

// State is a phase of the window state machine
type State int

const (
	Init State = iota
	AdvanceFrontier
	Generate
	Index
	Compute
	Evict
	AdvanceLoBound
	Done
)

var stateNames = [...]string{"init", "advance-frontier", "generate", "index", "compute", "evict", "advance-lo-bound", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Observer sees the sources measured in each Compute phase.
type Observer func(step int, sources []sweep.Wire)

// Config parameterises a pass.
type Config struct {
	Dir              layout.Dir
	Area             layout.Rect
	CouplingTracks   int
	StepTracks       int
	ResistanceTracks int
	ContextLayers    int
	PowerCoupling    bool
	DBUPerMicron     int
	Strict           bool
}

// bandTracks sets the index bucket size in units of the coarsest pitch.
const bandTracks = 4

// Stats summarise a finished pass
type Stats struct {
	Steps       int
	Generated   int
	Indexed     int
	Sources     int
	Evicted     int
	PeakIndex   int
	PeakContext int
	Violations  int
	Measure     measure.Stats
}

// Window is one direction pass. It owns the arenas backing its index and
// tracker; both are dropped with the window.
type Window struct {
	cfg   Config
	state State
	st    sweep.State

	feed      []sweep.Wire
	genCursor int
	idxCursor int
	queue     []sweep.Wire

	entries *arena.Arena[search.Entry]
	seqs    *arena.Arena[tracker.Seq]
	index   *search.Index
	context *tracker.Tracker
	comp    *measure.Computer

	observer Observer
	onIndex  func(n int)
	log      *slog.Logger
	stats    Stats
}

// New creates a pass over feed. feed holds every wire that may take part:
// sources, via boxes, power and obstructions of both directions.
func New(cfg Config, lt *layers.Table, model techmodel.Model, sink measure.Sink, feed []sweep.Wire, log *slog.Logger) *Window {
	if log == nil {
		log = slog.Default()
	}
	axis := cfg.Dir.Axis()

	maxWidth := 0
	for _, w := range feed {
		if w.IsSource() && w.Rect.Dir() == cfg.Dir {
			maxWidth = max(maxWidth, w.Rect.Width())
		}
	}
	lo, hi := cfg.Area.Lo(axis), cfg.Area.Hi(axis)
	st := sweep.NewState(cfg.Dir, lo, hi, cfg.StepTracks, cfg.CouplingTracks, lt.MaxPitch(), maxWidth)
	st.ResistanceTracks = cfg.ResistanceTracks
	st.ContextLayers = cfg.ContextLayers

	w := &Window{
		cfg:     cfg,
		st:      st,
		feed:    sortFeed(feed, axis, lo),
		entries: arena.New[search.Entry](len(feed)),
		seqs:    arena.New[tracker.Seq](len(feed)),
		log:     log,
	}
	w.index = search.New(w.entries, bandTracks*lt.MaxPitch(), lo)
	w.index.Strict = cfg.Strict
	w.context = tracker.New(w.seqs, lt, cfg.Dir)
	w.comp = measure.New(model, lt, w.index, w.context, sink, measure.Config{
		PowerCoupling: cfg.PowerCoupling,
		DBUPerMicron:  cfg.DBUPerMicron,
	})
	return w
}

// band returns the coordinate that decides which step generates w.
func band(w sweep.Wire, axis layout.Axis, lo int) int {
	return max(w.Rect.Lo(axis), lo)
}

func sortFeed(feed []sweep.Wire, axis layout.Axis, lo int) []sweep.Wire {
	out := append([]sweep.Wire(nil), feed...)
	sort.SliceStable(out, func(i, j int) bool {
		return band(out[i], axis, lo) < band(out[j], axis, lo)
	})
	return out
}

// SetObserver installs a hook called after every Compute phase.
func (w *Window) SetObserver(o Observer) { w.observer = o }

// OnIndex installs a hook receiving the number of wires each Index phase
// filed.
func (w *Window) OnIndex(f func(n int)) { w.onIndex = f }

// State returns the current phase.
func (w *Window) State() State { return w.state }

// Sweep returns the sweep state.
func (w *Window) Sweep() *sweep.State { return &w.st }

// Stats returns pass statistics.
func (w *Window) Stats() Stats {
	s := w.stats
	s.Steps = w.st.Steps
	s.PeakIndex = w.entries.Peak()
	s.PeakContext = w.seqs.Peak()
	s.Violations = w.index.Violations()
	s.Measure = w.comp.Stats()
	return s
}

// Step performs one state transition and returns the new state.
func (w *Window) Step() State {
	switch w.state {
	case Init:
		w.log.Debug("pass start", "dir", w.cfg.Dir, "lo", w.st.Lo, "hi", w.st.Hi, "step", w.st.Step, "wires", len(w.feed))
		w.state = AdvanceFrontier

	case AdvanceFrontier:
		w.st.AdvanceFrontier()
		w.state = Generate

	case Generate:
		w.generate()
		w.state = Index

	case Index:
		w.indexBand()
		w.state = Compute

	case Compute:
		w.compute()
		w.state = Evict

	case Evict:
		w.evict()
		w.state = AdvanceLoBound

	case AdvanceLoBound:
		w.st.AdvanceLoBound()
		if w.st.Final {
			w.finish()
			w.state = Done
		} else {
			w.state = AdvanceFrontier
		}

	case Done:
	}
	return w.state
}

// Run steps until Done.
func (w *Window) Run() Stats {
	for w.Step() != Done {
	}
	return w.Stats()
}

// generate fills the context tracker up to the generation limit.
func (w *Window) generate() {
	axis := w.st.Axis
	for w.genCursor < len(w.feed) && band(w.feed[w.genCursor], axis, w.st.Lo) < w.st.GenLimit {
		w.context.Add(w.feed[w.genCursor])
		w.genCursor++
		w.stats.Generated++
	}
}

// indexBand files the newly generated band into the spatial index, power
// and obstructions before signal, and queues the sources.
func (w *Window) indexBand() {
	batch := w.feed[w.idxCursor:w.genCursor]
	w.idxCursor = w.genCursor
	w.st.IndexLimit = w.st.GenLimit

	n := 0
	for _, special := range []bool{true, false} {
		for _, wire := range batch {
			if wire.Special() != special || wire.Rect.Dir() != w.cfg.Dir {
				continue
			}
			w.index.Insert(wire)
			n++
			if wire.IsSource() {
				w.queue = append(w.queue, wire)
			}
		}
	}
	w.stats.Indexed += n
	if w.onIndex != nil {
		w.onIndex(len(batch))
	}
}

func (w *Window) sourceLess(a, b sweep.Wire) bool {
	al, bl := w.st.SweepLo(a.Rect), w.st.SweepLo(b.Rect)
	if al != bl {
		return al < bl
	}
	along := w.cfg.Dir.Along()
	if a.Rect.Lo(along) != b.Rect.Lo(along) {
		return a.Rect.Lo(along) < b.Rect.Lo(along)
	}
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.Net != b.Net {
		return a.Net < b.Net
	}
	return a.Shape < b.Shape
}

// compute measures queued sources in order up to the first one whose
// neighbourhood is not fully generated. Stopping there keeps the context
// readers moving forward.
func (w *Window) compute() {
	sort.Slice(w.queue, func(i, j int) bool { return w.sourceLess(w.queue[i], w.queue[j]) })
	n := 0
	for n < len(w.queue) && w.st.Ready(w.queue[n].Rect) {
		n++
	}
	ready := w.queue[:n]
	for _, s := range ready {
		w.comp.Measure(&w.st, s)
	}
	w.stats.Sources += n
	if w.observer != nil && n > 0 {
		w.observer(w.st.Steps, append([]sweep.Wire(nil), ready...))
	}
	w.queue = append(w.queue[:0], w.queue[n:]...)
}

func (w *Window) evict() {
	if len(w.queue) > 0 {
		if lo := w.st.SweepLo(w.queue[0].Rect) - w.st.Reach(); lo < w.st.EvictLimit {
			panic(fmt.Sprintf("window: evicting below %d drops neighbours of pending source %s",
				w.st.EvictLimit, w.queue[0]))
		}
	}
	w.stats.Evicted += w.index.Evict(w.cfg.Dir, w.st.EvictLimit)
	w.stats.Evicted += w.context.Evict(w.st.EvictLimit)
}

// finish checks that the last step left nothing behind.
func (w *Window) finish() {
	if len(w.queue) > 0 || w.genCursor < len(w.feed) {
		panic(fmt.Sprintf("window: %s pass ended with %d queued sources and %d ungenerated wires",
			w.cfg.Dir, len(w.queue), len(w.feed)-w.genCursor))
	}
	w.log.Debug("pass done", "dir", w.cfg.Dir, "steps", w.st.Steps, "sources", w.stats.Sources,
		"peak_index", w.entries.Peak(), "peak_context", w.seqs.Peak())
}
