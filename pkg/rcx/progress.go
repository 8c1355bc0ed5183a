package rcx

import (
	"log/slog"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
)

// Progress is a snapshot of a running extraction
type Progress struct {
	Pass    layout.Dir
	Percent int
	Wires   int // wires generated so far, both passes
	Total   int
}

// Reporter receives progress
type Reporter interface {
	Progress(p Progress)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Progress)

func (f ReporterFunc) Progress(p Progress) { f(p) }

// Reporters fans progress out to several reporters.
type Reporters []Reporter

func (rs Reporters) Progress(p Progress) {
	for _, r := range rs {
		r.Progress(p)
	}
}

// LogReporter writes progress to a logger at Info level.
type LogReporter struct {
	Log *slog.Logger
}

func (r LogReporter) Progress(p Progress) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("extraction progress", "pass", p.Pass, "percent", p.Percent, "wires", p.Wires, "total", p.Total)
}

// progressTracker emits every 5% of the wire count and once at 100%.
type progressTracker struct {
	reporter Reporter
	total    int
	done     int
	next     int
	pass     layout.Dir
}

const progressStep = 5

func newProgress(r Reporter, total int) *progressTracker {
	return &progressTracker{reporter: r, total: total, next: progressStep}
}

func (p *progressTracker) add(n int) {
	if p.reporter == nil || p.total == 0 {
		return
	}
	p.done += n
	pct := p.done * 100 / p.total
	if pct >= 100 {
		return
	}
	if pct >= p.next {
		p.reporter.Progress(Progress{Pass: p.pass, Percent: pct, Wires: p.done, Total: p.total})
		p.next = (pct/progressStep + 1) * progressStep
	}
}

func (p *progressTracker) finish() {
	if p.reporter == nil {
		return
	}
	p.reporter.Progress(Progress{Pass: p.pass, Percent: 100, Wires: p.done, Total: p.total})
}
