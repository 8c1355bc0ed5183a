package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceRCX/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/spef"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

// runFlags are the extraction settings shared by extract and report
type runFlags struct {
	model           string
	couplingTracks  int
	stepTracks      int
	resTracks       int
	contextLayers   int
	noPowerCoupling bool
	threshold       float64
	area            []int
	obstructions    bool
	strict          bool
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	def := rcx.DefaultOptions()
	fs.StringVarP(&f.model, "model", "m", "", "technology RC model file (.rcm)")
	fs.IntVar(&f.couplingTracks, "cc", def.CouplingDistance, "coupling distance in tracks")
	fs.IntVar(&f.stepTracks, "step", def.StepTracks, "window step in tracks of the coarsest pitch")
	fs.IntVar(&f.resTracks, "res-tracks", def.ResistanceTracks, "neighbour reach for resistance, in tracks")
	fs.IntVar(&f.contextLayers, "context", def.ContextLayers, "levels searched above and below for fringe")
	fs.BoolVar(&f.noPowerCoupling, "no-power-coupling", false, "ignore power and ground wires as coplanar neighbours")
	fs.Float64Var(&f.threshold, "threshold", def.CouplingThreshold, "fold coupling below this many fF into ground")
	fs.IntSliceVar(&f.area, "area", nil, "extraction rectangle x1,y1,x2,y2 in DBU (default die)")
	fs.BoolVar(&f.obstructions, "obstructions", false, "use instance obstructions as context")
	fs.BoolVar(&f.strict, "strict", false, "panic on any query of evicted index range")
}

func (f *runFlags) options() (rcx.Options, error) {
	o := rcx.DefaultOptions()
	o.CouplingDistance = f.couplingTracks
	o.StepTracks = f.stepTracks
	o.ResistanceTracks = f.resTracks
	o.ContextLayers = f.contextLayers
	o.PowerCoupling = !f.noPowerCoupling
	o.CouplingThreshold = f.threshold
	o.InstanceContext = f.obstructions
	o.Strict = f.strict
	if len(f.area) > 0 {
		r, err := parseRect(f.area)
		if err != nil {
			return o, fmt.Errorf("--area: %w", err)
		}
		o.ExtRect = r
	}
	return o, nil
}

func parseRect(v []int) (layout.Rect, error) {
	if len(v) != 4 {
		return layout.Rect{}, fmt.Errorf("want x1,y1,x2,y2, got %d values", len(v))
	}
	return layout.R(v[0], v[1], v[2], v[3]), nil
}

// extraction is a finished run
type extraction struct {
	block   *layout.Block
	model   *techmodel.Tables
	network *parasitics.Network
	stats   rcx.Stats
}

// extractFile loads layout and model and runs extraction, reporting
// progress to the log and to mc when it is not nil.
func extractFile(ctx context.Context, path string, f *runFlags, mc *metrics.Collector) (*extraction, error) {
	if f.model == "" {
		return nil, fmt.Errorf("--model is required")
	}
	opts, err := f.options()
	if err != nil {
		return nil, err
	}

	block, err := layout.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing layout: %w", err)
	}
	model, err := techmodel.Load(f.model)
	if err != nil {
		return nil, fmt.Errorf("error loading model: %w", err)
	}

	nw := parasitics.NewNetwork(model.Corners())
	ex := rcx.New(block, model, nw, opts, logger)
	reporters := rcx.Reporters{rcx.LogReporter{Log: logger}}
	if mc != nil {
		reporters = append(reporters, mc)
	}
	ex.SetReporter(reporters)

	st, err := ex.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	if mc != nil {
		mc.ObserveRun(st)
	}
	return &extraction{block: block, model: model, network: nw, stats: st}, nil
}

var (
	extract     runFlags
	spefOut     string
	jsonOut     string
	metricsOut  string
	spefCorners []string
)

var extractCmd = &cobra.Command{
	Use:   "extract <layout_file>",
	Short: "Extract parasitics from a layout",
	Long: `Runs the horizontal and vertical sweep over the layout and builds the
parasitic network of every signal net touching the extraction area.

The network is summarised on stdout and optionally written as SPEF and
JSON. Metrics of the run can be written in Prometheus textfile format.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extract.register(extractCmd.Flags())
	extractCmd.Flags().StringVarP(&spefOut, "spef", "o", "", "write SPEF to this file")
	extractCmd.Flags().StringVar(&jsonOut, "json", "", "write the network as JSON to this file")
	extractCmd.Flags().StringVar(&metricsOut, "metrics", "", "write Prometheus textfile metrics to this file")
	extractCmd.Flags().StringSliceVar(&spefCorners, "corner", nil, "corners written to SPEF (default all)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var mc *metrics.Collector
	if metricsOut != "" {
		mc = metrics.New()
	}
	res, err := extractFile(ctx, args[0], &extract, mc)
	if err != nil {
		return err
	}
	printSummary(res)

	if spefOut != "" {
		corners, err := cornerIndices(res.model, spefCorners)
		if err != nil {
			return err
		}
		if err := writeSPEF(res, spefOut, corners); err != nil {
			return err
		}
		fmt.Printf("\nSPEF written to %s\n", spefOut)
	}
	if jsonOut != "" {
		data, err := res.network.ExportJSON()
		if err != nil {
			return fmt.Errorf("failed to export JSON: %w", err)
		}
		if err := os.WriteFile(jsonOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", jsonOut, err)
		}
		fmt.Printf("JSON written to %s\n", jsonOut)
	}
	if mc != nil {
		if err := mc.WriteTextfile(metricsOut); err != nil {
			return err
		}
		fmt.Printf("Metrics written to %s\n", metricsOut)
	}
	return nil
}

func cornerIndices(model *techmodel.Tables, names []string) ([]int, error) {
	var out []int
	for _, name := range names {
		i, err := cornerIndex(model, name)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func cornerIndex(model *techmodel.Tables, name string) (int, error) {
	for i, c := range model.Corners() {
		if c == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("corner %q not in model (have %v)", name, model.Corners())
}

func writeSPEF(res *extraction, path string, corners []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := spef.NewWriter(res.network, spef.Options{
		Design:  res.block.Design,
		Version: rootCmd.Version,
		Date:    time.Now(),
		Corners: corners,
	})
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(res *extraction) {
	st := res.stats
	fmt.Printf("Design: %s\n", res.block.Design)
	fmt.Printf("  Area: %s\n", st.Area)
	fmt.Printf("  Nets extracted: %d\n", st.Nets)
	fmt.Printf("  Wires per pass: %d\n", st.Wires)
	fmt.Printf("  Nodes: %d  Resistors: %d  Coupling caps: %d\n", st.Graph.Nodes, st.Graph.RSegs, st.Graph.CCSegs)
	fmt.Printf("  Folded couplings: %d  Filled shapes: %d\n", st.Builder.Folded, st.Builder.Filled)
	for _, p := range st.Passes {
		fmt.Printf("  %-10s steps %3d  sources %5d  peak index %5d  peak context %5d\n",
			p.Dir, p.Steps, p.Sources, p.PeakIndex, p.PeakContext)
	}
	fmt.Printf("  Elapsed: %s\n\n", st.Duration.Round(time.Millisecond))

	corners := res.model.Corners()
	fmt.Printf("%-24s", "Net")
	for _, c := range corners {
		fmt.Printf(" %12s %12s", "C("+c+") fF", "R("+c+") Ω")
	}
	fmt.Println()
	fmt.Println("─────────────────────────────────────────────────────────")
	for n := range res.block.AllNets() {
		if !res.network.Extracted(n.ID) {
			continue
		}
		fmt.Printf("%-24s", n.Name)
		for c := range corners {
			fmt.Printf(" %12.4f %12.4f", res.network.NetCapacitance(n.ID, c), res.network.NetResistance(n.ID, c))
		}
		fmt.Println()
	}
}
