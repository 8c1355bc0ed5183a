package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/netres"
)

var (
	report         runFlags
	reportCorner   string
	couplingFactor float64
)

var reportCmd = &cobra.Command{
	Use:   "report <layout_file>",
	Short: "Report driver-to-sink resistance and Elmore delay",
	Long: `Extracts the layout, then solves each net's resistor network from its
driver to every sink terminal. Coupling capacitance is lumped to ground,
scaled by --coupling-factor, for the Elmore delay.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	report.register(reportCmd.Flags())
	reportCmd.Flags().StringVar(&reportCorner, "corner", "", "corner to report (default the first)")
	reportCmd.Flags().Float64Var(&couplingFactor, "coupling-factor", 1, "scale of coupling capacitance in the delay")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := extractFile(ctx, args[0], &report, nil)
	if err != nil {
		return err
	}
	corner := 0
	if reportCorner != "" {
		if corner, err = cornerIndex(res.model, reportCorner); err != nil {
			return err
		}
	}

	reps, err := netres.AnalyzeAll(res.network, corner, netres.Options{CouplingFactor: couplingFactor})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	fmt.Printf("Corner %s: %d nets\n\n", res.model.Corners()[corner], len(reps))
	fmt.Printf("%-20s %-16s %-16s %12s %12s\n", "Net", "Driver", "Sink", "R (Ω)", "Elmore (ps)")
	fmt.Println("─────────────────────────────────────────────────────────")
	for _, r := range reps {
		if len(r.Terminals) == 0 {
			fmt.Printf("%-20s %-16s %-16s %12s %12s\n", r.Name, r.Driver, "-", "-", "-")
			continue
		}
		for _, t := range r.Terminals {
			fmt.Printf("%-20s %-16s %-16s %12.3f %12.5f\n", r.Name, r.Driver, t.Name, t.Resistance, t.Elmore)
		}
		if r.Floating > 0 {
			fmt.Printf("%-20s %d node(s) not connected to the driver\n", "", r.Floating)
		}
	}
	return nil
}
