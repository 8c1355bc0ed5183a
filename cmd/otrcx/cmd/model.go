package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/techmodel"
)

var (
	sampleWidth float64
	sampleDist  float64
)

var modelCmd = &cobra.Command{
	Use:   "model <rules_file>",
	Short: "Show a technology RC model",
	Long: `Parses a technology RC model and lists its corners, the characterised
levels and their table sizes, and the unit values at a sample width and
distance.`,
	Args: cobra.ExactArgs(1),
	RunE: runModel,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.Flags().Float64Var(&sampleWidth, "width", 0.1, "sample wire width in microns")
	modelCmd.Flags().Float64Var(&sampleDist, "dist", 0.2, "sample neighbour distance in microns")
}

func runModel(cmd *cobra.Command, args []string) error {
	model, err := techmodel.Load(args[0])
	if err != nil {
		return fmt.Errorf("error loading model: %w", err)
	}

	fmt.Printf("Model: %s (units %s)\n", model.Name, model.Units)
	fmt.Printf("  Corners: %s\n", strings.Join(model.Corners(), ", "))
	fmt.Printf("  Levels: %d\n\n", len(model.Levels()))

	kinds := []string{"coupling", "fringe", "open", "resistance", "via"}
	fmt.Printf("%-6s", "Level")
	for _, k := range kinds {
		fmt.Printf(" %10s", k)
	}
	fmt.Println()
	fmt.Println("─────────────────────────────────────────────────────────")
	for _, l := range model.Levels() {
		fmt.Printf("%-6d", l)
		for _, k := range kinds {
			fmt.Printf(" %10d", model.RowCount(l, k))
		}
		fmt.Println()
	}

	fmt.Printf("\nUnit values at width %g um, distance %g um:\n", sampleWidth, sampleDist)
	for c, corner := range model.Corners() {
		fmt.Printf("  corner %s\n", corner)
		for _, l := range model.Levels() {
			fmt.Printf("    L%d  cc %.4f  fringe %.4f  open %.4f  res %.4f  via %.3f\n", l,
				model.Coupling(c, l, sampleWidth, sampleDist),
				model.Fringe(c, l, l, sampleWidth, sampleDist),
				model.OpenFringe(c, l, sampleWidth),
				model.Resistance(c, l, sampleWidth, sampleDist),
				model.Via(c, l))
		}
	}
	return nil
}
