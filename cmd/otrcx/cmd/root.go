package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "otrcx",
	Short: "OpenTraceRCX - windowed parasitic extraction",
	Long: `OpenTraceRCX (otrcx) extracts resistance and capacitance from a routed
layout using a technology RC model:
  - two-pass windowed sweep with bounded memory
  - coupling, fringe and open-boundary capacitance per corner
  - SPEF and JSON output, driver-to-sink resistance and Elmore delay

Examples:
  otrcx extract demo.rcxl --model generic.rcm --spef demo.spef
  otrcx nets demo.rcxl --in 0,0,10000,10000
  otrcx model generic.rcm
  otrcx report demo.rcxl --model generic.rcm --corner max`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
