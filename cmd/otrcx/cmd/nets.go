package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
)

var netsIn []int

var netsCmd = &cobra.Command{
	Use:   "nets <layout_file> [net_name]",
	Short: "Show layout net information",
	Long: `Display information about nets in a layout file.

Without net_name: Lists all nets with wire/via/terminal counts
With net_name: Shows the shapes, terminals and tree of that net`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runNets,
}

func init() {
	rootCmd.AddCommand(netsCmd)
	netsCmd.Flags().IntSliceVar(&netsIn, "in", nil, "only nets whose bounding box meets x1,y1,x2,y2")
}

func runNets(cmd *cobra.Command, args []string) error {
	block, err := layout.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("error parsing layout: %w", err)
	}

	if len(args) >= 2 {
		return showNet(block, args[1])
	}

	var nets []*layout.Net
	if len(netsIn) > 0 {
		area, err := parseRect(netsIn)
		if err != nil {
			return fmt.Errorf("--in: %w", err)
		}
		nets = layout.NewBBoxIndex(block.AllNets(), block.AllInstances()).Nets(area)
	} else {
		for n := range block.AllNets() {
			nets = append(nets, n)
		}
	}
	listNets(block, nets)
	return nil
}

func listNets(block *layout.Block, nets []*layout.Net) {
	fmt.Printf("Layout %s: %d of %d nets\n\n", block.Design, len(nets), len(block.Nets))
	fmt.Printf("%-6s %-24s %-7s %6s %6s %6s\n", "ID", "Net Name", "Use", "Wires", "Vias", "Terms")
	fmt.Println("─────────────────────────────────────────────────────────")
	for _, n := range nets {
		wires, vias := 0, 0
		for _, s := range n.Shapes {
			if s.Via {
				vias++
			} else {
				wires++
			}
		}
		fmt.Printf("%-6d %-24s %-7s %6d %6d %6d\n", n.ID, n.Name, n.Use, wires, vias, len(n.Terms))
	}
}

func showNet(block *layout.Block, name string) error {
	n, ok := block.NetByName(name)
	if !ok {
		return fmt.Errorf("net '%s' not found", name)
	}
	topo := layout.BuildTopology(n)

	fmt.Printf("Net: %s (id %d, %s)\n", n.Name, n.ID, n.Use)
	fmt.Printf("  Bounding box: %s\n", n.BBox())

	fmt.Printf("\nTerminals (%d):\n", len(n.Terms))
	for _, t := range n.Terms {
		role := "sink"
		if t.Driver {
			role = "driver"
		}
		fmt.Printf("  %-16s L%d %s %s\n", t.Name, t.Level, t.Rect, role)
	}

	fmt.Printf("\nShapes (%d):\n", len(n.Shapes))
	for _, id := range topo.Order {
		s, _ := n.Shape(id)
		kind := "wire"
		if s.Via {
			kind = "via"
		}
		fmt.Printf("  %-4s %3d L%d %s parent %s\n", kind, s.ID, s.Level, s.Rect, parentName(topo.Parent[id]))
	}
	if topo.Islands > 0 {
		fmt.Printf("\n%d floating island(s)\n", topo.Islands)
	}
	for _, t := range topo.Unattached {
		fmt.Printf("\nTerminal %s touches no shape\n", t)
	}
	return nil
}

func parentName(key int) string {
	switch {
	case key == layout.RootKey:
		return "driver"
	case key < layout.RootKey:
		return fmt.Sprintf("island %d", layout.RootKey-key)
	}
	return fmt.Sprintf("%d", key)
}
