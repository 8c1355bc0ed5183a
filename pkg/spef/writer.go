// Package spef writes an extracted parasitic network in SPEF form.
package spef

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceRCX/pkg/parasitics"
)

// Options control the header and which values are written
type Options struct {
	Design  string
	Program string
	Version string
	Date    time.Time // zero omits the date line

	// Corners selects corner indices. Empty writes every corner, values
	// separated by the delimiter.
	Corners []int

	// Nets selects net IDs. Empty writes every extracted net.
	Nets []int
}

const (
	divider   = "/"
	delimiter = ":"
)

// Writer emits one network
type Writer struct {
	nw   *parasitics.Network
	opts Options

	netMap  map[int]int
	nodeIdx map[parasitics.NodeID]string
}

// NewWriter prepares a writer for nw.
func NewWriter(nw *parasitics.Network, opts Options) *Writer {
	if opts.Program == "" {
		opts.Program = "otrcx"
	}
	if len(opts.Corners) == 0 {
		for i := range nw.Corners() {
			opts.Corners = append(opts.Corners, i)
		}
	}
	return &Writer{nw: nw, opts: opts}
}

// WriteTo writes the header, name map, and one D_NET per net.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cw := &countWriter{w: out}
	bw := bufio.NewWriter(cw)

	for _, c := range w.opts.Corners {
		if c < 0 || c >= len(w.nw.Corners()) {
			return 0, fmt.Errorf("corner %d out of range", c)
		}
	}

	nets := w.opts.Nets
	if len(nets) == 0 {
		for _, id := range w.nw.Nets() {
			if w.nw.Extracted(id) {
				nets = append(nets, id)
			}
		}
	}

	w.netMap = make(map[int]int, len(nets))
	w.nodeIdx = make(map[parasitics.NodeID]string)
	for i, id := range nets {
		w.netMap[id] = i + 1
	}
	// node names cover every net so coupling to unselected nets still
	// resolves
	for _, id := range w.nw.Nets() {
		for i, n := range w.nw.Nodes(id) {
			w.nodeIdx[n.ID] = strconv.Itoa(i + 1)
		}
	}

	w.header(bw)
	fmt.Fprintf(bw, "\n*NAME_MAP\n")
	for i, id := range nets {
		fmt.Fprintf(bw, "*%d %s\n", i+1, escape(w.nw.NetName(id)))
	}
	for _, id := range nets {
		w.net(bw, id)
	}

	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("failed to write SPEF: %w", err)
	}
	return cw.n, nil
}

func (w *Writer) header(bw *bufio.Writer) {
	fmt.Fprintf(bw, "*SPEF \"ieee 1481-1999\"\n")
	fmt.Fprintf(bw, "*DESIGN \"%s\"\n", w.opts.Design)
	if !w.opts.Date.IsZero() {
		fmt.Fprintf(bw, "*DATE \"%s\"\n", w.opts.Date.Format("Mon Jan 2 15:04:05 2006"))
	}
	fmt.Fprintf(bw, "*VENDOR \"OpenTraceLab\"\n")
	fmt.Fprintf(bw, "*PROGRAM \"%s\"\n", w.opts.Program)
	fmt.Fprintf(bw, "*VERSION \"%s\"\n", w.opts.Version)
	fmt.Fprintf(bw, "*DESIGN_FLOW \"NAME_SCOPE LOCAL\" \"PIN_CAP NONE\"\n")
	fmt.Fprintf(bw, "*DIVIDER %s\n", divider)
	fmt.Fprintf(bw, "*DELIMITER %s\n", delimiter)
	fmt.Fprintf(bw, "*BUS_DELIMITER [ ]\n")
	fmt.Fprintf(bw, "*T_UNIT 1 NS\n")
	fmt.Fprintf(bw, "*C_UNIT 1 FF\n")
	fmt.Fprintf(bw, "*R_UNIT 1 OHM\n")
	fmt.Fprintf(bw, "*L_UNIT 1 HENRY\n")
	if len(w.opts.Corners) > 1 {
		names := make([]string, len(w.opts.Corners))
		for i, c := range w.opts.Corners {
			names[i] = w.nw.Corners()[c]
		}
		fmt.Fprintf(bw, "// corners %s\n", strings.Join(names, delimiter))
	}
}

// values formats one value per selected corner.
func (w *Writer) values(v []float64) string {
	parts := make([]string, len(w.opts.Corners))
	for i, c := range w.opts.Corners {
		parts[i] = strconv.FormatFloat(v[c], 'g', 6, 64)
	}
	return strings.Join(parts, delimiter)
}

// nodeName is *<map>:<idx>, or the node of a net outside the name map by
// its plain name.
func (w *Writer) nodeName(n *parasitics.CapNode) string {
	if m, ok := w.netMap[n.Net]; ok {
		return fmt.Sprintf("*%d%s%s", m, delimiter, w.nodeIdx[n.ID])
	}
	return fmt.Sprintf("%s%s%s", escape(w.nw.NetName(n.Net)), delimiter, w.nodeIdx[n.ID])
}

func (w *Writer) net(bw *bufio.Writer, id int) {
	total := make([]float64, len(w.nw.Corners()))
	for c := range total {
		total[c] = w.nw.NetCapacitance(id, c)
	}
	fmt.Fprintf(bw, "\n*D_NET *%d %s\n", w.netMap[id], w.values(total))

	nodes := w.nw.Nodes(id)
	fmt.Fprintf(bw, "*CONN\n")
	for _, n := range nodes {
		for _, term := range n.Terms {
			dir := "I"
			if n.Key == layout.RootKey {
				dir = "O"
			}
			fmt.Fprintf(bw, "%s %s %s\n", pinKind(term), pinName(term), dir)
		}
	}

	fmt.Fprintf(bw, "*CAP\n")
	k := 1
	for _, n := range nodes {
		if zero(n.Ground) {
			continue
		}
		fmt.Fprintf(bw, "%d %s %s\n", k, w.nodeName(n), w.values(n.Ground))
		k++
	}
	for _, cc := range w.nw.CCSegs(id) {
		a, _ := w.nw.NodeByID(cc.A)
		b, _ := w.nw.NodeByID(cc.B)
		if a.Net != id {
			a, b = b, a
		}
		fmt.Fprintf(bw, "%d %s %s %s\n", k, w.nodeName(a), w.nodeName(b), w.values(cc.Cap))
		k++
	}

	fmt.Fprintf(bw, "*RES\n")
	for i, r := range w.nw.RSegs(id) {
		src, _ := w.nw.NodeByID(r.Source)
		tgt, _ := w.nw.NodeByID(r.Target)
		fmt.Fprintf(bw, "%d %s %s %s\n", i+1, w.nodeName(src), w.nodeName(tgt), w.values(r.Res))
	}
	fmt.Fprintf(bw, "*END\n")
}

func zero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// pinKind is *I for an instance pin "inst/pin" and *P for a block port.
func pinKind(term string) string {
	if strings.Contains(term, divider) {
		return "*I"
	}
	return "*P"
}

// pinName turns "u0/Y" into "u0:Y".
func pinName(term string) string {
	if i := strings.LastIndex(term, divider); i >= 0 {
		return escape(term[:i]) + delimiter + escape(term[i+1:])
	}
	return escape(term)
}

// escape backslashes characters SPEF treats as hierarchy or delimiters.
func escape(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch r {
		case '/', ':', '*', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
