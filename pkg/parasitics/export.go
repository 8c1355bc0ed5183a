package parasitics

import (
	"encoding/json"
)

type jsonNode struct {
	ID     NodeID    `json:"id"`
	Key    int       `json:"key"`
	Ground []float64 `json:"ground"`
	Terms  []string  `json:"terms,omitempty"`
}

type jsonRSeg struct {
	Shape  int       `json:"shape"`
	Source NodeID    `json:"source"`
	Target NodeID    `json:"target"`
	Res    []float64 `json:"res"`
}

type jsonNet struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Extracted bool       `json:"extracted"`
	Nodes     []jsonNode `json:"nodes"`
	RSegs     []jsonRSeg `json:"rsegs"`
}

type jsonCC struct {
	A   NodeID    `json:"a"`
	B   NodeID    `json:"b"`
	Cap []float64 `json:"cap"`
}

// ExportJSON renders the whole network as indented JSON.
func (nw *Network) ExportJSON() ([]byte, error) {
	var nets []jsonNet
	for _, id := range nw.Nets() {
		jn := jsonNet{ID: id, Name: nw.NetName(id), Extracted: nw.Extracted(id)}
		for _, n := range nw.Nodes(id) {
			jn.Nodes = append(jn.Nodes, jsonNode{ID: n.ID, Key: n.Key, Ground: n.Ground, Terms: n.Terms})
		}
		for _, r := range nw.RSegs(id) {
			jn.RSegs = append(jn.RSegs, jsonRSeg{Shape: r.Shape, Source: r.Source, Target: r.Target, Res: r.Res})
		}
		nets = append(nets, jn)
	}

	var ccs []jsonCC
	for _, c := range nw.AllCCSegs() {
		ccs = append(ccs, jsonCC{A: c.A, B: c.B, Cap: c.Cap})
	}

	st := nw.Stats()
	output := struct {
		Version string    `json:"version"`
		Corners []string  `json:"corners"`
		Nodes   int       `json:"node_count"`
		RSegs   int       `json:"rseg_count"`
		CCSegs  int       `json:"ccseg_count"`
		Nets    []jsonNet `json:"nets"`
		CC      []jsonCC  `json:"coupling"`
	}{
		Version: "1.0",
		Corners: nw.corners,
		Nodes:   st.Nodes,
		RSegs:   st.RSegs,
		CCSegs:  st.CCSegs,
		Nets:    nets,
		CC:      ccs,
	}

	return json.MarshalIndent(output, "", "  ")
}
