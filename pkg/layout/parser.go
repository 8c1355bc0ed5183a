package layout

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/layout/sexp"
)

// Minimum supported layout file version
const MinSupportedVersion = 1

// ParseFile reads and parses a layout file
func ParseFile(filename string) (*Block, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads and parses a layout from an io.Reader
func Parse(r io.Reader) (*Block, error) {
	exprs, err := sexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s-expression: %w", err)
	}

	if len(exprs) == 0 {
		return nil, fmt.Errorf("empty file or no valid s-expressions found")
	}

	root := exprs[0]
	rootName, err := sexp.NodeName(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get root node name: %w", err)
	}
	if rootName != "rcx_layout" {
		return nil, fmt.Errorf("not a layout file: expected 'rcx_layout', got '%s'", rootName)
	}

	version, err := parseVersion(root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	block := &Block{
		Version: version,
		DBU:     1000,
	}

	if node, ok := sexp.FindNode(root, "design"); ok {
		block.Design, _ = sexp.GetString(node, 1)
	}

	if node, ok := sexp.FindNode(root, "units"); ok {
		dbu, err := sexp.GetInt(node, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to parse units: %w", err)
		}
		if dbu <= 0 {
			return nil, fmt.Errorf("units must be positive, got %d", dbu)
		}
		block.DBU = dbu
	}

	dieNode, ok := sexp.FindNode(root, "die")
	if !ok {
		return nil, fmt.Errorf("missing die area")
	}
	block.Die, err = parseCoords(dieNode, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse die area: %w", err)
	}

	for _, node := range sexp.FindAllNodes(root, "layer") {
		layer, err := parseLayer(node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse layer (line %d): %w", node.Line(), err)
		}
		block.Layers = append(block.Layers, layer)
	}

	for _, node := range sexp.FindAllNodes(root, "net") {
		net, err := parseNet(node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse net (line %d): %w", node.Line(), err)
		}
		if _, dup := block.Net(net.ID); dup {
			return nil, fmt.Errorf("duplicate net id %d (line %d)", net.ID, node.Line())
		}
		block.AddNet(net)
	}

	for _, node := range sexp.FindAllNodes(root, "instance") {
		inst, err := parseInstance(node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse instance (line %d): %w", node.Line(), err)
		}
		block.Instances = append(block.Instances, inst)
	}

	return block, nil
}

func parseVersion(root sexp.Sexp) (int, error) {
	node, ok := sexp.FindNode(root, "version")
	if !ok {
		return 0, fmt.Errorf("missing version")
	}
	version, err := sexp.GetInt(node, 1)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %w", err)
	}
	if version < MinSupportedVersion {
		return 0, fmt.Errorf("unsupported version %d (minimum %d)", version, MinSupportedVersion)
	}
	return version, nil
}

// parseCoords reads four integers starting at index into a Rect.
func parseCoords(node sexp.Sexp, index int) (Rect, error) {
	v, err := sexp.GetInts(node, index, 4)
	if err != nil {
		return Rect{}, err
	}
	return R(v[0], v[1], v[2], v[3]), nil
}

func parseRectNode(parent sexp.Sexp, key string) (Rect, error) {
	node, ok := sexp.FindNode(parent, key)
	if !ok {
		return Rect{}, fmt.Errorf("missing (%s ...)", key)
	}
	return parseCoords(node, 1)
}

func parseIntNode(parent sexp.Sexp, key string) (int, error) {
	node, ok := sexp.FindNode(parent, key)
	if !ok {
		return 0, fmt.Errorf("missing (%s ...)", key)
	}
	return sexp.GetInt(node, 1)
}

// optIntNode is parseIntNode for fields that default to zero when absent.
func optIntNode(parent sexp.Sexp, key string) (int, error) {
	node, ok := sexp.FindNode(parent, key)
	if !ok {
		return 0, nil
	}
	v, err := sexp.GetInt(node, 1)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseLayer(node *sexp.List) (Layer, error) {
	var (
		layer Layer
		err   error
	)

	if n, ok := sexp.FindNode(node, "name"); ok {
		if layer.Name, err = sexp.GetString(n, 1); err != nil {
			return layer, fmt.Errorf("invalid layer name: %w", err)
		}
	}
	if layer.Level, err = parseIntNode(node, "level"); err != nil {
		return layer, err
	}
	if layer.Name == "" {
		layer.Name = fmt.Sprintf("M%d", layer.Level)
	}

	if n, ok := sexp.FindNode(node, "direction"); ok {
		s, _ := sexp.GetString(n, 1)
		if layer.Dir, err = ParseDir(s); err != nil {
			return layer, err
		}
	}

	// Pitch is validated by the extractor, which owns that policy.
	if layer.Pitch, err = parseIntNode(node, "pitch"); err != nil {
		return layer, err
	}
	if layer.Width, err = parseIntNode(node, "width"); err != nil {
		return layer, err
	}
	if layer.Spacing, err = optIntNode(node, "spacing"); err != nil {
		return layer, err
	}
	if layer.Offset, err = optIntNode(node, "offset"); err != nil {
		return layer, err
	}

	return layer, nil
}

func parseNet(node *sexp.List) (*Net, error) {
	id, err := sexp.GetInt(node, 1)
	if err != nil {
		return nil, fmt.Errorf("invalid net id: %w", err)
	}
	name, err := sexp.GetString(node, 2)
	if err != nil {
		return nil, fmt.Errorf("invalid net name: %w", err)
	}

	net := &Net{ID: id, Name: name}

	if n, ok := sexp.FindNode(node, "use"); ok {
		use, _ := sexp.GetString(n, 1)
		switch use {
		case "signal", "clock", "analog":
			net.Use = UseSignal
		case "power":
			net.Use = UsePower
		case "ground":
			net.Use = UseGround
		default:
			slog.Warn("unknown net use, treating as signal", "net", name, "use", use)
		}
	}

	seen := make(map[int]bool)

	for _, w := range sexp.FindAllNodes(node, "wire") {
		shape, err := parseWire(w)
		if err != nil {
			return nil, fmt.Errorf("wire (line %d): %w", w.Line(), err)
		}
		if seen[shape.ID] {
			return nil, fmt.Errorf("duplicate shape id %d (line %d)", shape.ID, w.Line())
		}
		seen[shape.ID] = true
		net.Shapes = append(net.Shapes, shape)
	}

	for _, v := range sexp.FindAllNodes(node, "via") {
		shape, err := parseVia(v)
		if err != nil {
			return nil, fmt.Errorf("via (line %d): %w", v.Line(), err)
		}
		if seen[shape.ID] {
			return nil, fmt.Errorf("duplicate shape id %d (line %d)", shape.ID, v.Line())
		}
		seen[shape.ID] = true
		net.Shapes = append(net.Shapes, shape)
	}

	for _, t := range sexp.FindAllNodes(node, "term") {
		term, err := parseTerm(t)
		if err != nil {
			return nil, fmt.Errorf("term (line %d): %w", t.Line(), err)
		}
		net.Terms = append(net.Terms, term)
	}

	return net, nil
}

func parseWire(node *sexp.List) (Shape, error) {
	id, err := sexp.GetInt(node, 1)
	if err != nil {
		return Shape{}, fmt.Errorf("invalid shape id: %w", err)
	}
	level, err := parseIntNode(node, "layer")
	if err != nil {
		return Shape{}, err
	}
	rect, err := parseRectNode(node, "rect")
	if err != nil {
		return Shape{}, err
	}
	if rect.Empty() {
		return Shape{}, fmt.Errorf("wire %d has no area: %v", id, rect)
	}
	return Shape{ID: id, Level: level, Rect: rect}, nil
}

func parseVia(node *sexp.List) (Shape, error) {
	id, err := sexp.GetInt(node, 1)
	if err != nil {
		return Shape{}, fmt.Errorf("invalid shape id: %w", err)
	}
	cut, err := parseIntNode(node, "cut")
	if err != nil {
		return Shape{}, err
	}
	bottom, err := parseRectNode(node, "bottom")
	if err != nil {
		return Shape{}, err
	}
	top, err := parseRectNode(node, "top")
	if err != nil {
		return Shape{}, err
	}
	return Shape{ID: id, Level: cut, Rect: bottom, Via: true, Top: top}, nil
}

func parseTerm(node *sexp.List) (Terminal, error) {
	name, err := sexp.GetString(node, 1)
	if err != nil {
		return Terminal{}, fmt.Errorf("invalid terminal name: %w", err)
	}
	level, err := parseIntNode(node, "layer")
	if err != nil {
		return Terminal{}, err
	}
	rect, err := parseRectNode(node, "rect")
	if err != nil {
		return Terminal{}, err
	}
	return Terminal{
		Name:   name,
		Level:  level,
		Rect:   rect,
		Driver: sexp.HasSymbol(node, "driver"),
	}, nil
}

func parseInstance(node *sexp.List) (Instance, error) {
	name, err := sexp.GetString(node, 1)
	if err != nil {
		return Instance{}, fmt.Errorf("invalid instance name: %w", err)
	}
	inst := Instance{Name: name}
	if _, ok := sexp.FindNode(node, "bbox"); ok {
		if inst.BBox, err = parseRectNode(node, "bbox"); err != nil {
			return inst, err
		}
	}
	for _, obs := range sexp.FindAllNodes(node, "obs") {
		level, err := parseIntNode(obs, "layer")
		if err != nil {
			return inst, err
		}
		rect, err := parseRectNode(obs, "rect")
		if err != nil {
			return inst, err
		}
		inst.Obstructions = append(inst.Obstructions, Obstruction{Level: level, Rect: rect})
		inst.BBox = inst.BBox.Union(rect)
	}
	return inst, nil
}
