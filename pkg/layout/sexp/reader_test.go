package sexp

import (
	"errors"
	"strings"
	"testing"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantStr string
		wantErr bool
	}{
		{
			name:    "single list",
			input:   "(die 0 0 100 100)",
			wantLen: 1,
			wantStr: "(die 0 0 100 100)",
		},
		{
			name:    "nested with strings",
			input:   `(net 1 "clk a" (use signal))`,
			wantLen: 1,
			wantStr: "(net 1 clk a (use signal))",
		},
		{
			name:    "comments skipped",
			input:   "; header\n(a 1) # trailing\n(b 2)",
			wantLen: 2,
			wantStr: "(a 1)",
		},
		{
			name:    "unbalanced",
			input:   "(a (b 1)",
			wantErr: true,
		},
		{
			name:    "stray close",
			input:   ")",
			wantErr: true,
		},
		{
			name:    "unterminated string",
			input:   `(a "b)`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseString() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseString() unexpected error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("ParseString() returned %d expressions, want %d", len(got), tt.wantLen)
			}
			if got[0].String() != tt.wantStr {
				t.Errorf("ParseString()[0] = %q, want %q", got[0].String(), tt.wantStr)
			}
		})
	}
}

func TestLineTracking(t *testing.T) {
	input := "(root\n  (a 1)\n\n  (b 2))"
	exprs, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	b, ok := FindNode(exprs[0], "b")
	if !ok {
		t.Fatal("FindNode(b) not found")
	}
	if b.Line() != 4 {
		t.Errorf("b.Line() = %d, want 4", b.Line())
	}
}

func TestHelpers(t *testing.T) {
	exprs, err := ParseString(`(net 7 "vdd" (use power) (wire 1 (rect 0 10 20 30)) (wire 2 (rect 1 2 3 4)) (driver))`)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	root := exprs[0]

	if name, _ := NodeName(root); name != "net" {
		t.Errorf("NodeName = %q, want net", name)
	}
	if id, err := GetInt(root, 1); err != nil || id != 7 {
		t.Errorf("GetInt(1) = %d, %v; want 7", id, err)
	}
	if s, _ := GetString(root, 2); s != "vdd" {
		t.Errorf("GetString(2) = %q, want vdd", s)
	}
	if wires := FindAllNodes(root, "wire"); len(wires) != 2 {
		t.Errorf("FindAllNodes(wire) = %d, want 2", len(wires))
	}
	if !HasSymbol(root, "driver") {
		t.Error("HasSymbol(driver) = false, want true")
	}
	if HasSymbol(root, "net") {
		t.Error("HasSymbol should ignore the head symbol")
	}

	wire, _ := FindNode(root, "wire")
	rect, ok := FindNode(wire, "rect")
	if !ok {
		t.Fatal("rect not found")
	}
	vals, err := GetInts(rect, 1, 4)
	if err != nil {
		t.Fatalf("GetInts failed: %v", err)
	}
	if vals[3] != 30 {
		t.Errorf("GetInts()[3] = %d, want 30", vals[3])
	}
	if _, err := GetInts(rect, 2, 4); err == nil {
		t.Error("GetInts past end should fail")
	}
}

func TestSyntaxErrorLine(t *testing.T) {
	_, err := ParseString("(a 1)\n(b\n  (c 2)")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("ParseString() error = %v, want *SyntaxError", err)
	}
	if se.Line != 2 {
		t.Errorf("SyntaxError.Line = %d, want 2", se.Line)
	}
}
