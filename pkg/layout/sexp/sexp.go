// Package sexp is a small streaming S-expression reader used for layout
// files. It reads from any io.Reader and keeps no global state, so very
// large layouts can be parsed without holding the raw text in memory.
package sexp

import (
	"io"
	"strings"
)

// Sexp is either an atom (Symbol) or a list (*List).
type Sexp interface {
	// IsLeaf reports whether this is an atom
	IsLeaf() bool

	// Len returns the number of elements in a list (1 for atoms)
	Len() int

	String() string
}

// Symbol is an atom: identifier, number or quoted string with quotes removed.
type Symbol string

func (s Symbol) IsLeaf() bool   { return true }
func (s Symbol) Len() int       { return 1 }
func (s Symbol) String() string { return string(s) }

// List is a parenthesised sequence of expressions.
type List struct {
	elements []Sexp
	line     int
}

func (l *List) IsLeaf() bool { return false }
func (l *List) Len() int     { return len(l.elements) }

// Line returns the source line of the opening parenthesis.
func (l *List) Line() int { return l.line }

// Get returns the element at index, or nil when out of range.
func (l *List) Get(index int) Sexp {
	if index < 0 || index >= len(l.elements) {
		return nil
	}
	return l.elements[index]
}

func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, elem := range l.elements {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(elem.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Parse reads all top-level expressions from r.
func Parse(r io.Reader) ([]Sexp, error) {
	return newReader(r).readAll()
}

// ParseString is Parse over an in-memory string.
func ParseString(s string) ([]Sexp, error) {
	return Parse(strings.NewReader(s))
}
