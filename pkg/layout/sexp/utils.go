package sexp

import (
	"fmt"
	"strconv"
)

// S-expression navigation helpers

// NodeName returns the first symbol of a list (the node type/name)
func NodeName(s Sexp) (string, error) {
	if s == nil {
		return "", fmt.Errorf("nil expression")
	}
	if s.IsLeaf() {
		return string(s.(Symbol)), nil
	}

	list := s.(*List)
	if sym, ok := list.Get(0).(Symbol); ok {
		return string(sym), nil
	}
	return "", fmt.Errorf("line %d: expected symbol at head of list", list.line)
}

// FindNode searches for a child list with the given key (first symbol).
// Example: FindNode(s, "rect") finds (rect 0 0 10 10) in a list
func FindNode(s Sexp, key string) (*List, bool) {
	list, ok := s.(*List)
	if !ok {
		return nil, false
	}

	for _, item := range list.elements {
		sub, ok := item.(*List)
		if !ok {
			continue
		}
		if name, err := NodeName(sub); err == nil && name == key {
			return sub, true
		}
	}

	return nil, false
}

// FindAllNodes finds all child lists with the given key
func FindAllNodes(s Sexp, key string) []*List {
	var results []*List

	list, ok := s.(*List)
	if !ok {
		return results
	}

	for _, item := range list.elements {
		sub, ok := item.(*List)
		if !ok {
			continue
		}
		if name, err := NodeName(sub); err == nil && name == key {
			results = append(results, sub)
		}
	}

	return results
}

// HasSymbol reports whether a list contains the bare symbol, or an empty
// list headed by it: both (net ... driver) and (net ... (driver)) match.
func HasSymbol(s Sexp, symbol string) bool {
	list, ok := s.(*List)
	if !ok {
		return false
	}

	for i, item := range list.elements {
		if i == 0 {
			continue
		}
		switch v := item.(type) {
		case Symbol:
			if string(v) == symbol {
				return true
			}
		case *List:
			if v.Len() == 1 {
				if name, _ := NodeName(v); name == symbol {
					return true
				}
			}
		}
	}

	return false
}

// Typed value extraction helpers

// GetString extracts the atom at index. Index 0 is the key.
func GetString(s Sexp, index int) (string, error) {
	list, ok := s.(*List)
	if !ok {
		return "", fmt.Errorf("expected list, got leaf")
	}

	if index < 0 || index >= list.Len() {
		return "", fmt.Errorf("line %d: index %d out of bounds (length %d)", list.line, index, list.Len())
	}

	if sym, ok := list.elements[index].(Symbol); ok {
		return string(sym), nil
	}

	return "", fmt.Errorf("line %d: expected symbol at index %d, got list", list.line, index)
}

// GetInt extracts an int value at the given index
func GetInt(s Sexp, index int) (int, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}

	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("failed to parse int %q: %w", str, err)
	}

	return val, nil
}

// GetInts extracts n consecutive ints starting at index.
func GetInts(s Sexp, index, n int) ([]int, error) {
	vals := make([]int, n)
	for i := range vals {
		v, err := GetInt(s, index+i)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// Line returns the source line of a list, or 0 for atoms.
func Line(s Sexp) int {
	if list, ok := s.(*List); ok {
		return list.line
	}
	return 0
}
