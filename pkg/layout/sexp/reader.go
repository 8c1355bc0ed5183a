package sexp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// SyntaxError is a malformed expression at Line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// reader builds expressions straight from the rune stream. Open lists are
// kept on an explicit stack so nesting depth never grows the Go stack.
type reader struct {
	in   *bufio.Reader
	line int
	buf  strings.Builder
}

func newReader(r io.Reader) *reader {
	return &reader{in: bufio.NewReader(r), line: 1}
}

func (r *reader) fail(line int, format string, args ...any) error {
	return &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (r *reader) next() (rune, error) {
	ch, _, err := r.in.ReadRune()
	if err == nil && ch == '\n' {
		r.line++
	}
	return ch, err
}

func (r *reader) back(ch rune) {
	r.in.UnreadRune()
	if ch == '\n' {
		r.line--
	}
}

// skip consumes blanks and comments. Comments start at ';' or '#' and run
// to the end of the line.
func (r *reader) skip() error {
	for {
		ch, err := r.next()
		if err != nil {
			return err
		}
		switch {
		case unicode.IsSpace(ch):
		case ch == ';' || ch == '#':
			for ch != '\n' {
				if ch, err = r.next(); err != nil {
					return err
				}
			}
		default:
			r.back(ch)
			return nil
		}
	}
}

func (r *reader) quoted() (Symbol, error) {
	start := r.line
	r.buf.Reset()
	for {
		ch, err := r.next()
		if err != nil {
			return "", r.fail(start, "unterminated string")
		}
		switch ch {
		case '"':
			return Symbol(r.buf.String()), nil
		case '\\':
			esc, err := r.next()
			if err != nil {
				return "", r.fail(start, "unterminated string")
			}
			switch esc {
			case 'n':
				esc = '\n'
			case 't':
				esc = '\t'
			}
			r.buf.WriteRune(esc)
		default:
			r.buf.WriteRune(ch)
		}
	}
}

func (r *reader) bare() (Symbol, error) {
	r.buf.Reset()
	for {
		ch, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			r.back(ch)
			break
		}
		r.buf.WriteRune(ch)
	}
	return Symbol(r.buf.String()), nil
}

// readAll returns every top-level expression in the stream.
func (r *reader) readAll() ([]Sexp, error) {
	var (
		top   []Sexp
		stack []*List
	)
	emit := func(e Sexp) {
		if n := len(stack); n > 0 {
			stack[n-1].elements = append(stack[n-1].elements, e)
		} else {
			top = append(top, e)
		}
	}

	for {
		err := r.skip()
		if errors.Is(err, io.EOF) {
			if n := len(stack); n > 0 {
				return nil, r.fail(stack[n-1].line, "list not closed")
			}
			return top, nil
		}
		if err != nil {
			return nil, err
		}

		ch, _ := r.next()
		switch ch {
		case '(':
			stack = append(stack, &List{line: r.line})
		case ')':
			n := len(stack)
			if n == 0 {
				return nil, r.fail(r.line, "unexpected ')'")
			}
			l := stack[n-1]
			stack = stack[:n-1]
			emit(l)
		case '"':
			s, err := r.quoted()
			if err != nil {
				return nil, err
			}
			emit(s)
		default:
			r.back(ch)
			s, err := r.bare()
			if err != nil {
				return nil, err
			}
			emit(s)
		}
	}
}
