package techmodel

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// RulesLexer defines the lexical structure of RC model files
var RulesLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments (# to end of line)
	{Name: "Comment", Pattern: `#[^\n]*`},

	{Name: "Whitespace", Pattern: `[\s]+`},

	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},

	// Integers and reals share one token so "2" can fill an int or a float
	{Name: "Number", Pattern: `[-+]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?`},

	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_\-]*`},

	{Name: "Punct", Pattern: `[{}]`},
})
