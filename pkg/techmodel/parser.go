package techmodel

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
)

// Parser reads RC model files
type Parser struct {
	parser *participle.Parser[RulesFile]
}

// NewParser creates a new RC model parser
func NewParser() (*Parser, error) {
	parser, err := participle.Build[RulesFile](
		participle.Lexer(RulesLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}

	return &Parser{parser: parser}, nil
}

// Parse parses a model file from a reader
func (p *Parser) Parse(r io.Reader) (*RulesFile, error) {
	file, err := p.parser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return file, nil
}

// ParseString parses a model file from a string
func (p *Parser) ParseString(input string) (*RulesFile, error) {
	file, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return file, nil
}

// ParseFile parses a model file from a file path
func (p *Parser) ParseFile(filename string) (*RulesFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Load parses and builds a model file in one step.
func Load(filename string) (*Tables, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	file, err := p.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return Build(file)
}

// LoadString parses and builds a model from text.
func LoadString(input string) (*Tables, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	file, err := p.ParseString(input)
	if err != nil {
		return nil, err
	}
	return Build(file)
}
