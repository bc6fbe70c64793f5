package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raaihank/relay-scrubber/internal/processor"
)

// ParseError describes why a selector could not be parsed
type ParseError struct {
	Input  string
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid selector %q at position %d: %s", e.Input, e.Pos, e.Reason)
}

// Parse reads a selector such as "request.headers.Authorization",
// "$frame.vars.**" or "($string & ~password)".
func Parse(input string) (Spec, error) {
	p := &parser{input: input}
	p.skipSpace()
	if p.eof() {
		return nil, p.fail("empty selector")
	}
	spec, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.fail(fmt.Sprintf("unexpected %q", p.peek()))
	}
	return spec, nil
}

// MustParse is Parse for selectors known to be valid
func MustParse(input string) Spec {
	spec, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return spec
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) fail(reason string) error {
	return &ParseError{Input: p.input, Pos: p.pos, Reason: reason}
}

func (p *parser) parseOr() (Spec, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.peek() != '|' {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Spec, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.peek() != '&' {
			return left, nil
		}
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
}

func (p *parser) parseNot() (Spec, error) {
	p.skipSpace()
	switch p.peek() {
	case '~':
		p.pos++
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	case '(':
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.fail("expected ')'")
		}
		p.pos++
		return inner, nil
	default:
		return p.parsePath()
	}
}

func (p *parser) parsePath() (Spec, error) {
	var path Path
	for {
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		path = append(path, item)
		if p.peek() != '.' {
			return path, nil
		}
		p.pos++
	}
}

func (p *parser) parseItem() (PathItem, error) {
	if p.eof() {
		return PathItem{}, p.fail("expected path item")
	}

	switch c := p.peek(); {
	case c == '*':
		p.pos++
		if p.peek() == '*' {
			p.pos++
			return DeepWildcard(), nil
		}
		if p.peek() == '\'' || isKeyChar(p.peek()) {
			key, err := p.parseKey()
			if err != nil {
				return PathItem{}, err
			}
			if p.peek() != '*' {
				return PathItem{}, p.fail("expected '*' to close key substring")
			}
			p.pos++
			return ContainsKey(key), nil
		}
		return Wildcard(), nil
	case c == '$':
		p.pos++
		start := p.pos
		for !p.eof() && isKeyChar(p.peek()) {
			p.pos++
		}
		name := p.input[start:p.pos]
		if name == "" {
			return PathItem{}, p.fail("expected type name after '$'")
		}
		t, ok := processor.ParseValueType(name)
		if !ok {
			p.pos = start
			return PathItem{}, p.fail(fmt.Sprintf("unknown value type %q", name))
		}
		return Type(t), nil
	case c == '\'':
		key, err := p.parseQuoted()
		if err != nil {
			return PathItem{}, err
		}
		return Key(key), nil
	case isKeyChar(c):
		key, _ := p.parseKey()
		if isDigits(key) {
			idx, err := strconv.Atoi(key)
			if err != nil {
				return PathItem{}, p.fail("index out of range")
			}
			return Index(idx), nil
		}
		return Key(key), nil
	default:
		return PathItem{}, p.fail(fmt.Sprintf("unexpected %q", c))
	}
}

// parseKey reads a bare or quoted key
func (p *parser) parseKey() (string, error) {
	if p.peek() == '\'' {
		return p.parseQuoted()
	}
	start := p.pos
	for !p.eof() && isKeyChar(p.peek()) {
		p.pos++
	}
	if start == p.pos {
		return "", p.fail("expected key")
	}
	return p.input[start:p.pos], nil
}

// parseQuoted reads a key in single quotes, where a doubled quote stands for
// one quote
func (p *parser) parseQuoted() (string, error) {
	start := p.pos
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			p.pos = start
			return "", p.fail("unterminated quoted key")
		}
		c := p.input[p.pos]
		p.pos++
		if c != '\'' {
			b.WriteByte(c)
			continue
		}
		if p.peek() == '\'' {
			b.WriteByte('\'')
			p.pos++
			continue
		}
		return b.String(), nil
	}
}
