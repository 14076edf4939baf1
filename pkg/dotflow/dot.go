package dotflow

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a syntax error in a DOT pipeline definition,
// carrying the 1-based source line where parsing stopped.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dot: line %d: %s", e.Line, e.Msg)
}

// ParseDOT parses a pipeline definition written in the DOT subset the
// engine understands:
//
//   - a digraph header with an optional name: `digraph Name {` (a
//     leading `strict` keyword is accepted),
//   - graph attributes, either `graph [k=v, ...]` or bare top-level
//     assignments `k = v`,
//   - node statements `id [k=v, ...]` whose attribute lists may span
//     lines; repeating a node id merges attributes,
//   - edge chains `a -> b -> c [k=v, ...]` where a trailing attribute
//     list applies to every edge in the chain,
//   - `//`, `#`, and `/* */` comments; quoted values with escapes;
//     statements separated by newlines or semicolons.
//
// `node [...]` and `edge [...]` default-attribute statements are
// accepted and ignored. Anything else is a *ParseError with the line
// where parsing failed.
func ParseDOT(source []byte) (*Graph, error) {
	lx := &dotLexer{src: string(source), line: 1}
	p := &dotParser{lx: lx}
	return p.parse()
}

// dotToken kinds.
type dotTokenKind int

const (
	tokEOF dotTokenKind = iota
	tokIdent
	tokQuoted
	tokArrow
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokEquals
	tokComma
	tokSemi
)

type dotToken struct {
	kind dotTokenKind
	text string
	line int
}

func (k dotTokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokQuoted:
		return "quoted string"
	case tokArrow:
		return "'->'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokEquals:
		return "'='"
	case tokComma:
		return "','"
	case tokSemi:
		return "';'"
	}
	return "token"
}

// dotLexer scans the source one token at a time, tracking line numbers
// for error reporting. Comments and whitespace never surface as tokens.
type dotLexer struct {
	src  string
	pos  int
	line int
}

func (lx *dotLexer) next() (dotToken, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return dotToken{}, err
	}
	if lx.pos >= len(lx.src) {
		return dotToken{kind: tokEOF, line: lx.line}, nil
	}
	line := lx.line
	ch := lx.src[lx.pos]
	switch ch {
	case '{':
		lx.pos++
		return dotToken{kind: tokLBrace, text: "{", line: line}, nil
	case '}':
		lx.pos++
		return dotToken{kind: tokRBrace, text: "}", line: line}, nil
	case '[':
		lx.pos++
		return dotToken{kind: tokLBracket, text: "[", line: line}, nil
	case ']':
		lx.pos++
		return dotToken{kind: tokRBracket, text: "]", line: line}, nil
	case '=':
		lx.pos++
		return dotToken{kind: tokEquals, text: "=", line: line}, nil
	case ',':
		lx.pos++
		return dotToken{kind: tokComma, text: ",", line: line}, nil
	case ';':
		lx.pos++
		return dotToken{kind: tokSemi, text: ";", line: line}, nil
	case '"':
		text, err := lx.scanQuoted()
		if err != nil {
			return dotToken{}, err
		}
		return dotToken{kind: tokQuoted, text: text, line: line}, nil
	case '-':
		if lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '>' {
			lx.pos += 2
			return dotToken{kind: tokArrow, text: "->", line: line}, nil
		}
	}
	if isIdentChar(ch) {
		return dotToken{kind: tokIdent, text: lx.scanIdent(), line: line}, nil
	}
	return dotToken{}, &ParseError{Line: line, Msg: fmt.Sprintf("unexpected character %q", string(ch))}
}

func (lx *dotLexer) skipSpaceAndComments() error {
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		switch {
		case ch == '\n':
			lx.line++
			lx.pos++
		case ch == ' ' || ch == '\t' || ch == '\r':
			lx.pos++
		case ch == '#':
			lx.skipToLineEnd()
		case ch == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			lx.skipToLineEnd()
		case ch == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '*':
			if err := lx.skipBlockComment(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

func (lx *dotLexer) skipToLineEnd() {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.pos++
	}
}

func (lx *dotLexer) skipBlockComment() error {
	start := lx.line
	lx.pos += 2
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == '\n' {
			lx.line++
		} else if lx.src[lx.pos] == '*' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/' {
			lx.pos += 2
			return nil
		}
		lx.pos++
	}
	return &ParseError{Line: start, Msg: "unterminated block comment"}
}

// scanQuoted consumes a double-quoted string, decoding the escapes a
// pipeline author needs inside prompts and conditions: \" \\ \n \t.
// Any other backslash pair passes through untouched.
func (lx *dotLexer) scanQuoted() (string, error) {
	start := lx.line
	lx.pos++ // opening quote
	var b strings.Builder
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		switch ch {
		case '"':
			lx.pos++
			return b.String(), nil
		case '\\':
			if lx.pos+1 >= len(lx.src) {
				return "", &ParseError{Line: start, Msg: "unterminated quoted string"}
			}
			esc := lx.src[lx.pos+1]
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
			if esc == '\n' {
				lx.line++
			}
			lx.pos += 2
		case '\n':
			// Quoted strings may wrap across lines.
			lx.line++
			b.WriteByte(ch)
			lx.pos++
		default:
			b.WriteByte(ch)
			lx.pos++
		}
	}
	return "", &ParseError{Line: start, Msg: "unterminated quoted string"}
}

// isIdentChar reports whether ch may appear in a bare identifier.
// Dots and dashes are included so model names like gpt-5.2 parse
// without quoting.
func isIdentChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' ||
		ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' ||
		ch == '_' || ch == '.' || ch == '-'
}

func (lx *dotLexer) scanIdent() string {
	start := lx.pos
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		if !isIdentChar(ch) {
			break
		}
		// A dash beginning an arrow terminates the identifier.
		if ch == '-' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '>' {
			break
		}
		lx.pos++
	}
	return lx.src[start:lx.pos]
}

// dotParser consumes the token stream into a Graph. It keeps one token
// of lookahead.
type dotParser struct {
	lx  *dotLexer
	tok dotToken
}

func (p *dotParser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *dotParser) errf(format string, args ...any) error {
	return &ParseError{Line: p.tok.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *dotParser) expect(kind dotTokenKind) error {
	if p.tok.kind != kind {
		return p.errf("expected %s, found %s", kind, describeToken(p.tok))
	}
	return p.advance()
}

func describeToken(tok dotToken) string {
	switch tok.kind {
	case tokIdent, tokQuoted:
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	default:
		return tok.kind.String()
	}
}

func (p *dotParser) parse() (*Graph, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}

	// Header: [strict] digraph [name] {
	if p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, "strict") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokIdent || !strings.EqualFold(p.tok.text, "digraph") {
		if p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, "graph") {
			return nil, p.errf("undirected graphs are not supported; use digraph")
		}
		return nil, p.errf("expected 'digraph', found %s", describeToken(p.tok))
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	name := ""
	if p.tok.kind == tokIdent || p.tok.kind == tokQuoted {
		name = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	g := NewGraph(name)

	if err := p.expect(tokLBrace); err != nil {
		return nil, err
	}

	for {
		switch p.tok.kind {
		case tokRBrace:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokEOF {
				return nil, p.errf("unexpected %s after closing '}'", describeToken(p.tok))
			}
			return g, nil
		case tokEOF:
			return nil, p.errf("unexpected end of input: missing closing '}'")
		case tokSemi:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case tokIdent, tokQuoted:
			if err := p.parseStatement(g); err != nil {
				return nil, err
			}
		default:
			return nil, p.errf("unexpected %s; expected a statement", describeToken(p.tok))
		}
	}
}

// parseStatement handles one statement beginning with an identifier:
// a graph attribute block, a node/edge default block, a bare graph
// attribute assignment, a node declaration, or an edge chain.
func (p *dotParser) parseStatement(g *Graph) error {
	first := p.tok
	if err := p.advance(); err != nil {
		return err
	}

	if first.kind == tokIdent {
		switch strings.ToLower(first.text) {
		case "graph":
			if p.tok.kind == tokLBracket {
				attrs, err := p.parseAttrLists()
				if err != nil {
					return err
				}
				for _, a := range attrs {
					g.SetAttr(a.key, a.value)
				}
				return nil
			}
		case "node", "edge":
			if p.tok.kind == tokLBracket {
				// Default-attribute statements are tolerated so real
				// Graphviz files load, but defaults are not applied.
				_, err := p.parseAttrLists()
				return err
			}
		case "subgraph":
			return &ParseError{Line: first.line, Msg: "subgraphs are not supported"}
		}
	}

	switch p.tok.kind {
	case tokEquals:
		// Bare graph attribute: name = value
		if err := p.advance(); err != nil {
			return err
		}
		val, err := p.parseValue()
		if err != nil {
			return err
		}
		g.SetAttr(first.text, val)
		return nil
	case tokArrow:
		return p.parseEdgeChain(g, first)
	case tokLBracket:
		attrs, err := p.parseAttrLists()
		if err != nil {
			return err
		}
		node := g.AddNode(first.text)
		for _, a := range attrs {
			node.SetAttr(a.key, a.value)
		}
		return nil
	default:
		// Bare node declaration.
		g.AddNode(first.text)
		return nil
	}
}

// parseEdgeChain consumes `-> id (-> id)* [attrs]?` after the chain's
// first identifier, producing one edge per hop. Trailing attributes
// apply to every edge in the chain.
func (p *dotParser) parseEdgeChain(g *Graph, first dotToken) error {
	ids := []string{first.text}
	for p.tok.kind == tokArrow {
		if err := p.advance(); err != nil {
			return err
		}
		if p.tok.kind != tokIdent && p.tok.kind != tokQuoted {
			return p.errf("expected node id after '->', found %s", describeToken(p.tok))
		}
		ids = append(ids, p.tok.text)
		if err := p.advance(); err != nil {
			return err
		}
	}

	var attrs []dotAttr
	if p.tok.kind == tokLBracket {
		var err error
		attrs, err = p.parseAttrLists()
		if err != nil {
			return err
		}
	}

	for i := 0; i+1 < len(ids); i++ {
		g.AddNode(ids[i])
		g.AddNode(ids[i+1])
		edge := g.AddEdge(ids[i], ids[i+1])
		for _, a := range attrs {
			edge.SetAttr(a.key, a.value)
		}
	}
	return nil
}

type dotAttr struct {
	key   string
	value AttrValue
}

// parseAttrLists consumes one or more consecutive bracketed attribute
// lists: `[k=v, ...] [k=v]*`. Commas and semicolons both separate
// entries, and a list may span multiple lines.
func (p *dotParser) parseAttrLists() ([]dotAttr, error) {
	var attrs []dotAttr
	for p.tok.kind == tokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.tok.kind != tokRBracket {
			if p.tok.kind != tokIdent && p.tok.kind != tokQuoted {
				return nil, p.errf("expected attribute name, found %s", describeToken(p.tok))
			}
			key := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expect(tokEquals); err != nil {
				return nil, err
			}
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, dotAttr{key: key, value: val})
			for p.tok.kind == tokComma || p.tok.kind == tokSemi {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// parseValue consumes an attribute value. Quoted values stay strings;
// bare values are typed: true/false become booleans, numeric text
// becomes a number, anything else stays a string.
func (p *dotParser) parseValue() (AttrValue, error) {
	tok := p.tok
	switch tok.kind {
	case tokQuoted:
		if err := p.advance(); err != nil {
			return AttrValue{}, err
		}
		return StringValue(tok.text), nil
	case tokIdent:
		if err := p.advance(); err != nil {
			return AttrValue{}, err
		}
		switch strings.ToLower(tok.text) {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		if n, err := strconv.ParseFloat(tok.text, 64); err == nil {
			return NumberValue(n), nil
		}
		return StringValue(tok.text), nil
	default:
		return AttrValue{}, p.errf("expected attribute value, found %s", describeToken(tok))
	}
}
