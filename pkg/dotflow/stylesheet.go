package dotflow

import (
	"fmt"
	"strings"
)

// StyleDecl is one property declaration inside a stylesheet rule.
type StyleDecl struct {
	Property string
	Value    string
}

// StyleRule is one parsed stylesheet rule: a selector and its
// declarations in source order.
type StyleRule struct {
	Selector     string
	Declarations []StyleDecl
}

// validStyleProperties are the model-routing properties a stylesheet
// may set on nodes.
var validStyleProperties = map[string]bool{
	"llm_model":        true,
	"llm_provider":     true,
	"reasoning_effort": true,
}

// ParseStylesheet parses a model_stylesheet attribute value.
//
// The grammar is CSS-like: one or more rules of the form
// Selector '{' Declaration (';' Declaration)* ';'? '}'. Selectors are
// '*' for every node, '#id' for a node id, '.name' for a class, or a
// bare identifier matching a node shape. An empty input parses to no
// rules.
func ParseStylesheet(src string) ([]StyleRule, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	p := &styleParser{src: src}
	var rules []StyleRule
	p.skipSpace()
	for p.pos < len(p.src) {
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
		p.skipSpace()
	}
	return rules, nil
}

// ApplyStylesheet applies parsed rules to every matching node. A
// declaration only fills a property the node does not already carry;
// attributes written in the pipeline itself always win.
func ApplyStylesheet(g *Graph, rules []StyleRule) {
	for _, rule := range rules {
		for _, node := range g.Nodes() {
			if !selectorMatches(rule.Selector, node) {
				continue
			}
			for _, decl := range rule.Declarations {
				if _, ok := node.Attr(decl.Property); ok {
					continue
				}
				node.SetAttr(decl.Property, StringValue(decl.Value))
			}
		}
	}
}

func selectorMatches(selector string, node *Node) bool {
	switch {
	case selector == "*":
		return true
	case strings.HasPrefix(selector, "#"):
		return node.ID == selector[1:]
	case strings.HasPrefix(selector, "."):
		want := selector[1:]
		for _, cls := range strings.Split(node.Class(), ",") {
			if strings.TrimSpace(cls) == want {
				return true
			}
		}
		return false
	default:
		return node.Shape() == selector
	}
}

type styleParser struct {
	src string
	pos int
}

func (p *styleParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *styleParser) parseRule() (StyleRule, error) {
	var rule StyleRule

	selector, err := p.parseSelector()
	if err != nil {
		return rule, err
	}
	rule.Selector = selector

	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '{' {
		return rule, fmt.Errorf("expected '{' after selector %q at position %d", selector, p.pos)
	}
	p.pos++

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return rule, fmt.Errorf("unterminated rule block for selector %q", selector)
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return rule, nil
		}
		decl, err := p.parseDeclaration()
		if err != nil {
			return rule, err
		}
		rule.Declarations = append(rule.Declarations, decl)
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ';' {
			p.pos++
		}
	}
}

func (p *styleParser) parseSelector() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("expected selector at position %d", p.pos)
	}
	switch ch := p.src[p.pos]; {
	case ch == '*':
		p.pos++
		return "*", nil
	case ch == '#':
		p.pos++
		name := p.scanIdent()
		if name == "" {
			return "", fmt.Errorf("expected identifier after '#' at position %d", p.pos)
		}
		return "#" + name, nil
	case ch == '.':
		p.pos++
		name := p.scanIdent()
		if name == "" {
			return "", fmt.Errorf("expected class name after '.' at position %d", p.pos)
		}
		return "." + name, nil
	default:
		name := p.scanIdent()
		if name == "" {
			return "", fmt.Errorf("invalid selector character %q at position %d; expected '*', '#', '.', or a shape name", string(ch), p.pos)
		}
		return name, nil
	}
}

func (p *styleParser) scanIdent() string {
	start := p.pos
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '_' || ch == '-' {
			p.pos++
		} else {
			break
		}
	}
	return p.src[start:p.pos]
}

func (p *styleParser) parseDeclaration() (StyleDecl, error) {
	var decl StyleDecl

	start := p.pos
	prop := p.scanIdent()
	if prop == "" {
		return decl, fmt.Errorf("expected property name at position %d", p.pos)
	}
	if !validStyleProperties[prop] {
		return decl, fmt.Errorf("unknown stylesheet property %q at position %d; valid properties are llm_model, llm_provider, reasoning_effort", prop, start)
	}
	decl.Property = prop

	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ':' {
		return decl, fmt.Errorf("expected ':' after property %q at position %d", prop, p.pos)
	}
	p.pos++

	p.skipSpace()
	valStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ';' && p.src[p.pos] != '}' {
		p.pos++
	}
	decl.Value = strings.TrimSpace(p.src[valStart:p.pos])
	if decl.Value == "" {
		return decl, fmt.Errorf("empty value for property %q at position %d", prop, valStart)
	}
	return decl, nil
}
