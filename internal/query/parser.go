package query

import (
	"strings"

	"github.com/docsift/docsift/pkg/types"
)

// Parse turns a raw search expression into an AST.
//
// Grammar, operators case-insensitive:
//
//	expr   := orExpr
//	orExpr := andExpr { "or" andExpr }
//	andExpr:= unit { ["and"] unit }     -- adjacency is an implicit AND
//	unit   := "(" expr ")" | TERM
//
// "and" binds tighter than "or", so "a or b and c" parses as
// Or(a, And(b, c)). A trailing '*' on a term is a suffix wildcard; '*'
// elsewhere is preserved for the compiler to judge.
//
// Parse fails with *types.SyntaxError on an empty expression, unbalanced
// grouping, or an operator with a missing operand.
func Parse(raw string) (Node, error) {
	toks := tokenize(raw)
	if len(toks) == 0 {
		return nil, &types.SyntaxError{Input: raw, Msg: "empty expression"}
	}
	p := &parser{input: raw, toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, &types.SyntaxError{Input: raw, Near: p.peek(), Msg: "unexpected token"}
	}
	return node, nil
}

// tokenize splits raw text into terms, parentheses, and operators.
// Parentheses need no surrounding whitespace.
func tokenize(raw string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

type parser struct {
	input string
	toks  []string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func isOperator(tok string) (string, bool) {
	switch strings.ToLower(tok) {
	case "and":
		return "and", true
	case "or":
		return "or", true
	}
	return "", false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for !p.done() {
		op, ok := isOperator(p.peek())
		if !ok || op != "or" {
			break
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Or{Children: children}, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnit()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for !p.done() {
		tok := p.peek()
		if tok == ")" {
			break
		}
		if op, ok := isOperator(tok); ok {
			if op == "or" {
				break
			}
			p.next() // explicit "and"
		}
		right, err := p.parseUnit()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p *parser) parseUnit() (Node, error) {
	if p.done() {
		return nil, &types.SyntaxError{Input: p.input, Msg: "operator is missing an operand"}
	}
	tok := p.next()
	switch tok {
	case "(":
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek() != ")" {
			return nil, &types.SyntaxError{Input: p.input, Near: "(", Msg: "unbalanced grouping"}
		}
		p.next()
		return node, nil
	case ")":
		return nil, &types.SyntaxError{Input: p.input, Near: ")", Msg: "unbalanced grouping"}
	}
	if op, ok := isOperator(tok); ok {
		return nil, &types.SyntaxError{Input: p.input, Near: tok, Msg: "operator " + op + " is missing an operand"}
	}
	if strings.Trim(tok, "*") == "" {
		return nil, &types.SyntaxError{Input: p.input, Near: tok, Msg: "empty term"}
	}
	return classifyTerm(tok), nil
}
