// Package expr compiles a boolean expression over named conditions into a
// columnar predicate evaluated once per day across all eligible stocks.
package expr

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Parse errors.
var (
	ErrSyntax           = errors.New("expression syntax error")
	ErrUnknownCondition = errors.New("expression references unknown condition id")
)

// node is one expression tree node.
type node struct {
	op    string // "and" | "or" | "not" | "id"
	id    string // condition id when op == "id"
	left  *node
	right *node
}

type token struct {
	kind string // "id" | "and" | "or" | "not" | "(" | ")"
	text string
	pos  int
}

// tokenize splits an expression into tokens. Keywords are case-insensitive;
// condition ids are any run of letters, digits and underscores.
func tokenize(s string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, token{kind: string(c), text: string(c), pos: i})
			i++
		case unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_':
			start := i
			for i < len(s) {
				r := rune(s[i])
				if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
					break
				}
				i++
			}
			word := s[start:i]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{kind: "and", text: word, pos: start})
			case "or":
				tokens = append(tokens, token{kind: "or", text: word, pos: start})
			case "not":
				tokens = append(tokens, token{kind: "not", text: word, pos: start})
			default:
				tokens = append(tokens, token{kind: "id", text: word, pos: start})
			}
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, c, i)
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

// parse builds the expression tree. Grammar, loosest binding first:
//
//	expr  := and ("or" and)*
//	and   := unary ("and" unary)*
//	unary := "not" unary | "(" expr ")" | IDENT
func parse(s string) (*node, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		t := p.tokens[p.pos]
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, t.text, t.pos)
	}
	return root, nil
}

func (p *parser) parseOr() (*node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek("or") {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &node{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek("and") {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &node{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (*node, error) {
	if p.pos >= len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	t := p.tokens[p.pos]
	switch t.kind {
	case "not":
		p.pos++
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{op: "not", left: child}, nil
	case "(":
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.peek(")") {
			return nil, fmt.Errorf("%w: missing closing parenthesis for group at position %d", ErrSyntax, t.pos)
		}
		p.pos++
		return inner, nil
	case "id":
		p.pos++
		return &node{op: "id", id: t.text}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, t.text, t.pos)
	}
}

func (p *parser) peek(kind string) bool {
	return p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind
}

// conditionIDs collects every condition id referenced by the tree.
func (n *node) conditionIDs(out map[string]struct{}) {
	if n == nil {
		return
	}
	if n.op == "id" {
		out[n.id] = struct{}{}
		return
	}
	n.left.conditionIDs(out)
	n.right.conditionIDs(out)
}
