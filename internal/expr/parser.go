package expr

import "fmt"

const (
	// MaxSourceLen bounds the length of a single fragment.
	MaxSourceLen = 4000
	// MaxDepth bounds nesting so hostile input cannot blow the stack.
	MaxDepth = 64
)

type parser struct {
	toks  []token
	pos   int
	depth int
}

// ParseNode parses src into an AST.
func ParseNode(src string) (Node, error) {
	if len(src) > MaxSourceLen {
		return nil, &SyntaxError{Pos: MaxSourceLen, Reason: ReasonTooLong}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, &SyntaxError{Pos: 0, Reason: ReasonSyntax, Detail: "empty expression"}
	}
	p := &parser{toks: toks}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.text == "{" || tok.text == "}" {
			return nil, &SyntaxError{Pos: tok.pos, Reason: ReasonStatement, Detail: "block delimiter"}
		}
		return nil, p.unexpected(tok)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isPunct(text string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == text
}

func (p *parser) expect(text string) (token, error) {
	tok := p.advance()
	if tok.kind != tokPunct || tok.text != text {
		return tok, p.unexpectedWant(tok, text)
	}
	return tok, nil
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return &SyntaxError{Pos: tok.pos, Reason: ReasonSyntax, Detail: "unexpected end of expression"}
	}
	return &SyntaxError{Pos: tok.pos, Reason: ReasonSyntax, Detail: fmt.Sprintf("unexpected %q", tok.text)}
}

func (p *parser) unexpectedWant(tok token, want string) error {
	if tok.kind == tokEOF {
		return &SyntaxError{Pos: tok.pos, Reason: ReasonSyntax, Detail: fmt.Sprintf("expected %q before end", want)}
	}
	return &SyntaxError{Pos: tok.pos, Reason: ReasonSyntax, Detail: fmt.Sprintf("expected %q, found %q", want, tok.text)}
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > MaxDepth {
		return &SyntaxError{Pos: pos, Reason: ReasonTooDeep}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expression() (Node, error) {
	if err := p.enter(p.peek().pos); err != nil {
		return nil, err
	}
	defer p.leave()

	test, err := p.binary(precCoalesce)
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return test, nil
	}
	q := p.advance()
	then, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &Cond{At: q.pos, Test: test, Then: then, Else: els}, nil
}

func (p *parser) binary(minPrec int) (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokPunct {
			return left, nil
		}
		prec, ok := binaryPrec[tok.text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.binary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{At: tok.pos, Op: tok.text, X: left, Y: right}
	}
}

func (p *parser) unary() (Node, error) {
	tok := p.peek()
	if tok.kind == tokPunct && (tok.text == "!" || tok.text == "-" || tok.text == "+") {
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{At: tok.pos, Op: tok.text, X: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (Node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokPunct {
			return n, nil
		}
		switch tok.text {
		case ".":
			p.advance()
			name := p.advance()
			if name.kind != tokIdent {
				return nil, p.unexpectedWant(name, "property name")
			}
			n = &Member{At: name.pos, X: n, Name: name.text}
		case "[":
			p.advance()
			idx, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			n = &Index{At: tok.pos, X: n, Index: idx}
		case "(":
			p.advance()
			args, err := p.list(")")
			if err != nil {
				return nil, err
			}
			n = &Call{At: tok.pos, Fn: n, Args: args}
		default:
			return n, nil
		}
	}
}

func (p *parser) list(closer string) ([]Node, error) {
	var items []Node
	for !p.isPunct(closer) {
		item, err := p.expression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		if !p.isPunct(closer) {
			return nil, p.unexpectedWant(p.peek(), closer)
		}
	}
	p.advance()
	return items, nil
}

func (p *parser) primary() (Node, error) {
	if err := p.enter(p.peek().pos); err != nil {
		return nil, err
	}
	defer p.leave()

	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		return &NumberLit{At: tok.pos, Value: tok.num}, nil
	case tokString:
		return &StringLit{At: tok.pos, Value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &BoolLit{At: tok.pos, Value: true}, nil
		case "false":
			return &BoolLit{At: tok.pos, Value: false}, nil
		case "null":
			return &NullLit{At: tok.pos}, nil
		case "undefined":
			return &NullLit{At: tok.pos, Undefined: true}, nil
		}
		return &Ident{At: tok.pos, Name: tok.text}, nil
	case tokPunct:
		switch tok.text {
		case "(":
			n, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			return n, nil
		case "[":
			elems, err := p.list("]")
			if err != nil {
				return nil, err
			}
			return &Array{At: tok.pos, Elems: elems}, nil
		case "{":
			return p.object(tok)
		}
	}
	return nil, p.unexpected(tok)
}

func (p *parser) object(open token) (Node, error) {
	obj := &ObjectLit{At: open.pos}
	for !p.isPunct("}") {
		keyTok := p.advance()
		var key string
		switch keyTok.kind {
		case tokIdent, tokString:
			key = keyTok.text
		case tokNumber:
			key = formatNumber(keyTok.num)
		default:
			return nil, &SyntaxError{Pos: keyTok.pos, Reason: ReasonStatement, Detail: "block delimiter"}
		}
		if !p.isPunct(":") {
			// "{ a }" or "{ a; }" is a block or shorthand, not a value.
			return nil, &SyntaxError{Pos: keyTok.pos, Reason: ReasonStatement, Detail: "block delimiter"}
		}
		p.advance()
		val, err := p.expression()
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, Field{Key: key, Value: val})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		if !p.isPunct("}") {
			return nil, p.unexpectedWant(p.peek(), "}")
		}
	}
	p.advance()
	return obj, nil
}
