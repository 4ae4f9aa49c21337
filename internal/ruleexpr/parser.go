package ruleexpr

import "fmt"

// Expr is a compiled rule expression. Expressions are immutable and safe to
// evaluate concurrently against distinct environments.
type Expr interface {
	Eval(env Env) (Value, error)
}

// Parse compiles a rule expression into an evaluable AST. The grammar covers
// boolean connectives (or, and, not), comparisons, membership (in, not in),
// arithmetic, parentheses, string and number literals, and identifiers bound
// by the environment. There are no function calls and no attribute access.
func Parse(src string) (Expr, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		t := p.peek()
		return nil, fmt.Errorf("unexpected trailing input at offset %d", t.pos)
	}
	return expr, nil
}

// Evaluate parses src and evaluates it against env. The final result must be
// a boolean; any other type is an evaluation error.
func Evaluate(src string, env Env) (bool, error) {
	expr, err := Parse(src)
	if err != nil {
		return false, err
	}
	v, err := expr.Eval(env)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, fmt.Errorf("expression yields %s, want bool", v.Kind)
	}
	return v.Bool, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokenKind) bool {
	if p.peek().kind == kind {
		p.next()
		return true
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{op: tokOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept(tokAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{op: tokAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.accept(tokNot) {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe, tokIn:
		op := p.next().kind
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &compareExpr{op: op, left: left, right: right}, nil
	case tokNot:
		// "not" after an operand can only introduce "not in".
		p.next()
		if !p.accept(tokIn) {
			return nil, fmt.Errorf("expected in after not at offset %d", p.peek().pos)
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &notExpr{operand: &compareExpr{op: tokIn, left: left, right: right}}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op tokenKind
		switch p.peek().kind {
		case tokPlus, tokMinus:
			op = p.next().kind
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &arithExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op tokenKind
		switch p.peek().kind {
		case tokStar, tokSlash:
			op = p.next().kind
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &arithExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept(tokMinus) {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negExpr{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &literalExpr{val: NumberVal(t.num)}, nil
	case tokString:
		return &literalExpr{val: StringVal(t.text)}, nil
	case tokIdent:
		return &identExpr{name: t.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen) {
			return nil, fmt.Errorf("missing ) at offset %d", p.peek().pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected token at offset %d", t.pos)
	}
}
