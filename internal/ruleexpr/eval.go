package ruleexpr

import (
	"fmt"
	"strings"
)

type literalExpr struct {
	val Value
}

func (e *literalExpr) Eval(_ Env) (Value, error) { return e.val, nil }

type identExpr struct {
	name string
}

func (e *identExpr) Eval(env Env) (Value, error) {
	v, ok := env[e.name]
	if !ok {
		return Value{}, fmt.Errorf("unknown identifier %q", e.name)
	}
	return v, nil
}

type logicalExpr struct {
	op    tokenKind // tokAnd or tokOr
	left  Expr
	right Expr
}

func (e *logicalExpr) Eval(env Env) (Value, error) {
	l, err := evalBool(e.left, env)
	if err != nil {
		return Value{}, err
	}
	// short-circuit
	if e.op == tokAnd && !l {
		return BoolVal(false), nil
	}
	if e.op == tokOr && l {
		return BoolVal(true), nil
	}
	r, err := evalBool(e.right, env)
	if err != nil {
		return Value{}, err
	}
	return BoolVal(r), nil
}

type notExpr struct {
	operand Expr
}

func (e *notExpr) Eval(env Env) (Value, error) {
	v, err := evalBool(e.operand, env)
	if err != nil {
		return Value{}, err
	}
	return BoolVal(!v), nil
}

type negExpr struct {
	operand Expr
}

func (e *negExpr) Eval(env Env) (Value, error) {
	v, err := e.operand.Eval(env)
	if err != nil {
		return Value{}, err
	}
	if v.Kind != KindNumber {
		return Value{}, fmt.Errorf("cannot negate %s", v.Kind)
	}
	return NumberVal(-v.Num), nil
}

type compareExpr struct {
	op    tokenKind
	left  Expr
	right Expr
}

func (e *compareExpr) Eval(env Env) (Value, error) {
	l, err := e.left.Eval(env)
	if err != nil {
		return Value{}, err
	}
	r, err := e.right.Eval(env)
	if err != nil {
		return Value{}, err
	}
	if e.op == tokIn {
		return evalIn(l, r)
	}
	return evalCompare(e.op, l, r)
}

// evalIn implements membership: substring containment when the right side is
// a string, set membership when it is a set.
func evalIn(l, r Value) (Value, error) {
	if l.Kind != KindString {
		return Value{}, fmt.Errorf("left of in must be string, got %s", l.Kind)
	}
	switch r.Kind {
	case KindString:
		return BoolVal(strings.Contains(r.Str, l.Str)), nil
	case KindSet:
		_, ok := r.Set[l.Str]
		return BoolVal(ok), nil
	default:
		return Value{}, fmt.Errorf("right of in must be string or set, got %s", r.Kind)
	}
}

func evalCompare(op tokenKind, l, r Value) (Value, error) {
	if l.Kind != r.Kind {
		return Value{}, fmt.Errorf("cannot compare %s with %s", l.Kind, r.Kind)
	}
	switch l.Kind {
	case KindNumber:
		return BoolVal(compareOrdered(op, l.Num, r.Num)), nil
	case KindString:
		return BoolVal(compareOrdered(op, l.Str, r.Str)), nil
	case KindBool:
		switch op {
		case tokEq:
			return BoolVal(l.Bool == r.Bool), nil
		case tokNe:
			return BoolVal(l.Bool != r.Bool), nil
		default:
			return Value{}, fmt.Errorf("bools support only == and !=")
		}
	default:
		return Value{}, fmt.Errorf("cannot compare %s values", l.Kind)
	}
}

func compareOrdered[T string | float64](op tokenKind, l, r T) bool {
	switch op {
	case tokEq:
		return l == r
	case tokNe:
		return l != r
	case tokLt:
		return l < r
	case tokLe:
		return l <= r
	case tokGt:
		return l > r
	case tokGe:
		return l >= r
	default:
		return false
	}
}

type arithExpr struct {
	op    tokenKind
	left  Expr
	right Expr
}

func (e *arithExpr) Eval(env Env) (Value, error) {
	l, err := e.left.Eval(env)
	if err != nil {
		return Value{}, err
	}
	r, err := e.right.Eval(env)
	if err != nil {
		return Value{}, err
	}
	if e.op == tokPlus && l.Kind == KindString && r.Kind == KindString {
		return StringVal(l.Str + r.Str), nil
	}
	if l.Kind != KindNumber || r.Kind != KindNumber {
		return Value{}, fmt.Errorf("arithmetic needs numbers, got %s and %s", l.Kind, r.Kind)
	}
	switch e.op {
	case tokPlus:
		return NumberVal(l.Num + r.Num), nil
	case tokMinus:
		return NumberVal(l.Num - r.Num), nil
	case tokStar:
		return NumberVal(l.Num * r.Num), nil
	case tokSlash:
		if r.Num == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return NumberVal(l.Num / r.Num), nil
	default:
		return Value{}, fmt.Errorf("unsupported arithmetic operator")
	}
}

func evalBool(e Expr, env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, fmt.Errorf("operand yields %s, want bool", v.Kind)
	}
	return v.Bool, nil
}
