package ruleexpr

import "fmt"

// Kind discriminates the value types the expression language knows about.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a runtime value produced during expression evaluation.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Set  map[string]struct{}
}

func StringVal(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberVal(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolVal(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// SetVal builds a set value from its members.
func SetVal(members ...string) Value {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return Value{Kind: KindSet, Set: set}
}

// Env is the fixed binding set an expression is evaluated against. No
// identifier outside the env is resolvable.
type Env map[string]Value
