package ssa

import (
	"strconv"
)

// ArgKind tells which field of an Arg is set.
type ArgKind uint8

const (
	// ArgInt is an integer literal.
	ArgInt ArgKind = iota + 1
	// ArgFloat is a floating point literal.
	ArgFloat
	// ArgString is a string literal.
	ArgString
	// ArgVar reads a variable.
	ArgVar
	// ArgNode is a nested expression produced by the stackifier.
	ArgNode
)

// Arg is one node operand.
type Arg struct {
	Kind  ArgKind
	Int   int64
	Float float64
	Str   string
	Var   *Variable
	Node  NodeID
}

// Int returns an integer literal operand.
func Int(v int64) Arg { return Arg{Kind: ArgInt, Int: v} }

// Float returns a floating point literal operand.
func Float(v float64) Arg { return Arg{Kind: ArgFloat, Float: v} }

// Str returns a string literal operand.
func Str(s string) Arg { return Arg{Kind: ArgString, Str: s} }

// Var returns an operand reading v.
func Var(v *Variable) Arg { return Arg{Kind: ArgVar, Var: v} }

// Nested returns an operand evaluating node id in place.
func Nested(id NodeID) Arg { return Arg{Kind: ArgNode, Node: id} }

// IsNumber reports whether a is a numeric literal.
func (a Arg) IsNumber() bool { return a.Kind == ArgInt || a.Kind == ArgFloat }

// IsLiteral reports whether a is a numeric or string literal.
func (a Arg) IsLiteral() bool { return a.IsNumber() || a.Kind == ArgString }

// IsZero reports whether a is the numeric literal zero.
func (a Arg) IsZero() bool {
	return (a.Kind == ArgInt && a.Int == 0) || (a.Kind == ArgFloat && a.Float == 0)
}

// literalString renders literals; variables and nodes are rendered by the printer.
func (a Arg) literalString() string {
	switch a.Kind {
	case ArgInt:
		return strconv.FormatInt(a.Int, 10)
	case ArgFloat:
		return strconv.FormatFloat(a.Float, 'g', -1, 64)
	case ArgString:
		return strconv.Quote(a.Str)
	case ArgVar:
		if a.Var == nil {
			return "<nil>"
		}
		return a.Var.String()
	}
	return "<?>"
}
