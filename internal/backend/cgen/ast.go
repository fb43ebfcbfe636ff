package cgen

import (
	"strings"
)

// cNode is an element of generated C: an expression, a statement or a
// top level declaration. Expressions report their operator precedence, 1
// binding tightest; statements report 0.
type cNode interface {
	write(sb *strings.Builder, indent string)
	precedence() int
}

func render(n cNode) string {
	var sb strings.Builder
	n.write(&sb, "")
	return sb.String()
}

// writeOperand renders x, parenthesized when it binds looser than the
// operator it is an operand of.
func writeOperand(sb *strings.Builder, x cNode, parent int, strict bool) {
	p := x.precedence()
	if p > parent || (strict && p == parent) {
		sb.WriteByte('(')
		x.write(sb, "")
		sb.WriteByte(')')
		return
	}
	x.write(sb, "")
}

// declare renders a declarator, placing the name inside a function pointer type.
func declare(typ, name string) string {
	if strings.Contains(typ, "(*)") {
		return strings.Replace(typ, "(*)", "(*"+name+")", 1)
	}
	return typ + " " + name
}

type cConst struct{ code string }

func (c *cConst) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString(c.code)
}

func (c *cConst) precedence() int {
	if strings.HasPrefix(c.code, "-") {
		return 2
	}
	return 0
}

type cUnary struct {
	op string
	x  cNode
}

func (u *cUnary) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	if u.op == "sizeof" {
		sb.WriteString("sizeof(")
		u.x.write(sb, "")
		sb.WriteByte(')')
		return
	}
	sb.WriteString(u.op)
	inner := render(u.x)
	// "- -x" must not become "--x"
	if u.x.precedence() > 2 || strings.HasPrefix(inner, u.op) {
		sb.WriteByte('(')
		sb.WriteString(inner)
		sb.WriteByte(')')
		return
	}
	sb.WriteString(inner)
}

func (*cUnary) precedence() int { return 2 }

type cBinary struct {
	op   string
	l, r cNode
}

func (b *cBinary) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	p := b.precedence()
	writeOperand(sb, b.l, p, false)
	switch b.op {
	case ".":
		sb.WriteByte('.')
		b.r.write(sb, "")
	case "->":
		sb.WriteString("->")
		b.r.write(sb, "")
	case "[":
		sb.WriteByte('[')
		b.r.write(sb, "")
		sb.WriteByte(']')
	default:
		sb.WriteByte(' ')
		sb.WriteString(b.op)
		sb.WriteByte(' ')
		// left associative: an equal precedence right operand needs parens
		writeOperand(sb, b.r, p, p != 13)
	}
}

func (b *cBinary) precedence() int {
	switch b.op {
	case "[", ".", "->":
		return 1
	case "*", "/", "%":
		return 3
	case "+", "-":
		return 4
	case "<<", ">>":
		return 5
	case "<", ">", "<=", ">=":
		return 6
	case "==", "!=":
		return 7
	case "&":
		return 8
	case "^":
		return 9
	case "|":
		return 10
	case "&&":
		return 11
	case "||":
		return 12
	default:
		// assignments
		return 13
	}
}

type cCall struct {
	fn   cNode
	args []cNode
}

func call(name string, args ...cNode) *cCall {
	return &cCall{fn: &cConst{code: name}, args: args}
}

func (c *cCall) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	writeOperand(sb, c.fn, 1, false)
	sb.WriteByte('(')
	for i, a := range c.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		a.write(sb, "")
	}
	sb.WriteByte(')')
}

func (*cCall) precedence() int { return 1 }

type cCast struct {
	typ string
	x   cNode
}

func (c *cCast) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteByte('(')
	sb.WriteString(c.typ)
	sb.WriteByte(')')
	writeOperand(sb, c.x, 2, false)
}

func (*cCast) precedence() int { return 2 }

type cCompound struct{ values []cNode }

func (c *cCompound) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteByte('{')
	for i, v := range c.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		v.write(sb, "")
	}
	sb.WriteByte('}')
}

func (*cCompound) precedence() int { return 1 }

type cUnionLit struct {
	field string
	value cNode
}

func (u *cUnionLit) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString("{ .")
	sb.WriteString(u.field)
	sb.WriteString(" = ")
	u.value.write(sb, "")
	sb.WriteString(" }")
}

func (*cUnionLit) precedence() int { return 1 }

// cVar declares a variable, optionally initialized.
type cVar struct {
	typ  string
	name string
	init cNode
}

func (v *cVar) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString(declare(v.typ, v.name))
	if v.init != nil {
		sb.WriteString(" = ")
		v.init.write(sb, "")
	}
}

func (*cVar) precedence() int { return 0 }

type cReturn struct{ x cNode }

func (r *cReturn) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString("return")
	if r.x != nil {
		sb.WriteByte(' ')
		r.x.write(sb, "")
	}
}

func (*cReturn) precedence() int { return 0 }

type cIf struct {
	cond cNode
	body []cNode
	// els is nil when there is no else arm
	els []cNode
}

func (s *cIf) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString("if (")
	s.cond.write(sb, "")
	sb.WriteString(") {\n")
	writeStatements(sb, s.body, indent+"    ")
	sb.WriteString(indent)
	sb.WriteByte('}')
	if s.els != nil {
		sb.WriteString(" else {\n")
		writeStatements(sb, s.els, indent+"    ")
		sb.WriteString(indent)
		sb.WriteByte('}')
	}
}

func (*cIf) precedence() int { return 0 }

// cLabel is written as "name:;" so it may end a block.
type cLabel struct{ name string }

func (l *cLabel) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString(l.name)
	sb.WriteByte(':')
}

func (*cLabel) precedence() int { return 0 }

type cGoto struct{ label string }

func (g *cGoto) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString("goto ")
	sb.WriteString(g.label)
}

func (*cGoto) precedence() int { return 0 }

type cComment struct{ text string }

func (c *cComment) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString("/* ")
	sb.WriteString(strings.ReplaceAll(c.text, "*/", "* /"))
	sb.WriteString(" */")
}

func (*cComment) precedence() int { return 0 }

func writeStatements(sb *strings.Builder, stmts []cNode, indent string) {
	for _, s := range stmts {
		s.write(sb, indent)
		switch s.(type) {
		case *cIf, *cComment:
		default:
			sb.WriteByte(';')
		}
		sb.WriteByte('\n')
	}
}

type cParam struct {
	typ  string
	name string
}

// cFunction is a function definition. Static locals such as string
// constants go in front of the body.
type cFunction struct {
	name              string
	ret               string
	params            []cParam
	locals            []cNode
	body              []cNode
	possibleDuplicate bool
}

func (f *cFunction) signature() string {
	var sb strings.Builder
	sb.WriteString(f.ret)
	sb.WriteByte(' ')
	sb.WriteString(f.name)
	sb.WriteByte('(')
	if len(f.params) == 0 {
		sb.WriteString("void")
	}
	for i, p := range f.params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(declare(p.typ, p.name))
	}
	sb.WriteByte(')')
	return sb.String()
}

func (f *cFunction) declaration() string { return f.signature() + ";" }

func (f *cFunction) write(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString(f.signature())
	sb.WriteString(" {\n")
	writeStatements(sb, f.locals, indent+"    ")
	writeStatements(sb, f.body, indent+"    ")
	sb.WriteString(indent)
	sb.WriteString("}\n")
}

func (*cFunction) precedence() int { return 0 }
