package cgen

import (
	"strconv"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// cString is a string literal laid out like a runtime array: size, lock
// count and reference count words, then the bytes and a terminating zero.
type cString struct {
	name  string
	bytes []byte
}

func newCString(name, s string) *cString {
	// ill-formed UTF-8 becomes U+FFFD so the data is always valid text
	clean, _, err := transform.String(runes.ReplaceIllFormed(), s)
	if err != nil {
		clean = s
	}
	return &cString{name: name, bytes: append([]byte(clean), 0)}
}

// expr is the address of the first byte.
func (s *cString) expr() cNode {
	member := &cBinary{op: ".", l: &cConst{code: s.name}, r: &cConst{code: "data"}}
	return &cUnary{op: "&", x: &cBinary{op: "[", l: member, r: &cConst{code: "0"}}}
}

func (s *cString) definition(static bool) string {
	var sb strings.Builder
	if static {
		sb.WriteString("static ")
	}
	size := strconv.Itoa(len(s.bytes) - 1)
	sb.WriteString("struct {\n    int_t size;\n    int_t lockcount;\n    int_t refcount;\n")
	sb.WriteString("    uint8_t data[" + strconv.Itoa(len(s.bytes)) + "];\n")
	sb.WriteString("} " + s.name + " = {" + size + ", 1, 1, {")
	for i, c := range s.bytes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(c)))
	}
	sb.WriteString("}}")
	return sb.String()
}

// cStringDef lets a function-local string sit among the locals.
type cStringDef struct{ s *cString }

func (d *cStringDef) write(sb *strings.Builder, indent string) {
	def := d.s.definition(true)
	sb.WriteString(indent)
	sb.WriteString(strings.ReplaceAll(def, "\n", "\n"+indent))
}

func (*cStringDef) precedence() int { return 0 }

// addString returns the module level string for s.
func (b *CBackend) addString(s string) *cString {
	if cs, ok := b.strs[s]; ok {
		return cs
	}
	cs := newCString("str_"+strconv.Itoa(b.strCount), s)
	b.strCount++
	b.strs[s] = cs
	b.strOrder = append(b.strOrder, cs)
	return cs
}

// stringExpr references a string literal. Functions that may be compiled
// into several units keep their strings to themselves.
func (fe *funcEmitter) stringExpr(s string) cNode {
	if !fe.cf.possibleDuplicate {
		return fe.b.addString(s).expr()
	}
	if cs, ok := fe.funcStrs[s]; ok {
		return cs.expr()
	}
	if fe.funcStrs == nil {
		fe.funcStrs = make(map[string]*cString)
	}
	cs := newCString("str_"+strconv.Itoa(fe.b.strCount), s)
	fe.b.strCount++
	fe.funcStrs[s] = cs
	fe.cf.locals = append(fe.cf.locals, &cStringDef{s: cs})
	return cs.expr()
}

// quoteC writes s as a C string literal. Bytes outside printable ASCII use
// three digit octal escapes so a following digit cannot extend them.
func quoteC(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '?':
			// no trigraphs
			sb.WriteString(`\?`)
		case c < 0x20 || c >= 0x7f:
			sb.WriteByte('\\')
			sb.WriteByte('0' + c>>6)
			sb.WriteByte('0' + (c>>3)&7)
			sb.WriteByte('0' + c&7)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
