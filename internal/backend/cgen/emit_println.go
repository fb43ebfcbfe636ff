package cgen

import (
	"strconv"
	"strings"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

// printfFormat collects a printf format made of literal text and the
// inttypes.h conversion macros.
type printfFormat struct {
	parts []string
	text  strings.Builder
}

func (p *printfFormat) literal(s string) {
	p.text.WriteString(s)
}

func (p *printfFormat) macro(m string) {
	p.flush()
	p.parts = append(p.parts, m)
}

func (p *printfFormat) flush() {
	if p.text.Len() > 0 {
		p.parts = append(p.parts, quoteC(p.text.String()))
		p.text.Reset()
	}
}

func (p *printfFormat) String() string {
	p.flush()
	return strings.Join(p.parts, " ")
}

// println prints its operands separated by spaces and ends the line.
// Literals are written into the format itself.
func (fe *funcEmitter) println(n *ssa.Node) (cNode, error) {
	fe.b.addInclude("stdio.h", true)
	var format printfFormat
	var args []cNode
	for i, a := range n.Args {
		if i > 0 {
			format.literal(" ")
		}
		switch a.Kind {
		case ssa.ArgInt:
			format.literal(strconv.FormatInt(a.Int, 10))
			continue
		case ssa.ArgFloat:
			format.literal(strconv.FormatFloat(a.Float, 'f', 6, 64))
			continue
		case ssa.ArgString:
			format.literal(strings.ReplaceAll(a.Str, "%", "%%"))
			continue
		}
		x, err := fe.operand(a, nil)
		if err != nil {
			return nil, err
		}
		switch t := fe.valueType(a).(type) {
		case *types.FunctionType:
			format.literal("<func>")
		case *types.StructType:
			format.literal("<struct>")
		case *types.PointerType:
			format.literal("%p")
			args = append(args, &cCast{typ: "void*", x: x})
		case types.Scalar:
			if err := fe.printScalar(&format, &args, t, x); err != nil {
				return nil, err
			}
		default:
			return nil, ssa.Invariantf(PhaseEmit, "println of untyped operand %d", i)
		}
	}
	format.literal("\n")
	return call("printf", append([]cNode{&cConst{code: format.String()}}, args...)...), nil
}

func (fe *funcEmitter) printScalar(format *printfFormat, args *[]cNode, t types.Scalar, x cNode) error {
	inttypes := func(conv string) {
		fe.b.addInclude("inttypes.h", true)
		format.literal("%")
		format.macro(conv)
	}
	switch t {
	case types.I8, types.I16:
		inttypes("PRIu32")
		x = &cCast{typ: "uint32_t", x: x}
	case types.I32, types.Int:
		inttypes("PRIu32")
	case types.I64:
		inttypes("PRIu64")
	case types.S8, types.S16:
		inttypes("PRIi32")
		x = &cCast{typ: "int32_t", x: x}
	case types.S32, types.SInt:
		inttypes("PRIi32")
	case types.S64:
		inttypes("PRIi64")
	case types.Addr, types.Ptr:
		format.literal("%p")
		x = &cCast{typ: "void*", x: x}
	case types.F32:
		format.literal("%f")
		x = &cCast{typ: "double", x: x}
	case types.F64:
		format.literal("%f")
	default:
		return ssa.Invariantf(PhaseEmit, "println of %s", t)
	}
	*args = append(*args, x)
	return nil
}
