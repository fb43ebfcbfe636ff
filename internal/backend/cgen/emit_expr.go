package cgen

import (
	"math"
	"strconv"
	"strings"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

var binaryOps = map[ssa.Kind]string{
	ssa.KindAdd: "+", ssa.KindSub: "-", ssa.KindMul: "*",
	ssa.KindDiv: "/", ssa.KindDivS: "/", ssa.KindDivU: "/",
	ssa.KindRemS: "%", ssa.KindRemU: "%",
	ssa.KindAnd: "&", ssa.KindOr: "|", ssa.KindXor: "^",
	ssa.KindShl: "<<", ssa.KindShrS: ">>", ssa.KindShrU: ">>",
	ssa.KindEq: "==", ssa.KindNe: "!=",
	ssa.KindLt: "<", ssa.KindLtS: "<", ssa.KindLtU: "<",
	ssa.KindGt: ">", ssa.KindGtS: ">", ssa.KindGtU: ">",
	ssa.KindLe: "<=", ssa.KindLeS: "<=", ssa.KindLeU: "<=",
	ssa.KindGe: ">=", ssa.KindGeS: ">=", ssa.KindGeU: ">=",
}

// signedOps force signed operands, unsignedOps unsigned ones.
var (
	signedOps = map[ssa.Kind]bool{
		ssa.KindDivS: true, ssa.KindRemS: true, ssa.KindShrS: true,
		ssa.KindLtS: true, ssa.KindGtS: true, ssa.KindLeS: true, ssa.KindGeS: true,
	}
	unsignedOps = map[ssa.Kind]bool{
		ssa.KindDivU: true, ssa.KindRemU: true, ssa.KindShrU: true,
		ssa.KindLtU: true, ssa.KindGtU: true, ssa.KindLeU: true, ssa.KindGeU: true,
	}
)

// float and double variants of the math library calls
var mathFuncs = map[ssa.Kind][2]string{
	ssa.KindAbs:      {"fabsf", "fabs"},
	ssa.KindSqrt:     {"sqrtf", "sqrt"},
	ssa.KindCeil:     {"ceilf", "ceil"},
	ssa.KindFloor:    {"floorf", "floor"},
	ssa.KindTrunc:    {"truncf", "trunc"},
	ssa.KindNearest:  {"roundf", "round"},
	ssa.KindCopysign: {"copysignf", "copysign"},
	ssa.KindMin:      {"fminf", "fmin"},
	ssa.KindMax:      {"fmaxf", "fmax"},
}

var limits = map[types.Scalar][2]string{
	types.I8:   {"0", "UINT8_MAX"},
	types.S8:   {"INT8_MIN", "INT8_MAX"},
	types.I16:  {"0", "UINT16_MAX"},
	types.S16:  {"INT16_MIN", "INT16_MAX"},
	types.I32:  {"0", "UINT32_MAX"},
	types.S32:  {"INT32_MIN", "INT32_MAX"},
	types.I64:  {"0", "UINT64_MAX"},
	types.S64:  {"INT64_MIN", "INT64_MAX"},
	types.Int:  {"0", "UINT32_MAX"},
	types.SInt: {"INT32_MIN", "INT32_MAX"},
	types.F32:  {"-FLT_MAX", "FLT_MAX"},
	types.F64:  {"-DBL_MAX", "DBL_MAX"},
}

// emitAssigned renders n as an expression statement, assigning its value
// when the assigned variable is still in use.
func (fe *funcEmitter) emitAssigned(n *ssa.Node) (cNode, error) {
	x, err := fe.expr(n)
	if err != nil {
		return nil, err
	}
	if v := n.Assign; v != nil && (v.ReadCount != 0 || v.WriteCount != 0) {
		lhs, err := fe.variable(v)
		if err != nil {
			return nil, err
		}
		return &cBinary{op: "=", l: lhs, r: x}, nil
	}
	return x, nil
}

// operand renders one node argument.
func (fe *funcEmitter) operand(a ssa.Arg, t types.Type) (cNode, error) {
	switch a.Kind {
	case ssa.ArgInt:
		return intLiteral(a.Int), nil
	case ssa.ArgFloat:
		return fe.floatLiteral(a.Float, t), nil
	case ssa.ArgString:
		return fe.stringExpr(a.Str), nil
	case ssa.ArgVar:
		return fe.variable(a.Var)
	case ssa.ArgNode:
		n := fe.f.Node(a.Node)
		if n == nil {
			return nil, ssa.Invariantf(PhaseEmit, "operand refers to missing node %d", a.Node)
		}
		return fe.expr(n)
	}
	return nil, ssa.Invariantf(PhaseEmit, "operand of unknown kind %d", a.Kind)
}

func (fe *funcEmitter) variable(v *ssa.Variable) (cNode, error) {
	if name, ok := fe.b.globalStorage[v]; ok {
		return &cConst{code: name}, nil
	}
	if name, ok := fe.storage[v]; ok {
		if v.NeedsRefCounting {
			return &cBinary{op: ".", l: &cConst{code: name}, r: &cConst{code: "value"}}, nil
		}
		return &cConst{code: name}, nil
	}
	if v.IsConstant {
		return fe.operand(v.Constant, v.Type)
	}
	return nil, ssa.Invariantf(PhaseEmit, "variable %s has no storage", v.Name)
}

func intLiteral(v int64) cNode {
	if v == math.MinInt64 {
		return &cConst{code: "INT64_MIN"}
	}
	return &cConst{code: strconv.FormatInt(v, 10)}
}

func (fe *funcEmitter) floatLiteral(v float64, t types.Type) cNode {
	switch {
	case math.IsNaN(v):
		fe.b.addInclude("math.h", true)
		return &cConst{code: "NAN"}
	case math.IsInf(v, 1):
		fe.b.addInclude("math.h", true)
		return &cConst{code: "INFINITY"}
	case math.IsInf(v, -1):
		fe.b.addInclude("math.h", true)
		return &cUnary{op: "-", x: &cConst{code: "INFINITY"}}
	}
	code := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(code, ".eE") {
		code += ".0"
	}
	if t == types.F32 {
		code += "f"
	}
	return &cConst{code: code}
}

// valueType is the type of the value an operand produces, or nil for
// untyped literals.
func (fe *funcEmitter) valueType(a ssa.Arg) types.Type {
	switch a.Kind {
	case ssa.ArgVar:
		return a.Var.Type
	case ssa.ArgNode:
		n := fe.f.Node(a.Node)
		if n == nil {
			return nil
		}
		if ft, ok := n.Type.(*types.FunctionType); ok && n.Kind.IsCall() {
			return ft.Result
		}
		return n.Type
	}
	return nil
}

func (fe *funcEmitter) args(n *ssa.Node, from int) ([]cNode, error) {
	out := make([]cNode, 0, len(n.Args)-from)
	for _, a := range n.Args[from:] {
		x, err := fe.operand(a, n.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (fe *funcEmitter) arg(n *ssa.Node, i int) (cNode, error) {
	if i >= len(n.Args) {
		return nil, ssa.Invariantf(PhaseEmit, "%s needs operand %d", n.Kind, i)
	}
	return fe.operand(n.Args[i], n.Type)
}

func (fe *funcEmitter) intArg(n *ssa.Node, i int) (int64, error) {
	if i >= len(n.Args) || n.Args[i].Kind != ssa.ArgInt {
		return 0, ssa.Invariantf(PhaseEmit, "operand %d of %s must be an integer literal", i, n.Kind)
	}
	return n.Args[i].Int, nil
}

// expr renders the value computed by n.
func (fe *funcEmitter) expr(n *ssa.Node) (cNode, error) {
	if op, ok := binaryOps[n.Kind]; ok {
		return fe.binary(n, op)
	}
	if _, ok := mathFuncs[n.Kind]; ok && (n.Kind != ssa.KindMin && n.Kind != ssa.KindMax || len(n.Args) == 0 || types.IsFloat(n.Type)) {
		return fe.math(n)
	}
	switch n.Kind {
	case ssa.KindConst:
		if len(n.Args) == 1 && n.Args[0].Kind == ssa.ArgInt {
			typ, err := fe.b.mapType(n.Type, false, false)
			if err != nil {
				return nil, err
			}
			return &cCast{typ: typ, x: intLiteral(n.Args[0].Int)}, nil
		}
		return fe.arg(n, 0)

	case ssa.KindCopy:
		return fe.arg(n, 0)

	case ssa.KindStruct:
		typ, err := fe.b.mapType(n.Type, false, false)
		if err != nil {
			return nil, err
		}
		values, err := fe.args(n, 0)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: typ, x: &cCompound{values: values}}, nil

	case ssa.KindUnion:
		s, ok := n.Type.(*types.StructType)
		if !ok || !s.IsUnion {
			return nil, ssa.Invariantf(PhaseEmit, "union of non-union type %v", n.Type)
		}
		idx, err := fe.intArg(n, 0)
		if err != nil {
			return nil, err
		}
		fields := s.AllFields()
		if idx < 0 || idx >= int64(len(fields)) {
			return nil, ssa.Invariantf(PhaseEmit, "union field %d out of range", idx)
		}
		typ, err := fe.b.mapType(s, false, false)
		if err != nil {
			return nil, err
		}
		value, err := fe.operand(n.Args[1], fields[idx].Type)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: typ, x: &cUnionLit{field: fields[idx].Name, value: value}}, nil

	case ssa.KindLoad:
		return fe.deref(n, n.Type)

	case ssa.KindAddrOf:
		if len(n.Args) == 0 || n.Args[0].Kind != ssa.ArgVar {
			return nil, ssa.Invariantf(PhaseEmit, "addr_of needs a variable")
		}
		v, err := fe.variable(n.Args[0].Var)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: "addr_t", x: &cUnary{op: "&", x: v}}, nil

	case ssa.KindAddrOfFunc:
		idx, err := fe.intArg(n, 0)
		if err != nil {
			return nil, err
		}
		name, err := fe.b.funcName(idx)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: "addr_t", x: &cConst{code: name}}, nil

	case ssa.KindSymbol:
		idx, err := fe.intArg(n, 0)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= int64(len(fe.b.symbols)) {
			return nil, ssa.Invariantf(PhaseEmit, "symbol %d out of range", idx)
		}
		return &cConst{code: symbolName(fe.b.symbols[idx])}, nil

	case ssa.KindTableIface:
		idx, err := fe.intArg(n, 0)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= int64(len(fe.b.ifaces)) {
			return nil, ssa.Invariantf(PhaseEmit, "interface table %d out of range", idx)
		}
		return &cCast{typ: "addr_t", x: &cConst{code: fe.b.ifaces[idx].name}}, nil

	case ssa.KindMember:
		return fe.member(n)

	case ssa.KindCall:
		return fe.call(n)

	case ssa.KindCallIndirect:
		return fe.callIndirect(n)

	case ssa.KindAlloc:
		return fe.runtimeCall(n, "fyr_alloc", 1)
	case ssa.KindAllocArr:
		return fe.runtimeCall(n, "fyr_alloc_arr", 2)
	case ssa.KindIncref:
		return fe.runtimeCall(n, "fyr_incref", 1)
	case ssa.KindIncrefArr:
		return fe.runtimeCall(n, "fyr_incref_arr", 1)
	case ssa.KindLock:
		return fe.runtimeCall(n, "fyr_lock", 1)
	case ssa.KindLockArr:
		return fe.runtimeCall(n, "fyr_lock_arr", 1)
	case ssa.KindCmpRef:
		return fe.runtimeCall(n, "fyr_cmp_ref", 2)
	case ssa.KindNotnullRef:
		return fe.runtimeCall(n, "fyr_notnull_ref", 1)
	case ssa.KindLenArr:
		return fe.runtimeCall(n, "fyr_len_arr", 1)
	case ssa.KindArrToStr:
		return fe.runtimeCall(n, "fyr_arr_to_str", 3)
	case ssa.KindMemcmp:
		fe.b.addInclude("string.h", true)
		return fe.runtimeCall(n, "memcmp", 3)

	case ssa.KindFree:
		return fe.destructing(n, "fyr_free")
	case ssa.KindFreeArr:
		return fe.destructing(n, "fyr_free_arr")
	case ssa.KindDecref:
		return fe.destructing(n, "fyr_decref")
	case ssa.KindDecrefArr:
		return fe.destructing(n, "fyr_decref_arr")
	case ssa.KindUnlock:
		return fe.destructing(n, "fyr_unlock")
	case ssa.KindUnlockArr:
		return fe.destructing(n, "fyr_unlock_arr")

	case ssa.KindLenStr:
		if len(n.Args) == 1 && n.Args[0].Kind == ssa.ArgString {
			s := newCString("", n.Args[0].Str)
			return &cConst{code: strconv.Itoa(len(s.bytes) - 1)}, nil
		}
		return fe.runtimeCall(n, "fyr_len_str", 1)

	case ssa.KindEqz:
		x, err := fe.arg(n, 0)
		if err != nil {
			return nil, err
		}
		return &cBinary{op: "==", l: x, r: &cConst{code: "0"}}, nil

	case ssa.KindNeg:
		x, err := fe.arg(n, 0)
		if err != nil {
			return nil, err
		}
		return &cUnary{op: "-", x: x}, nil

	case ssa.KindMin, ssa.KindMax:
		// integer operands; literals and floats are handled above
		args, err := fe.args(n, 0)
		if err != nil {
			return nil, err
		}
		typ, err := fe.b.mapType(n.Type, false, false)
		if err != nil {
			return nil, err
		}
		name := "fyr_min"
		if n.Kind == ssa.KindMax {
			name = "fyr_max"
		}
		return &cCast{typ: typ, x: call(name, args...)}, nil

	case ssa.KindClz, ssa.KindCtz, ssa.KindPopcnt:
		return fe.bitCount(n)

	case ssa.KindRotl, ssa.KindRotr:
		return nil, ssa.Unimplementedf(PhaseEmit, "%s", n.Kind)

	case ssa.KindWrap, ssa.KindExtend, ssa.KindPromote, ssa.KindDemote,
		ssa.KindTrunc32, ssa.KindTrunc64,
		ssa.KindConvert32U, ssa.KindConvert32S, ssa.KindConvert64U, ssa.KindConvert64S:
		x, err := fe.arg(n, 0)
		if err != nil {
			return nil, err
		}
		typ, err := fe.b.mapType(n.Type, false, false)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: typ, x: x}, nil

	case ssa.KindCoroutine:
		fe.b.addInclude("fyr_spawn.h", false)
		return &cCast{typ: "addr_t", x: call("fyr_coroutine")}, nil

	case ssa.KindResume:
		fe.b.addInclude("fyr_spawn.h", false)
		x, err := fe.arg(n, 0)
		if err != nil {
			return nil, err
		}
		return call("fyr_resume", &cCast{typ: "struct fyr_coro_t*", x: x}), nil
	}
	return nil, ssa.Invariantf(PhaseEmit, "%s is not an expression", n.Kind)
}

func (fe *funcEmitter) binary(n *ssa.Node, op string) (cNode, error) {
	if len(n.Args) != 2 {
		return nil, ssa.Invariantf(PhaseEmit, "%s needs 2 operands, has %d", n.Kind, len(n.Args))
	}
	var sides [2]cNode
	for i, a := range n.Args {
		t := fe.valueType(a)
		if t == nil {
			t = n.Type
		}
		x, err := fe.operand(a, t)
		if err != nil {
			return nil, err
		}
		if x, err = fe.signCast(n.Kind, a, x); err != nil {
			return nil, err
		}
		sides[i] = x
	}
	return &cBinary{op: op, l: sides[0], r: sides[1]}, nil
}

// signCast reinterprets a typed operand when the operation fixes the
// signedness. Literals are left alone.
func (fe *funcEmitter) signCast(k ssa.Kind, a ssa.Arg, x cNode) (cNode, error) {
	t := fe.valueType(a)
	if t == nil {
		return x, nil
	}
	switch {
	case signedOps[k] && !isSigned(t):
		if _, ok := t.(*types.PointerType); ok {
			return &cCast{typ: "saddr_t", x: x}, nil
		}
		typ, err := fe.b.signedType(t)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: typ, x: x}, nil
	case unsignedOps[k] && isSigned(t):
		typ, err := fe.b.unsignedType(t)
		if err != nil {
			return nil, err
		}
		return &cCast{typ: typ, x: x}, nil
	}
	return x, nil
}

func (fe *funcEmitter) math(n *ssa.Node) (cNode, error) {
	s, ok := n.Type.(types.Scalar)
	if !ok {
		return nil, ssa.Invariantf(PhaseEmit, "%s of non-scalar type %v", n.Kind, n.Type)
	}
	if len(n.Args) == 0 {
		// min and max without operands are the limits of the type
		l, ok := limits[s]
		if !ok {
			return nil, ssa.Invariantf(PhaseEmit, "%s has no limit for %s", n.Kind, s)
		}
		if s.IsFloat() {
			fe.b.addInclude("float.h", true)
		}
		if n.Kind == ssa.KindMin {
			return &cConst{code: l[0]}, nil
		}
		return &cConst{code: l[1]}, nil
	}
	if !s.IsFloat() {
		if n.Kind == ssa.KindAbs {
			return fe.exprIntAbs(n)
		}
		return nil, ssa.Invariantf(PhaseEmit, "%s needs a float operand, has %s", n.Kind, s)
	}
	fe.b.addInclude("math.h", true)
	names := mathFuncs[n.Kind]
	name := names[1]
	if s == types.F32 {
		name = names[0]
	}
	args, err := fe.args(n, 0)
	if err != nil {
		return nil, err
	}
	return call(name, args...), nil
}

func (fe *funcEmitter) exprIntAbs(n *ssa.Node) (cNode, error) {
	x, err := fe.arg(n, 0)
	if err != nil {
		return nil, err
	}
	typ, err := fe.b.mapType(n.Type, false, false)
	if err != nil {
		return nil, err
	}
	return &cCast{typ: typ, x: call("llabs", x)}, nil
}

func (fe *funcEmitter) bitCount(n *ssa.Node) (cNode, error) {
	x, err := fe.arg(n, 0)
	if err != nil {
		return nil, err
	}
	name := map[ssa.Kind]string{
		ssa.KindClz:    "__builtin_clz",
		ssa.KindCtz:    "__builtin_ctz",
		ssa.KindPopcnt: "__builtin_popcount",
	}[n.Kind]
	switch fe.valueType(n.Args[0]) {
	case types.I64, types.S64, types.Addr, types.Ptr:
		name += "ll"
	}
	return call(name, x), nil
}

// deref renders *(T*)(p + offset) for loads and stores.
func (fe *funcEmitter) deref(n *ssa.Node, t types.Type) (cNode, error) {
	if _, ok := t.(*types.FunctionType); ok {
		return nil, ssa.Invariantf(PhaseEmit, "%s of a function type", n.Kind)
	}
	p, err := fe.arg(n, 0)
	if err != nil {
		return nil, err
	}
	off, err := fe.intArg(n, 1)
	if err != nil {
		return nil, err
	}
	if off != 0 {
		p = &cBinary{op: "+", l: p, r: intLiteral(off)}
	}
	typ, err := fe.b.mapType(t, false, false)
	if err != nil {
		return nil, err
	}
	return &cUnary{op: "*", x: &cCast{typ: typ + "*", x: p}}, nil
}

// memberRef renders s.field for a member or set_member node.
func (fe *funcEmitter) member(n *ssa.Node) (cNode, error) {
	if len(n.Args) < 2 {
		return nil, ssa.Invariantf(PhaseEmit, "%s needs a struct and a field index", n.Kind)
	}
	st, ok := fe.valueType(n.Args[0]).(*types.StructType)
	if !ok {
		return nil, ssa.Invariantf(PhaseEmit, "%s of a non-struct value", n.Kind)
	}
	idx, err := fe.intArg(n, 1)
	if err != nil {
		return nil, err
	}
	// indexes count the fields of extended structs first
	fields := st.AllFields()
	if idx < 0 || idx >= int64(len(fields)) {
		return nil, ssa.Invariantf(PhaseEmit, "field %d of %s out of range", idx, st)
	}
	s, err := fe.operand(n.Args[0], st)
	if err != nil {
		return nil, err
	}
	return &cBinary{op: ".", l: s, r: &cConst{code: fields[idx].Name}}, nil
}

func (fe *funcEmitter) runtimeCall(n *ssa.Node, name string, arity int) (cNode, error) {
	if len(n.Args) < arity {
		return nil, ssa.Invariantf(PhaseEmit, "%s needs %d operands, has %d", n.Kind, arity, len(n.Args))
	}
	args := make([]cNode, 0, arity)
	for i := 0; i < arity; i++ {
		x, err := fe.operand(n.Args[i], fe.valueType(n.Args[i]))
		if err != nil {
			return nil, err
		}
		args = append(args, x)
	}
	return call(name, args...), nil
}

// destructing calls a runtime function taking a pointer and a destructor:
// -1 for none, a function index, or a destructor value.
func (fe *funcEmitter) destructing(n *ssa.Node, name string) (cNode, error) {
	p, err := fe.arg(n, 0)
	if err != nil {
		return nil, err
	}
	var dtr cNode = &cConst{code: "0"}
	if len(n.Args) > 1 {
		switch a := n.Args[1]; {
		case a.Kind == ssa.ArgInt && a.Int == -1:
		case a.Kind == ssa.ArgInt:
			fn, err := fe.b.funcName(a.Int)
			if err != nil {
				return nil, err
			}
			if fe.b.isImport(a.Int) {
				return nil, ssa.Invariantf(PhaseEmit, "destructor %s is imported", fn)
			}
			dtr = &cConst{code: fn}
		default:
			x, err := fe.operand(a, nil)
			if err != nil {
				return nil, err
			}
			dtr = &cCast{typ: "fyr_dtr_t", x: x}
		}
	}
	return call(name, p, dtr), nil
}

// callArgs renders call arguments. Native callees see C pointer types.
func (fe *funcEmitter) callArgs(ft *types.FunctionType, args []ssa.Arg) ([]cNode, error) {
	if len(args) != len(ft.Params) {
		return nil, ssa.Invariantf(PhaseEmit, "call passes %d arguments to %v", len(args), ft)
	}
	out := make([]cNode, 0, len(args))
	for i, a := range args {
		x, err := fe.operand(a, ft.Params[i])
		if err != nil {
			return nil, err
		}
		if ft.Conv == types.ConvNative {
			ctype, err := fe.b.mapType(ft.Params[i], true, false)
			if err != nil {
				return nil, err
			}
			fyrtype, err := fe.b.mapType(ft.Params[i], false, false)
			if err != nil {
				return nil, err
			}
			if ctype != fyrtype {
				x = &cCast{typ: ctype, x: x}
			}
		}
		out = append(out, x)
	}
	return out, nil
}

func (fe *funcEmitter) call(n *ssa.Node) (cNode, error) {
	ft, ok := n.Type.(*types.FunctionType)
	if !ok {
		return nil, ssa.Invariantf(PhaseEmit, "%s without a function type", n.Kind)
	}
	idx, err := fe.intArg(n, 0)
	if err != nil {
		return nil, err
	}
	name, err := fe.b.funcName(idx)
	if err != nil {
		return nil, err
	}
	args, err := fe.callArgs(ft, n.Args[1:])
	if err != nil {
		return nil, err
	}
	var c cNode = call(name, args...)
	if _, ok := ft.Result.(*types.PointerType); ok && ft.Conv == types.ConvNative {
		c = &cCast{typ: "addr_t", x: c}
	}
	return c, nil
}

func (fe *funcEmitter) callIndirect(n *ssa.Node) (cNode, error) {
	ft, ok := n.Type.(*types.FunctionType)
	if !ok {
		return nil, ssa.Invariantf(PhaseEmit, "%s without a function type", n.Kind)
	}
	callee, err := fe.arg(n, 0)
	if err != nil {
		return nil, err
	}
	typ, err := fe.b.mapType(ft, false, false)
	if err != nil {
		return nil, err
	}
	args, err := fe.callArgs(ft, n.Args[1:])
	if err != nil {
		return nil, err
	}
	return &cCall{fn: &cCast{typ: typ, x: callee}, args: args}, nil
}
