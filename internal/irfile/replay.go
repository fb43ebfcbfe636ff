package irfile

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"fyrc/internal/backend"
	"fyrc/internal/ssa"
	"fyrc/internal/trace"
	"fyrc/internal/types"
)

// ErrMalformed reports a reference or op the replay cannot resolve.
var ErrMalformed = errors.New("malformed IR")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Replay declares everything in f on be and defines every function body.
// Struct layouts are finalized for tg. Identifiers are NFC-normalized so
// that canonically equal names mangle equally.
func Replay(ctx context.Context, f *File, be backend.Backend, tg types.Target) error {
	_, span := trace.Start(ctx, trace.ScopePackage, "replay "+f.Package.DisplayName())
	r := &replayer{file: f, be: be}
	err := r.run(tg)
	if err != nil {
		span.End(err.Error())
		return err
	}
	span.WithExtra("funcs", fmt.Sprint(len(f.Funcs))).End("")
	return nil
}

type replayer struct {
	file    *File
	be      backend.Backend
	structs []*types.StructType
	globals []*ssa.Variable
	funcs   []backend.Function
}

func (r *replayer) run(tg types.Target) error {
	if err := r.declareStructs(tg); err != nil {
		return err
	}
	if err := r.declareGlobals(); err != nil {
		return err
	}
	if err := r.declareFuncs(); err != nil {
		return err
	}
	for _, s := range r.file.Symbols {
		r.be.AddSymbol(norm.NFC.String(s))
	}
	for _, iface := range r.file.Interfaces {
		table := make([]backend.Function, len(iface.Funcs))
		for i, ref := range iface.Funcs {
			if ref < 0 {
				continue
			}
			fn, err := r.fn(ref)
			if err != nil {
				return fmt.Errorf("interface %s: %w", iface.Name, err)
			}
			table[i] = fn
		}
		if _, err := r.be.AddInterfaceDescriptor(norm.NFC.String(iface.Name), table); err != nil {
			return err
		}
	}
	for i := range r.file.Funcs {
		fd := &r.file.Funcs[i]
		if fd.From != nil {
			continue
		}
		body, err := r.build(fd)
		if err != nil {
			return fmt.Errorf("func %s: %w", fd.Name, err)
		}
		if err := r.be.DefineFunction(body, r.funcs[i], fd.Exported, fd.PossibleDuplicate); err != nil {
			return fmt.Errorf("func %s: %w", fd.Name, err)
		}
	}
	return nil
}

// declareStructs creates every struct before filling fields, so pointers
// may refer to any struct.
func (r *replayer) declareStructs(tg types.Target) error {
	r.structs = make([]*types.StructType, len(r.file.Structs))
	for i, sd := range r.file.Structs {
		s := types.NewStruct(norm.NFC.String(sd.Name), sd.Union)
		s.PkgPath = sd.PkgPath
		r.structs[i] = s
	}
	for i, sd := range r.file.Structs {
		if sd.Extends != 0 {
			if sd.Extends < 0 || sd.Extends > len(r.structs) {
				return malformed("struct %s extends unknown struct %d", sd.Name, sd.Extends)
			}
			r.structs[i].Extends = r.structs[sd.Extends-1]
		}
		for _, fd := range sd.Fields {
			t, err := r.typ(&fd.Type)
			if err != nil {
				return fmt.Errorf("struct %s field %s: %w", sd.Name, fd.Name, err)
			}
			r.structs[i].AddField(norm.NFC.String(fd.Name), t, fd.Count)
		}
	}
	for _, s := range r.structs {
		if err := s.Finalize(tg); err != nil {
			return err
		}
	}
	return nil
}

func (r *replayer) declareGlobals() error {
	r.globals = make([]*ssa.Variable, len(r.file.Globals))
	for i, g := range r.file.Globals {
		t, err := r.typ(&g.Type)
		if err != nil {
			return fmt.Errorf("global %s: %w", g.Name, err)
		}
		name := norm.NFC.String(g.Name)
		if g.From == nil {
			r.globals[i] = r.be.DeclareGlobalVar(name, t)
			continue
		}
		v, err := r.be.ImportGlobalVar(name, t, g.From.backend())
		if err != nil {
			return fmt.Errorf("global %s: %w", g.Name, err)
		}
		r.globals[i] = v
	}
	return nil
}

func (r *replayer) declareFuncs() error {
	r.funcs = make([]backend.Function, len(r.file.Funcs))
	for i, fd := range r.file.Funcs {
		name := norm.NFC.String(fd.Name)
		switch {
		case fd.From != nil:
			ft, err := r.signature(&fd.Type)
			if err != nil {
				return fmt.Errorf("import %s: %w", fd.Name, err)
			}
			fn, err := r.be.ImportFunction(name, fd.From.backend(), ft)
			if err != nil {
				return err
			}
			r.funcs[i] = fn
		case fd.Init:
			r.funcs[i] = r.be.DeclareInitFunction(name)
		default:
			r.funcs[i] = r.be.DeclareFunction(name)
		}
	}
	return nil
}

func (o *Origin) backend() backend.Origin {
	if o.Pkg == nil {
		return backend.Origin{Native: o.Native}
	}
	return backend.Origin{Pkg: o.Pkg.Backend()}
}

func (r *replayer) fn(ref int) (backend.Function, error) {
	if ref < 0 || ref >= len(r.funcs) {
		return nil, malformed("function reference %d out of range", ref)
	}
	return r.funcs[ref], nil
}

func (r *replayer) typ(t *TypeRef) (types.Type, error) {
	switch {
	case t == nil:
		return nil, nil
	case t.Scalar != "":
		s, ok := types.ParseScalar(t.Scalar)
		if !ok {
			return nil, malformed("unknown scalar %q", t.Scalar)
		}
		return s, nil
	case t.Elem != nil:
		elem, err := r.typ(t.Elem)
		if err != nil {
			return nil, err
		}
		return types.NewPointer(elem, t.Const), nil
	case t.Struct != 0:
		if t.Struct < 1 || t.Struct > len(r.structs) {
			return nil, malformed("struct reference %d out of range", t.Struct)
		}
		return r.structs[t.Struct-1], nil
	case t.Func != nil:
		return r.signature(t.Func)
	}
	return nil, malformed("empty type")
}

func (r *replayer) signature(sig *Signature) (*types.FunctionType, error) {
	conv := types.ConvFyr
	if sig.Conv != "" {
		c, ok := types.ParseConvention(sig.Conv)
		if !ok {
			return nil, malformed("unknown calling convention %q", sig.Conv)
		}
		conv = c
	}
	params := make([]types.Type, len(sig.Params))
	for i := range sig.Params {
		t, err := r.typ(&sig.Params[i])
		if err != nil {
			return nil, err
		}
		params[i] = t
	}
	result, err := r.typ(sig.Result)
	if err != nil {
		return nil, err
	}
	return types.NewFunction(params, result, conv), nil
}

// bodyBuilder replays one op stream.
type bodyBuilder struct {
	r      *replayer
	b      *ssa.Builder
	vars   []*ssa.Variable
	scopes map[int]ssa.NodeID
}

func (r *replayer) build(fd *Func) (*ssa.Func, error) {
	if len(fd.Body) == 0 || fd.Body[0].Op != OpDefine {
		return nil, malformed("body does not start with %s", OpDefine)
	}
	bb := &bodyBuilder{r: r, b: ssa.NewBuilder(), scopes: make(map[int]ssa.NodeID)}
	for i := range fd.Body {
		if err := bb.op(i, &fd.Body[i]); err != nil {
			return nil, fmt.Errorf("op %d (%s): %w", i, fd.Body[i].Op, err)
		}
	}
	if err := bb.b.Finish(); err != nil {
		return nil, err
	}
	return bb.b.Func(), nil
}

func (bb *bodyBuilder) op(pos int, op *Op) error {
	b := bb.b
	switch op.Op {
	case OpDefine:
		ft, err := bb.funcType(op)
		if err != nil {
			return err
		}
		bb.scopes[pos] = b.Define(norm.NFC.String(op.Name), ft)
		return nil

	case OpParam, OpResult, OpVar, OpTmp:
		t, err := bb.r.typ(op.Type)
		if err != nil {
			return err
		}
		var v *ssa.Variable
		switch op.Op {
		case OpParam:
			v = b.DeclareParam(t, norm.NFC.String(op.Name))
		case OpResult:
			v = b.DeclareResult(t, norm.NFC.String(op.Name))
		case OpVar:
			v = b.DeclareVar(t, norm.NFC.String(op.Name), op.RC)
		default:
			v = b.Tmp(t)
		}
		bb.vars = append(bb.vars, v)
		return nil

	case OpAssign:
		kind, ok := ssa.ParseKind(op.Kind)
		if !ok {
			return malformed("unknown kind %q", op.Kind)
		}
		dst, t, args, err := bb.operands(op)
		if err != nil {
			return err
		}
		_, err = b.Assign(dst, kind, t, args...)
		return err

	case OpCall, OpSpawn:
		ft, err := bb.funcType(op)
		if err != nil {
			return err
		}
		callee, err := bb.r.fn(op.Func)
		if err != nil {
			return err
		}
		dst, args, err := bb.dstArgs(op)
		if err != nil {
			return err
		}
		if op.Op == OpSpawn {
			return b.Spawn(ft, callee.Index(), args...)
		}
		_, err = b.Call(dst, ft, callee.Index(), args...)
		return err

	case OpCallIndirect, OpSpawnIndir:
		ft, err := bb.funcType(op)
		if err != nil {
			return err
		}
		dst, args, err := bb.dstArgs(op)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return malformed("%s without callee", op.Op)
		}
		if op.Op == OpSpawnIndir {
			_, err = b.SpawnIndirect(dst, ft, args[0], args[1:]...)
		} else {
			_, err = b.CallIndirect(dst, ft, args[0], args[1:]...)
		}
		return err

	case OpBlock:
		bb.scopes[pos] = b.Block()
		return nil
	case OpLoop:
		bb.scopes[pos] = b.Loop()
		return nil
	case OpIf:
		cond, err := bb.single(op)
		if err != nil {
			return err
		}
		bb.scopes[pos] = b.If(cond)
		return nil
	case OpElse:
		return b.Else()
	case OpEnd:
		return b.End()

	case OpBr, OpBrIf:
		to, ok := bb.scopes[op.Target]
		if !ok {
			return malformed("branch target %d does not open a scope", op.Target)
		}
		if op.Op == OpBr {
			return b.Br(to)
		}
		cond, err := bb.single(op)
		if err != nil {
			return err
		}
		return b.BrIf(cond, to)

	case OpReturn:
		_, args, err := bb.dstArgs(op)
		if err != nil {
			return err
		}
		return b.Return(args...)
	}
	return malformed("unknown op %q", op.Op)
}

func (bb *bodyBuilder) funcType(op *Op) (*types.FunctionType, error) {
	if op.Type == nil || op.Type.Func == nil {
		return nil, malformed("%s needs a function type", op.Op)
	}
	return bb.r.signature(op.Type.Func)
}

func (bb *bodyBuilder) operands(op *Op) (*ssa.Variable, types.Type, []ssa.Arg, error) {
	t, err := bb.r.typ(op.Type)
	if err != nil {
		return nil, nil, nil, err
	}
	dst, args, err := bb.dstArgs(op)
	return dst, t, args, err
}

func (bb *bodyBuilder) dstArgs(op *Op) (*ssa.Variable, []ssa.Arg, error) {
	var dst *ssa.Variable
	if op.Dst != 0 {
		v, err := bb.variable(op.Dst)
		if err != nil {
			return nil, nil, err
		}
		dst = v
	}
	args := make([]ssa.Arg, len(op.Args))
	for i, a := range op.Args {
		arg, err := bb.operand(a)
		if err != nil {
			return nil, nil, err
		}
		args[i] = arg
	}
	return dst, args, nil
}

func (bb *bodyBuilder) single(op *Op) (ssa.Arg, error) {
	if len(op.Args) != 1 {
		return ssa.Arg{}, malformed("%s takes one operand, got %d", op.Op, len(op.Args))
	}
	return bb.operand(op.Args[0])
}

func (bb *bodyBuilder) operand(a Operand) (ssa.Arg, error) {
	switch a.K {
	case OperandInt:
		return ssa.Int(a.I), nil
	case OperandFloat:
		return ssa.Float(a.F), nil
	case OperandString:
		return ssa.Str(a.S), nil
	case OperandVar:
		v, err := bb.variable(a.V)
		if err != nil {
			return ssa.Arg{}, err
		}
		return ssa.Var(v), nil
	case OperandFunc:
		fn, err := bb.r.fn(int(a.I))
		if err != nil {
			return ssa.Arg{}, err
		}
		return ssa.Int(int64(fn.Index())), nil
	}
	return ssa.Arg{}, malformed("unknown operand kind %d", a.K)
}

func (bb *bodyBuilder) variable(ref int) (*ssa.Variable, error) {
	switch {
	case ref == VarMem:
		return bb.b.Mem(), nil
	case ref > 0 && ref <= len(bb.vars):
		return bb.vars[ref-1], nil
	case ref < 0 && -ref <= len(bb.r.globals):
		return bb.r.globals[-ref-1], nil
	}
	return nil, malformed("variable reference %d out of range", ref)
}
