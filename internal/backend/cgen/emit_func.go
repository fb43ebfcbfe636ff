package cgen

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"fyrc/internal/ssa"
	"fyrc/internal/trace"
	"fyrc/internal/types"
)

// Phase names of the per-function backend work, after the ssa phases.
const (
	PhaseStorage = "storage"
	PhaseEmit    = "emit"
)

type funcEmitter struct {
	b  *CBackend
	fn *Function
	f  *ssa.Func
	cf *cFunction

	storage map[*ssa.Variable]string
	params  map[*ssa.Variable]bool
	locals  []*ssa.Variable
	taken   map[string]bool

	// "$return" result: the C return type carries it directly
	valueResult bool
	// named results, returned together by a bare return
	results []*ssa.Variable

	targets   map[ssa.NodeID]bool
	labels    map[ssa.NodeID]string
	nextLabel int
	funcStrs  map[string]*cString
}

func (b *CBackend) generateFunction(ctx context.Context, fn *Function, dump io.Writer) error {
	ctx, span := trace.Start(ctx, trace.ScopeFunc, "func "+fn.cname)

	err := b.lowerFunction(ctx, fn, dump)
	if err != nil {
		span.End(err.Error())
		return fmt.Errorf("%s: %w", fn.name, err)
	}
	span.End("")
	return nil
}

func (b *CBackend) lowerFunction(ctx context.Context, fn *Function, dump io.Writer) error {
	if err := ssa.Prepare(ctx, fn.body, dump); err != nil {
		return err
	}
	fe := &funcEmitter{
		b:       b,
		fn:      fn,
		f:       fn.body,
		cf:      fn.cfunc,
		storage: make(map[*ssa.Variable]string),
		params:  make(map[*ssa.Variable]bool),
		taken:   make(map[string]bool),
		targets: make(map[ssa.NodeID]bool),
		labels:  make(map[ssa.NodeID]string),
	}
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID

	span := trace.Begin(tracer, trace.ScopePhase, PhaseStorage, parent)
	err := fe.analyzeStorage()
	span.WithExtra("locals", strconv.Itoa(len(fe.locals)))
	if err != nil {
		span.End(err.Error())
		return err
	}
	span.End("")

	span = trace.Begin(tracer, trace.ScopePhase, PhaseEmit, parent)
	err = fe.emitBody()
	if err != nil {
		span.End(err.Error())
		return err
	}
	span.WithExtra("statements", strconv.Itoa(len(fe.cf.body)))
	span.End("")
	return nil
}

// analyzeStorage names the C storage of every variable the body uses and
// fixes the signature: parameters become v_<name>, results r_return_<i>.
func (fe *funcEmitter) analyzeStorage() error {
	entry := fe.f.EntryNode()
	if entry == nil || entry.Kind != ssa.KindDefine {
		return ssa.Invariantf(PhaseStorage, "function does not start with define")
	}
	var resultFields []types.Field
	var walk func(n, stop *ssa.Node) error
	walk = func(n, stop *ssa.Node) error {
		for ; n != nil && n != stop; n = fe.next(n) {
			switch n.Kind {
			case ssa.KindDeclParam:
				name := "v_" + cIdent(n.Assign.Name)
				typ, err := fe.b.mapType(n.Assign.Type, false, false)
				if err != nil {
					return err
				}
				fe.cf.params = append(fe.cf.params, cParam{typ: typ, name: name})
				fe.storage[n.Assign] = name
				fe.params[n.Assign] = true
				fe.taken[name] = true
				continue
			case ssa.KindDeclResult:
				if n.Assign.Name == "$return" {
					typ, err := fe.b.mapType(n.Assign.Type, false, false)
					if err != nil {
						return err
					}
					fe.cf.ret = typ
					fe.valueResult = true
					fe.storage[n.Assign] = "r_return_0"
					continue
				}
				name := "r_return_" + strconv.Itoa(len(fe.results))
				resultFields = append(resultFields, types.Field{Name: name, Type: n.Assign.Type, Count: 1})
				fe.results = append(fe.results, n.Assign)
				fe.storage[n.Assign] = name
				fe.taken[name] = true
				fe.locals = append(fe.locals, n.Assign)
				continue
			case ssa.KindDeclVar:
				// locals get storage where they are used
				continue
			case ssa.KindBr, ssa.KindBrIf:
				fe.targets[n.BlockPartner] = true
			}
			if err := fe.assignNodeStorage(n); err != nil {
				return err
			}
			if n.Kind == ssa.KindIf && len(n.Next) > 1 {
				if err := walk(fe.f.Node(n.Next[1]), fe.f.Node(n.BlockPartner)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(fe.next(entry), fe.f.Node(entry.BlockPartner)); err != nil {
		return err
	}
	switch len(resultFields) {
	case 0:
	case 1:
		typ, err := fe.b.mapType(resultFields[0].Type, false, false)
		if err != nil {
			return err
		}
		fe.cf.ret = typ
	default:
		s := types.NewStruct("", false)
		for _, rf := range resultFields {
			s.AddField(rf.Name, rf.Type, 1)
		}
		typ, err := fe.b.mapType(s, false, false)
		if err != nil {
			return err
		}
		fe.cf.ret = typ
	}
	return nil
}

func (fe *funcEmitter) assignNodeStorage(n *ssa.Node) error {
	if n.Assign != nil {
		fe.assignStorage(n.Assign)
	}
	for _, a := range n.Args {
		switch a.Kind {
		case ssa.ArgVar:
			fe.assignStorage(a.Var)
		case ssa.ArgNode:
			inner := fe.f.Node(a.Node)
			if inner == nil {
				return ssa.Invariantf(PhaseStorage, "operand refers to missing node %d", a.Node)
			}
			if err := fe.assignNodeStorage(inner); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fe *funcEmitter) assignStorage(v *ssa.Variable) {
	if v == fe.f.Mem {
		return
	}
	if _, ok := fe.storage[v]; ok {
		return
	}
	if _, ok := fe.b.globalStorage[v]; ok {
		return
	}
	if v.IsConstant {
		// read sites use the literal
		return
	}
	var name string
	if v.IsTemporary() {
		name = "nr_" + cIdent(v.Name[1:])
	} else {
		name = fe.uniqueName("v", v.Name)
	}
	fe.storage[v] = name
	fe.taken[name] = true
	fe.locals = append(fe.locals, v)
}

// uniqueName returns prefix_base, or prefix<k>_base if that is taken.
func (fe *funcEmitter) uniqueName(prefix, base string) string {
	base = cIdent(base)
	name := prefix + "_" + base
	if !fe.taken[name] {
		return name
	}
	for k := len(fe.locals); ; k++ {
		name = prefix + strconv.Itoa(k) + "_" + base
		if !fe.taken[name] {
			return name
		}
	}
}

// cIdent keeps identifier characters and mangles the rest.
func cIdent(name string) string {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return Mangle(name)
		}
	}
	return name
}

func (fe *funcEmitter) next(n *ssa.Node) *ssa.Node {
	if len(n.Next) == 0 {
		return nil
	}
	return fe.f.Node(n.Next[0])
}

// emitBody declares the locals and emits the statements.
func (fe *funcEmitter) emitBody() error {
	for _, v := range fe.locals {
		if v.ReadCount == 0 && v.WriteCount == 0 && !fe.isResult(v) {
			continue
		}
		typ, err := fe.b.mapType(v.Type, false, v.NeedsRefCounting)
		if err != nil {
			return fmt.Errorf("local %s: %w", v.Name, err)
		}
		fe.cf.locals = append(fe.cf.locals, &cVar{typ: typ, name: fe.storage[v]})
	}
	entry := fe.f.EntryNode()
	body, err := fe.emitCode(fe.next(entry), fe.f.Node(entry.BlockPartner))
	if err != nil {
		return err
	}
	fe.cf.body = body
	return nil
}

func (fe *funcEmitter) isResult(v *ssa.Variable) bool {
	for _, r := range fe.results {
		if r == v {
			return true
		}
	}
	return false
}
