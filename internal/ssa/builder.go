package ssa

import (
	"strconv"

	"fyrc/internal/types"
)

// Builder appends nodes to one function body. It tracks the open
// block/loop/if scopes so branches resolve to a structured depth when they
// are built.
type Builder struct {
	fn      *Func
	current *Node
	blocks  []*Node
	ends    []*Node // partner of each open scope
	temps   int

	results     int
	namedReturn bool
}

// NewBuilder returns a builder for a fresh function body.
func NewBuilder() *Builder {
	return &Builder{fn: newFunc()}
}

// Func returns the function under construction.
func (b *Builder) Func() *Func { return b.fn }

// Mem returns the memory pseudo-variable.
func (b *Builder) Mem() *Variable { return b.fn.Mem }

// Current returns the node new nodes are appended to.
func (b *Builder) Current() NodeID {
	if b.current == nil {
		return NoNodeID
	}
	return b.current.ID
}

func (b *Builder) append(n *Node) {
	if b.current != nil {
		b.fn.Link(b.current, n)
	} else if b.fn.Entry == NoNodeID {
		b.fn.Entry = n.ID
	}
	b.current = n
}

// Finish checks that the body is complete: it was opened with Define and
// every scope, the define included, is closed.
func (b *Builder) Finish() error {
	if err := b.fn.Err(); err != nil {
		return err
	}
	if b.fn.Entry == NoNodeID {
		return Buildf("finish", "function has no define")
	}
	if n := len(b.blocks); n != 0 {
		return Buildf("finish", "function %s has %d unclosed scopes, innermost %s", b.fn.Name, n, b.blocks[n-1].Kind)
	}
	return nil
}

// Define opens the function. It must be the first call, and the body is
// closed by a matching End.
func (b *Builder) Define(name string, ft *types.FunctionType) NodeID {
	n := b.fn.NewNode(KindDefine, nil, ft)
	n.Name = name
	n.IsAsync = ft != nil && ft.IsAsync()
	b.fn.Name = name
	b.fn.Type = ft
	b.append(n)
	b.pair(n)
	return n.ID
}

// DeclareParam declares the next parameter.
func (b *Builder) DeclareParam(t types.Type, name string) *Variable {
	return b.declare(KindDeclParam, t, name, false)
}

// DeclareResult declares the next result. A result named "$return" is the
// plain return value; other names declare named results.
func (b *Builder) DeclareResult(t types.Type, name string) *Variable {
	b.results++
	if name == "$return" {
		b.namedReturn = false
	} else if b.results == 1 {
		b.namedReturn = true
	}
	return b.declare(KindDeclResult, t, name, false)
}

// DeclareVar declares a local.
func (b *Builder) DeclareVar(t types.Type, name string, needsRefCounting bool) *Variable {
	return b.declare(KindDeclVar, t, name, needsRefCounting)
}

func (b *Builder) declare(kind Kind, t types.Type, name string, rc bool) *Variable {
	v := &Variable{Name: name, Type: t, NeedsRefCounting: rc}
	n := b.fn.NewNode(kind, v, t)
	b.append(n)
	b.count(n)
	return v
}

// Tmp returns a fresh temporary named %N.
func (b *Builder) Tmp(t types.Type) *Variable {
	b.temps++
	return &Variable{Name: "%" + strconv.Itoa(b.temps), Type: t}
}

// Assign appends a computation. dst may be nil for effect-only kinds; if
// dst has no type yet it takes t.
func (b *Builder) Assign(dst *Variable, kind Kind, t types.Type, args ...Arg) (*Variable, error) {
	switch kind {
	case KindCall, KindCallIndirect, KindSpawn, KindSpawnIndirect:
		return nil, Buildf("assign", "use the call builders for %s", kind)
	case KindBr, KindBrIf, KindBlock, KindLoop, KindIf, KindEnd, KindDefine:
		return nil, Buildf("assign", "use the control flow builders for %s", kind)
	case KindReturn:
		if err := b.checkReturn(len(args)); err != nil {
			return nil, err
		}
	}
	if dst != nil && dst.Type == nil {
		dst.Type = t
	}
	n := b.fn.NewNode(kind, dst, t, args...)
	b.append(n)
	if kind == KindYield {
		b.markAsync()
	}
	b.count(n)
	return dst, nil
}

// Return appends a return of the given values.
func (b *Builder) Return(args ...Arg) error {
	_, err := b.Assign(nil, KindReturn, nil, args...)
	return err
}

func (b *Builder) checkReturn(nargs int) error {
	switch {
	case nargs > 1:
		return Unimplementedf("return", "multi-value return of %d values", nargs)
	case b.results == 0 && nargs > 0:
		return Buildf("return", "function %s has no result but returns a value", b.fn.Name)
	case b.results > 0 && nargs == 0 && !b.namedReturn:
		return Buildf("return", "function %s returns no value but declares a result", b.fn.Name)
	}
	return nil
}

// Call appends a direct call of function index fn.
func (b *Builder) Call(dst *Variable, ft *types.FunctionType, fn int, args ...Arg) (*Variable, error) {
	return b.call(KindCall, dst, ft, append([]Arg{Int(int64(fn))}, args...))
}

// CallIndirect appends a call through the function value callee.
func (b *Builder) CallIndirect(dst *Variable, ft *types.FunctionType, callee Arg, args ...Arg) (*Variable, error) {
	return b.call(KindCallIndirect, dst, ft, append([]Arg{callee}, args...))
}

// Spawn starts function index fn as a new coroutine.
func (b *Builder) Spawn(ft *types.FunctionType, fn int, args ...Arg) error {
	_, err := b.call(KindSpawn, nil, ft, append([]Arg{Int(int64(fn))}, args...))
	return err
}

// SpawnIndirect starts the function value callee as a new coroutine.
func (b *Builder) SpawnIndirect(dst *Variable, ft *types.FunctionType, callee Arg, args ...Arg) (*Variable, error) {
	return b.call(KindSpawnIndirect, dst, ft, append([]Arg{callee}, args...))
}

func (b *Builder) call(kind Kind, dst *Variable, ft *types.FunctionType, args []Arg) (*Variable, error) {
	if ft == nil {
		return nil, Buildf(kind.String(), "missing function type")
	}
	if dst != nil {
		if dst.Type == nil {
			dst.Type = ft.Result
		} else if !types.Compare(dst.Type, ft.Result) {
			return nil, Buildf(kind.String(), "variable %s of type %v receives a %v", dst.Name, dst.Type, ft.Result)
		}
	}
	n := b.fn.NewNode(kind, dst, ft, args...)
	b.append(n)
	if ft.IsAsync() && (kind == KindCall || kind == KindCallIndirect) {
		b.markAsync()
	}
	b.count(n)
	return dst, nil
}

// Block opens a block; a branch to it continues after its end.
func (b *Builder) Block() NodeID { return b.scope(KindBlock) }

// Loop opens a loop; a branch to it continues at its head.
func (b *Builder) Loop() NodeID { return b.scope(KindLoop) }

// If opens a conditional on cond.
func (b *Builder) If(cond Arg) NodeID {
	n := b.open(KindIf, cond)
	b.count(n)
	return n.ID
}

func (b *Builder) scope(kind Kind, args ...Arg) NodeID {
	return b.open(kind, args...).ID
}

func (b *Builder) open(kind Kind, args ...Arg) *Node {
	n := b.fn.NewNode(kind, nil, nil, args...)
	b.append(n)
	b.pair(n)
	return n
}

func (b *Builder) pair(n *Node) {
	e := b.fn.NewNode(KindEnd, nil, nil)
	e.BlockPartner = n.ID
	n.BlockPartner = e.ID
	b.blocks = append(b.blocks, n)
	b.ends = append(b.ends, e)
}

// Else closes the then arm of the innermost if and starts its else arm.
func (b *Builder) Else() error {
	if len(b.blocks) == 0 {
		return Buildf("else", "else without open block")
	}
	n := b.blocks[len(b.blocks)-1]
	if n.Kind != KindIf {
		return Buildf("else", "else without if")
	}
	if len(n.Next) > 1 {
		return Buildf("else", "if already has an else arm")
	}
	b.fn.Link(b.current, b.ends[len(b.ends)-1])
	b.current = n
	return nil
}

// End closes the innermost open scope.
func (b *Builder) End() error {
	if len(b.blocks) == 0 {
		return Buildf("end", "end without opening block")
	}
	end := b.ends[len(b.ends)-1]
	b.blocks = b.blocks[:len(b.blocks)-1]
	b.ends = b.ends[:len(b.ends)-1]
	b.fn.Link(b.current, end)
	b.current = end
	return nil
}

// Br branches to the open scope to.
func (b *Builder) Br(to NodeID) error {
	depth, err := b.depth("br", to)
	if err != nil {
		return err
	}
	n := b.fn.NewNode(KindBr, nil, nil, Int(depth))
	n.BlockPartner = to
	b.append(n)
	return nil
}

// BrIf branches to the open scope to when cond is non-zero.
func (b *Builder) BrIf(cond Arg, to NodeID) error {
	depth, err := b.depth("br_if", to)
	if err != nil {
		return err
	}
	n := b.fn.NewNode(KindBrIf, nil, nil, cond, Int(depth))
	n.BlockPartner = to
	b.append(n)
	b.count(n)
	return nil
}

// depth counts the scopes between the innermost one and to.
func (b *Builder) depth(op string, to NodeID) (int64, error) {
	var j int64
	for i := len(b.blocks) - 1; i >= 0; i-- {
		if b.blocks[i].ID == to {
			return j, nil
		}
		j++
	}
	return 0, Buildf(op, "branch target is not reachable")
}

func (b *Builder) markAsync() {
	for _, blk := range b.blocks {
		blk.IsAsync = true
	}
}

func (b *Builder) count(n *Node) {
	if n.Assign != nil && n.Kind != KindDeclVar {
		n.Assign.WriteCount++
	}
	for _, a := range n.Args {
		if a.Kind == ArgVar {
			a.Var.ReadCount++
		}
	}
	switch n.Kind {
	case KindAddrOf:
		if len(n.Args) > 0 && n.Args[0].Kind == ArgVar {
			n.Args[0].Var.Addressable = true
		}
	case KindDeclParam, KindDeclResult:
		// keeps assignments to parameters and results alive
		n.Assign.ReadCount = 1
	}
}
