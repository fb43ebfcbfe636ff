package ssa_test

import (
	"context"
	"testing"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

func TestStackifyFoldsOperandsIntoReturn(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("add", types.NewFunction([]types.Type{types.S32, types.S32}, types.S32, types.ConvFyr))
	a := b.DeclareParam(types.S32, "a")
	c := b.DeclareParam(types.S32, "b")
	b.DeclareResult(types.S32, "$return")
	sum := b.Tmp(types.S32)
	_, err := b.Assign(sum, ssa.KindAdd, types.S32, ssa.Var(a), ssa.Var(c))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(sum)))
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.Prepare(context.Background(), f, nil))

	want := []ssa.Kind{ssa.KindDefine, ssa.KindDeclParam, ssa.KindDeclParam, ssa.KindDeclResult, ssa.KindReturn, ssa.KindEnd}
	if got := kinds(f); !equalKinds(got, want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	ret := f.Node(f.Node(f.Node(f.Node(f.EntryNode().Next[0]).Next[0]).Next[0]).Next[0])
	if len(ret.Args) != 1 || ret.Args[0].Kind != ssa.ArgNode {
		t.Fatalf("return operand not folded: %s", f.NodeString(ret))
	}
	add := f.Node(ret.Args[0].Node)
	if add.Kind != ssa.KindAdd || add.Assign != nil || add.Args[0].Var != a || add.Args[1].Var != c {
		t.Fatalf("folded expression = %s", f.NodeString(add))
	}
	if sum.ReadCount != 0 || sum.WriteCount != 0 {
		t.Fatalf("temporary still counted: r=%d w=%d", sum.ReadCount, sum.WriteCount)
	}
}

func buildLoadAcross(t *testing.T, barrier func(b *ssa.Builder, p *ssa.Variable)) (*ssa.Func, *ssa.Node, *ssa.Variable) {
	t.Helper()
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.Addr}, types.S32, types.ConvFyr))
	p := b.DeclareParam(types.Addr, "p")
	b.DeclareResult(types.S32, "$return")
	x := b.Tmp(types.S32)
	_, err := b.Assign(x, ssa.KindLoad, types.S32, ssa.Var(p), ssa.Int(0))
	mustNil(t, err)
	barrier(b, p)
	y := b.Tmp(types.S32)
	_, err = b.Assign(y, ssa.KindAdd, types.S32, ssa.Var(x), ssa.Int(1))
	mustNil(t, err)
	add := b.Func().Node(b.Current())
	mustNil(t, b.Return(ssa.Var(y)))
	mustNil(t, b.End())
	return b.Func(), add, x
}

func TestStackifyDoesNotCrossStore(t *testing.T) {
	f, add, x := buildLoadAcross(t, func(b *ssa.Builder, p *ssa.Variable) {
		_, err := b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(0), ssa.Int(5))
		mustNil(t, err)
	})
	mustNil(t, ssa.Prepare(context.Background(), f, nil))
	if add.Args[0].Kind != ssa.ArgVar || add.Args[0].Var != x {
		t.Fatalf("load was moved past the store: %s", f.NodeString(add))
	}
}

func TestStackifyDoesNotCrossCall(t *testing.T) {
	f, add, x := buildLoadAcross(t, func(b *ssa.Builder, p *ssa.Variable) {
		_, err := b.Call(nil, types.NewFunction(nil, nil, types.ConvFyr), 0)
		mustNil(t, err)
	})
	mustNil(t, ssa.Prepare(context.Background(), f, nil))
	if add.Args[0].Kind != ssa.ArgVar || add.Args[0].Var != x {
		t.Fatalf("load was moved past the call: %s", f.NodeString(add))
	}
}

func TestStackifyFoldsAcrossPureNodes(t *testing.T) {
	f, add, _ := buildLoadAcross(t, func(b *ssa.Builder, p *ssa.Variable) {
		q := b.DeclareVar(types.Addr, "q", false)
		_, err := b.Assign(q, ssa.KindAdd, types.Addr, ssa.Var(p), ssa.Int(8))
		mustNil(t, err)
		_, err = b.Assign(nil, ssa.KindNotnull, nil, ssa.Var(q))
		mustNil(t, err)
	})
	mustNil(t, ssa.Prepare(context.Background(), f, nil))
	if add.Args[0].Kind != ssa.ArgNode || f.Node(add.Args[0].Node).Kind != ssa.KindLoad {
		t.Fatalf("load was not folded: %s", f.NodeString(add))
	}
}

func TestStackifyKeepsReassignedOperand(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.S32}, types.S32, types.ConvFyr))
	a := b.DeclareParam(types.S32, "a")
	b.DeclareResult(types.S32, "$return")
	v := b.DeclareVar(types.S32, "v", false)
	_, err := b.Assign(v, ssa.KindAdd, types.S32, ssa.Var(a), ssa.Int(1))
	mustNil(t, err)
	x := b.Tmp(types.S32)
	_, err = b.Assign(x, ssa.KindMul, types.S32, ssa.Var(v), ssa.Int(2))
	mustNil(t, err)
	_, err = b.Assign(v, ssa.KindSub, types.S32, ssa.Var(a), ssa.Int(1))
	mustNil(t, err)
	y := b.Tmp(types.S32)
	_, err = b.Assign(y, ssa.KindAdd, types.S32, ssa.Var(x), ssa.Var(v))
	mustNil(t, err)
	sum := b.Func().Node(b.Current())
	mustNil(t, b.Return(ssa.Var(y)))
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.Prepare(context.Background(), f, nil))
	if sum.Args[0].Kind != ssa.ArgVar || sum.Args[0].Var != x {
		t.Fatalf("mul reading v was moved past the reassignment of v: %s", f.NodeString(sum))
	}
}
