package ssa_test

import (
	"testing"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

func kinds(f *ssa.Func) []ssa.Kind {
	var out []ssa.Kind
	for n := f.EntryNode(); n != nil; {
		out = append(out, n.Kind)
		if len(n.Next) == 0 {
			break
		}
		n = f.Node(n.Next[0])
	}
	return out
}

func equalKinds(a, b []ssa.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestConstantFolding(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction(nil, types.S32, types.ConvFyr))
	b.DeclareResult(types.S32, "$return")
	x := b.Tmp(types.S32)
	_, err := b.Assign(x, ssa.KindConst, types.S32, ssa.Int(7))
	mustNil(t, err)
	y := b.Tmp(types.S32)
	_, err = b.Assign(y, ssa.KindAdd, types.S32, ssa.Var(x), ssa.Var(x))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(y)))
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.OptimizeConstants(f))

	if !x.IsConstant || x.Constant.Int != 7 || x.ReadCount != 0 || x.WriteCount != 0 {
		t.Fatalf("folded variable state: %+v", x)
	}
	var add *ssa.Node
	f.Reachable(func(n *ssa.Node) {
		if n.Kind == ssa.KindConst {
			t.Errorf("const node survived: %s", f.NodeString(n))
		}
		if n.Kind == ssa.KindAdd {
			add = n
		}
	})
	if add == nil {
		t.Fatalf("add node missing")
	}
	for i, a := range add.Args {
		if a.Kind != ssa.ArgInt || a.Int != 7 {
			t.Errorf("operand %d = %+v, want literal 7", i, a)
		}
	}
}

func TestConstantFoldingSkipsAddressable(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction(nil, nil, types.ConvFyr))
	v := b.DeclareVar(types.S32, "v", false)
	_, err := b.Assign(v, ssa.KindConst, types.S32, ssa.Int(1))
	mustNil(t, err)
	p := b.Tmp(types.Addr)
	_, err = b.Assign(p, ssa.KindAddrOf, types.Addr, ssa.Var(v))
	mustNil(t, err)
	_, err = b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(0), ssa.Int(2))
	mustNil(t, err)
	mustNil(t, b.End())

	mustNil(t, ssa.OptimizeConstants(b.Func()))
	if v.IsConstant {
		t.Fatalf("addressable variable folded")
	}
}

func TestDeadCodeLeavesNoUnreadAssignments(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.S32}, types.S32, types.ConvFyr))
	a := b.DeclareParam(types.S32, "a")
	b.DeclareResult(types.S32, "$return")
	b.DeclareVar(types.S64, "unused", false)

	unread := b.Tmp(types.S32)
	_, err := b.Assign(unread, ssa.KindAdd, types.S32, ssa.Var(a), ssa.Int(1))
	mustNil(t, err)
	cascade := b.Tmp(types.S32)
	_, err = b.Assign(cascade, ssa.KindMul, types.S32, ssa.Var(a), ssa.Int(3))
	mustNil(t, err)
	_, err = b.Assign(b.Tmp(types.S32), ssa.KindSub, types.S32, ssa.Var(cascade), ssa.Int(1))
	mustNil(t, err)

	src := b.Tmp(types.S32)
	_, err = b.Assign(src, ssa.KindMul, types.S32, ssa.Var(a), ssa.Int(2))
	mustNil(t, err)
	dst := b.Tmp(types.S32)
	_, err = b.Assign(dst, ssa.KindCopy, types.S32, ssa.Var(src))
	mustNil(t, err)

	callee := types.NewFunction(nil, types.S32, types.ConvFyr)
	ignored := b.Tmp(types.S32)
	_, err = b.Call(ignored, callee, 0)
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(dst)))
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.OptimizeConstants(f))
	mustNil(t, ssa.RemoveDeadCode(f))

	var calls, muls int
	f.Reachable(func(n *ssa.Node) {
		if n.Assign != nil && n.Assign.ReadCount == 0 && !n.Kind.IsCall() {
			t.Errorf("unread assignment survived: %s", f.NodeString(n))
		}
		switch n.Kind {
		case ssa.KindCall:
			calls++
			if n.Assign != nil {
				t.Errorf("call kept its unread result")
			}
		case ssa.KindMul:
			muls++
			if n.Assign != dst {
				t.Errorf("copy was not folded into its source: %s", f.NodeString(n))
			}
		case ssa.KindCopy, ssa.KindAdd, ssa.KindSub, ssa.KindDeclVar:
			t.Errorf("dead node survived: %s", f.NodeString(n))
		}
	})
	if calls != 1 || muls != 1 {
		t.Fatalf("calls=%d muls=%d, want 1 and 1", calls, muls)
	}
	if !src.IsCopy || src.CopiedValue != dst {
		t.Fatalf("source not marked as copy of destination")
	}
	mustNil(t, ssa.Validate(f))
}

func TestDeadCodeAfterReturn(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.Addr}, nil, types.ConvFyr))
	p := b.DeclareParam(types.Addr, "p")
	v := b.Tmp(types.S32)
	_, err := b.Assign(v, ssa.KindLoad, types.S32, ssa.Var(p), ssa.Int(0))
	mustNil(t, err)
	mustNil(t, b.Return())
	b.Block()
	_, err = b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(0), ssa.Var(v))
	mustNil(t, err)
	mustNil(t, b.End())
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.RemoveDeadCode(f))
	want := []ssa.Kind{ssa.KindDefine, ssa.KindDeclParam, ssa.KindReturn, ssa.KindEnd}
	if got := kinds(f); !equalKinds(got, want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	if v.ReadCount != 0 {
		t.Fatalf("load result still counted as read")
	}
	mustNil(t, ssa.Validate(f))
}

func TestBranchPruningDropsFalseIf(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.Addr}, nil, types.ConvFyr))
	p := b.DeclareParam(types.Addr, "p")
	b.If(ssa.Int(0))
	_, err := b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(0), ssa.Int(1))
	mustNil(t, err)
	mustNil(t, b.End())
	_, err = b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(4), ssa.Int(2))
	mustNil(t, err)
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.RemoveDeadCode(f))
	want := []ssa.Kind{ssa.KindDefine, ssa.KindDeclParam, ssa.KindStore, ssa.KindEnd}
	if got := kinds(f); !equalKinds(got, want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	store := f.Node(f.Node(f.EntryNode().Next[0]).Next[0])
	if store.Args[1].Int != 4 {
		t.Fatalf("wrong store survived: %s", f.NodeString(store))
	}
	if p.ReadCount != 2 {
		t.Fatalf("param read count %d, want 2", p.ReadCount)
	}
	mustNil(t, ssa.Validate(f))
}

func TestBranchPruningKeepsTakenArm(t *testing.T) {
	for _, tc := range []struct {
		cond ssa.Arg
		want int64
	}{{ssa.Int(1), 10}, {ssa.Int(0), 20}} {
		b := ssa.NewBuilder()
		b.Define("f", types.NewFunction([]types.Type{types.Addr}, nil, types.ConvFyr))
		p := b.DeclareParam(types.Addr, "p")
		b.If(tc.cond)
		_, err := b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(0), ssa.Int(10))
		mustNil(t, err)
		mustNil(t, b.Else())
		_, err = b.Assign(nil, ssa.KindStore, types.S32, ssa.Var(p), ssa.Int(0), ssa.Int(20))
		mustNil(t, err)
		mustNil(t, b.End())
		mustNil(t, b.End())

		f := b.Func()
		mustNil(t, ssa.RemoveDeadCode(f))
		want := []ssa.Kind{ssa.KindDefine, ssa.KindDeclParam, ssa.KindStore, ssa.KindEnd}
		if got := kinds(f); !equalKinds(got, want) {
			t.Fatalf("cond %d: chain = %v, want %v", tc.cond.Int, got, want)
		}
		store := f.Node(f.Node(f.EntryNode().Next[0]).Next[0])
		if store.Args[2].Int != tc.want {
			t.Fatalf("cond %d kept %s", tc.cond.Int, f.NodeString(store))
		}
		mustNil(t, ssa.Validate(f))
	}
}

func TestLiteralIfTargetedByBranchBecomesBlock(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.S32}, types.S32, types.ConvFyr))
	p := b.DeclareParam(types.S32, "p")
	b.DeclareResult(types.S32, "$return")
	x := b.DeclareVar(types.S32, "x", false)
	_, err := b.Assign(x, ssa.KindCopy, types.S32, ssa.Var(p))
	mustNil(t, err)
	cond := b.If(ssa.Int(1))
	mustNil(t, b.BrIf(ssa.Var(p), cond))
	_, err = b.Assign(x, ssa.KindAdd, types.S32, ssa.Var(p), ssa.Int(1))
	mustNil(t, err)
	mustNil(t, b.End())
	mustNil(t, b.Return(ssa.Var(x)))
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.RemoveDeadCode(f))

	if n := len(collect(f, ssa.KindIf)); n != 0 {
		t.Fatalf("literal if survived:\n%s", f)
	}
	blocks := collect(f, ssa.KindBlock)
	if len(blocks) != 1 || blocks[0].ID != cond || len(blocks[0].Args) != 0 {
		t.Fatalf("if was not kept as a block:\n%s", f)
	}
	brs := collect(f, ssa.KindBrIf)
	if len(brs) != 1 || brs[0].BlockPartner != cond {
		t.Fatalf("branch lost its target:\n%s", f)
	}
	mustNil(t, ssa.Validate(f))
}

func TestLiteralIfWithoutBranchesIsSpliced(t *testing.T) {
	b := ssa.NewBuilder()
	b.Define("f", types.NewFunction([]types.Type{types.S32}, nil, types.ConvFyr))
	p := b.DeclareParam(types.S32, "p")
	b.If(ssa.Int(0))
	_, err := b.Assign(nil, ssa.KindPrintln, nil, ssa.Str("never"))
	mustNil(t, err)
	mustNil(t, b.Else())
	_, err = b.Assign(nil, ssa.KindPrintln, nil, ssa.Var(p))
	mustNil(t, err)
	mustNil(t, b.End())
	mustNil(t, b.End())

	f := b.Func()
	mustNil(t, ssa.RemoveDeadCode(f))

	want := []ssa.Kind{ssa.KindDefine, ssa.KindDeclParam, ssa.KindPrintln, ssa.KindEnd}
	if got := kinds(f); !equalKinds(got, want) {
		t.Fatalf("chain = %v, want %v\n%s", got, want, f)
	}
}
