package types_test

import (
	"errors"
	"testing"

	"fyrc/internal/types"
)

func TestStructLayoutPadsFieldsAndTotal(t *testing.T) {
	s := types.NewStruct("point", false)
	s.AddField("a", types.I8, 1)
	s.AddField("b", types.S32, 1)
	s.AddField("c", types.I8, 1)

	tg := types.DefaultTarget()
	size, err := tg.SizeOf(s)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 12 {
		t.Fatalf("size = %d, want 12", size)
	}
	if s.Align() != 4 {
		t.Fatalf("align = %d, want 4", s.Align())
	}
	for name, want := range map[string]int{"a": 0, "b": 4, "c": 8} {
		off, err := s.FieldOffset(name)
		if err != nil {
			t.Fatalf("FieldOffset(%s): %v", name, err)
		}
		if off != want {
			t.Errorf("offset(%s) = %d, want %d", name, off, want)
		}
	}
}

func TestUnionLayoutOverlapsFields(t *testing.T) {
	u := types.NewStruct("u", true)
	u.AddField("a", types.I8, 1)
	u.AddField("b", types.S32, 1)
	u.AddField("c", types.I8, 1)

	size, err := types.DefaultTarget().SizeOf(u)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 4 {
		t.Fatalf("size = %d, want 4", size)
	}
	for _, name := range []string{"a", "b", "c"} {
		off, err := u.FieldOffset(name)
		if err != nil || off != 0 {
			t.Errorf("offset(%s) = %d, %v; want 0", name, off, err)
		}
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	s := types.NewStruct("s", false)
	s.AddField("x", types.I64, 2)
	tg := types.DefaultTarget()
	if err := s.Finalize(tg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	s.AddField("late", types.I64, 1)
	if err := s.Finalize(tg); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if s.Size() != 16 {
		t.Fatalf("size changed after second finalize: %d", s.Size())
	}
}

func TestSelfReferenceThroughPointer(t *testing.T) {
	node := types.NewStruct("node", false)
	node.AddField("value", types.S32, 1)
	node.AddField("next", types.NewPointer(node, false), 1)

	size, err := types.DefaultTarget().SizeOf(node)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 16 {
		t.Fatalf("size = %d, want 16", size)
	}
}

func TestRecursiveValueFieldFails(t *testing.T) {
	s := types.NewStruct("loop", false)
	s.AddField("self", s, 1)
	_, err := types.DefaultTarget().SizeOf(s)
	var le *types.LayoutError
	if !errors.As(err, &le) || le.Kind != types.LayoutErrRecursive {
		t.Fatalf("expected recursive layout error, got %v", err)
	}
}

func TestFieldLookupFallsBackToBase(t *testing.T) {
	base := types.NewStruct("base", false)
	base.AddField("id", types.I64, 1)
	derived := types.NewStruct("derived", false)
	derived.AddField("extra", types.I8, 1)
	derived.Extends = base

	tg := types.DefaultTarget()
	if err := derived.Finalize(tg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := base.Finalize(tg); err != nil {
		t.Fatalf("Finalize base: %v", err)
	}
	f, ok := derived.Field("id")
	if !ok || f.Type != types.I64 {
		t.Fatalf("Field(id) = %+v, %v", f, ok)
	}
	if _, err := derived.FieldOffset("id"); err != nil {
		t.Fatalf("FieldOffset(id): %v", err)
	}
	if _, err := derived.FieldOffset("missing"); err == nil {
		t.Fatalf("expected error for missing field")
	}
	if off, _ := derived.FieldOffset("extra"); off != 8 || derived.Size() != 16 {
		t.Fatalf("extra at %d, size %d", off, derived.Size())
	}
	if i, _ := derived.FieldIndex("id"); i != 0 {
		t.Fatalf("FieldIndex(id) = %d", i)
	}
	if i, _ := derived.FieldIndex("extra"); i != 1 {
		t.Fatalf("FieldIndex(extra) = %d", i)
	}
}

func TestExtendsCycleIsRecursive(t *testing.T) {
	a := types.NewStruct("a", false)
	b := types.NewStruct("b", false)
	a.AddField("x", types.S32, 1)
	a.Extends = b
	b.Extends = a
	var le *types.LayoutError
	if err := a.Finalize(types.DefaultTarget()); !errors.As(err, &le) || le.Kind != types.LayoutErrRecursive {
		t.Fatalf("expected recursive layout error, got %v", err)
	}
}

func TestCompareIsStructural(t *testing.T) {
	a := types.NewStruct("a", false)
	a.AddField("x", types.S32, 1)
	a.AddField("next", types.NewPointer(a, false), 1)
	b := types.NewStruct("b", false)
	b.AddField("y", types.S32, 1)
	b.AddField("link", types.NewPointer(b, false), 1)
	if !types.Compare(a, b) {
		t.Fatalf("structurally equal structs compared unequal")
	}
	c := types.NewStruct("c", false)
	c.AddField("x", types.S64, 1)
	if types.Compare(a, c) {
		t.Fatalf("structs with different field counts compared equal")
	}
	if types.Compare(types.S32, types.I32) {
		t.Fatalf("signed and unsigned compared equal")
	}
	fa := types.NewFunction([]types.Type{types.S32}, types.S32, types.ConvFyr)
	fb := types.NewFunction([]types.Type{types.S32}, types.S32, types.ConvFyrCoroutine)
	if types.Compare(fa, fb) {
		t.Fatalf("functions with different conventions compared equal")
	}
}

func TestScalarSizesFollowTarget(t *testing.T) {
	tg := types.Target{Name: "c-ilp32", PtrSize: 4, IntSize: 4}
	for _, tc := range []struct {
		t    types.Type
		want int
	}{
		{types.Addr, 4}, {types.Ptr, 4}, {types.SInt, 4}, {types.I16, 2}, {types.F64, 8},
		{types.NewPointer(types.I8, true), 4},
	} {
		got, err := tg.SizeOf(tc.t)
		if err != nil || got != tc.want {
			t.Errorf("SizeOf(%s) = %d, %v; want %d", tc.t, got, err, tc.want)
		}
	}
}
