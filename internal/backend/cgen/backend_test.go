package cgen_test

import (
	"context"
	"strings"
	"testing"

	"fyrc/internal/backend"
	"fyrc/internal/backend/cgen"
	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func generate(t *testing.T, be *cgen.CBackend) (header, impl string) {
	t.Helper()
	if _, err := be.GenerateModule(context.Background(), false, nil, nil); err != nil {
		t.Fatalf("GenerateModule: %v", err)
	}
	return be.Header(), be.Implementation()
}

func contains(t *testing.T, unit, text, want string) {
	t.Helper()
	if !strings.Contains(text, want) {
		t.Fatalf("%s lacks %q:\n%s", unit, want, text)
	}
}

var s32 = types.S32

func defineAdd(t *testing.T, be *cgen.CBackend) {
	t.Helper()
	ft := types.NewFunction([]types.Type{s32, s32}, s32, types.ConvFyr)
	fn := be.DeclareFunction("add")
	b := ssa.NewBuilder()
	b.Define("add", ft)
	a := b.DeclareParam(s32, "a")
	c := b.DeclareParam(s32, "b")
	b.DeclareResult(s32, "$return")
	sum := b.Tmp(s32)
	_, err := b.Assign(sum, ssa.KindAdd, s32, ssa.Var(a), ssa.Var(c))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(sum)))
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, true, false))
}

func TestExportedFunction(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	defineAdd(t, be)
	h, c := generate(t, be)

	if !strings.HasPrefix(h, "#ifndef FYR_demo_H\n#define FYR_demo_H\n") {
		t.Fatalf("header guard missing:\n%s", h)
	}
	contains(t, "header", h, "#include <stdint.h>\n#include <stdlib.h>\n#include \"fyr.h\"\n")
	contains(t, "header", h, "int32_t demo_sadd(int32_t v_a, int32_t v_b);\n")
	contains(t, "implementation", c, "#include \"demo.h\"\n")
	contains(t, "implementation", c, "int32_t demo_sadd(int32_t v_a, int32_t v_b) {\n")
	if n := strings.Count(c, "return v_a + v_b;"); n != 1 {
		t.Fatalf("expected one folded return, found %d:\n%s", n, c)
	}
	if strings.Contains(c, "FYR_COMPILE_MAIN") || be.IsExecutable() {
		t.Fatalf("library package compiled as executable:\n%s", c)
	}
}

func TestGenerateModuleTwice(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	defineAdd(t, be)
	generate(t, be)
	if _, err := be.GenerateModule(context.Background(), false, nil, nil); !ssa.IsKind(err, ssa.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestEmitIRDumpsEveryPhase(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	defineAdd(t, be)
	ir, err := be.GenerateModule(context.Background(), true, nil, nil)
	mustNil(t, err)
	for _, phase := range []string{ssa.PhaseOptimizeConstants, ssa.PhaseRemoveDeadCode, ssa.PhaseStackify} {
		contains(t, "ir", ir, "after "+phase)
	}
}

func defineMain(t *testing.T, be *cgen.CBackend, body func(b *ssa.Builder)) {
	t.Helper()
	ft := types.NewFunction(nil, nil, types.ConvFyr)
	fn := be.DeclareFunction("main")
	b := ssa.NewBuilder()
	b.Define("main", ft)
	body(b)
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, true, false))
}

func TestMainAndPrintln(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "app"}, cgen.Options{})
	defineMain(t, be, func(b *ssa.Builder) {
		_, err := b.Assign(nil, ssa.KindPrintln, nil, ssa.Str("hi"), ssa.Int(42))
		mustNil(t, err)
	})
	h, c := generate(t, be)

	if !be.IsExecutable() || !strings.HasPrefix(c, "#define FYR_COMPILE_MAIN\n") {
		t.Fatalf("main package is not executable:\n%s", c)
	}
	contains(t, "header", h, "#include <stdio.h>")
	contains(t, "implementation", c, "printf(\"hi 42\\n\");")
	contains(t, "implementation", c, "int main(int argc, char** argv) {\n    f_app_smain();\n    return 0;\n}")
}

func TestPrintlnFormatsTypedValues(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "app"}, cgen.Options{})
	ft := types.NewFunction([]types.Type{types.I64, types.F32}, nil, types.ConvFyr)
	fn := be.DeclareFunction("show")
	b := ssa.NewBuilder()
	b.Define("show", ft)
	x := b.DeclareParam(types.I64, "x")
	y := b.DeclareParam(types.F32, "y")
	_, err := b.Assign(nil, ssa.KindPrintln, nil, ssa.Str("100%"), ssa.Var(x), ssa.Var(y))
	mustNil(t, err)
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	h, c := generate(t, be)

	contains(t, "header", h, "#include <inttypes.h>")
	contains(t, "implementation", c, `printf("100%% %" PRIu64 " %f\n", v_x, (double)v_y);`)
}

func TestStringLiterals(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	ft := types.NewFunction(nil, types.Addr, types.ConvFyr)
	for _, dup := range []bool{false, true} {
		name := "greet"
		if dup {
			name = "greetDup"
		}
		fn := be.DeclareFunction(name)
		b := ssa.NewBuilder()
		b.Define(name, ft)
		b.DeclareResult(types.Addr, "$return")
		mustNil(t, b.Return(ssa.Str("hi")))
		mustNil(t, b.End())
		mustNil(t, be.DefineFunction(b.Func(), fn, false, dup))
	}
	h, c := generate(t, be)

	contains(t, "implementation", c, "static struct {\n    int_t size;\n    int_t lockcount;\n    int_t refcount;\n    uint8_t data[3];\n} str_0 = {2, 1, 1, {104,105,0}};")
	contains(t, "implementation", c, "return &str_0.data[0];")
	if strings.Contains(c, "greetDup") {
		t.Fatalf("possible duplicate compiled into the implementation:\n%s", c)
	}
	contains(t, "header", h, "#ifdef FYR_COMPILE_MAIN\n#ifndef f_greetDup_H\n#define f_greetDup_H\n")
	contains(t, "header", h, "} str_1 = {2, 1, 1, {104,105,0}};")
	contains(t, "header", h, "return &str_1.data[0];")
}

func TestUnaryMinusOfNegativeLiteral(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("neg")
	b := ssa.NewBuilder()
	b.Define("neg", types.NewFunction(nil, s32, types.ConvFyr))
	b.DeclareResult(s32, "$return")
	k := b.Tmp(s32)
	_, err := b.Assign(k, ssa.KindConst, s32, ssa.Int(-5))
	mustNil(t, err)
	r := b.Tmp(s32)
	_, err = b.Assign(r, ssa.KindNeg, s32, ssa.Var(k))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(r)))
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	_, c := generate(t, be)

	contains(t, "implementation", c, "return -(-5);")
}

func TestNamedResultsReturnAStruct(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("pair")
	b := ssa.NewBuilder()
	b.Define("pair", types.NewFunction(nil, nil, types.ConvFyr))
	x := b.DeclareResult(s32, "x")
	b.DeclareResult(s32, "y")
	_, err := b.Assign(x, ssa.KindConst, s32, ssa.Int(1))
	mustNil(t, err)
	mustNil(t, b.Return())
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	h, c := generate(t, be)

	contains(t, "header", h, "    int32_t r_return_0;\n    int32_t r_return_1;\n};")
	contains(t, "implementation", c, "r_return_0 = (int32_t)1;")
	contains(t, "implementation", c, "{r_return_0, r_return_1};")
	if !strings.Contains(c, "return (struct ta_struct") {
		t.Fatalf("named results not returned as a struct:\n%s", c)
	}
}

func TestMemberIndexesBaseFieldsFirst(t *testing.T) {
	base := types.NewStruct("Base", false)
	base.PkgPath = "demo"
	base.AddField("id", types.S64, 1)
	derived := types.NewStruct("Derived", false)
	derived.PkgPath = "demo"
	derived.Extends = base
	derived.AddField("extra", types.S8, 1)

	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("ident")
	b := ssa.NewBuilder()
	b.Define("ident", types.NewFunction([]types.Type{derived}, types.S64, types.ConvFyr))
	d := b.DeclareParam(derived, "d")
	b.DeclareResult(types.S64, "$return")
	r := b.Tmp(types.S64)
	_, err := b.Assign(r, ssa.KindMember, types.S64, ssa.Var(d), ssa.Int(0))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(r)))
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	h, c := generate(t, be)

	contains(t, "header", h, "struct demo_sDerived {\n    int64_t id;\n    int8_t extra;\n};")
	contains(t, "implementation", c, ".id")
	if strings.Contains(c, ".extra") {
		t.Fatalf("field 0 resolved to the derived field:\n%s", c)
	}
}

func TestLiteralIfKeepsBranchTarget(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("skip")
	b := ssa.NewBuilder()
	b.Define("skip", types.NewFunction([]types.Type{s32}, nil, types.ConvFyr))
	x := b.DeclareParam(s32, "x")
	cond := b.If(ssa.Int(1))
	mustNil(t, b.BrIf(ssa.Var(x), cond))
	_, err := b.Assign(nil, ssa.KindPrintln, nil, ssa.Str("taken"))
	mustNil(t, err)
	mustNil(t, b.End())
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	_, c := generate(t, be)

	contains(t, "implementation", c, "goto block0;")
	contains(t, "implementation", c, "block0:;")
	if strings.Contains(c, "if (1)") {
		t.Fatalf("literal condition survived:\n%s", c)
	}
}

func TestLoopBranchGetsLabel(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("spin")
	b := ssa.NewBuilder()
	def := b.Define("spin", types.NewFunction([]types.Type{s32}, nil, types.ConvFyr))
	x := b.DeclareParam(s32, "x")
	loop := b.Loop()
	mustNil(t, b.BrIf(ssa.Var(x), loop))
	mustNil(t, b.BrIf(ssa.Int(1), def))
	mustNil(t, b.End())
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	_, c := generate(t, be)

	contains(t, "implementation", c, "    block0:;\n    if (v_x) {\n        goto block0;\n    }\n    if (1) {\n        return;\n    }\n")
}

func TestStructsAreDeclaredBeforeUse(t *testing.T) {
	inner := types.NewStruct("Inner", false)
	inner.PkgPath = "demo"
	inner.AddField("v", types.F64, 2)
	outer := types.NewStruct("Outer", false)
	outer.PkgPath = "demo"
	outer.AddField("in", inner, 1)
	outer.AddField("next", types.NewPointer(outer, false), 1)

	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	be.DeclareGlobalVar("g", outer)
	h, c := generate(t, be)

	i, o := strings.Index(h, "struct demo_sInner {"), strings.Index(h, "struct demo_sOuter {")
	if i < 0 || o < 0 || i > o {
		t.Fatalf("struct order wrong (inner %d, outer %d):\n%s", i, o, h)
	}
	contains(t, "header", h, "    double v[2];\n")
	contains(t, "header", h, "    addr_t next;\n")
	contains(t, "header", h, "extern struct demo_sOuter g_demo_sg;\n")
	contains(t, "implementation", c, "struct demo_sOuter g_demo_sg;\n")
}

func TestImportedGlobalsAreOnlyDeclared(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	_, err := be.ImportGlobalVar("count", s32, backend.Origin{Pkg: &backend.Package{Path: "lib"}})
	mustNil(t, err)
	_, err = be.ImportGlobalVar("errno", s32, backend.Origin{Native: "<errno.h>"})
	mustNil(t, err)
	h, c := generate(t, be)

	contains(t, "header", h, "#include \"lib.h\"\n")
	contains(t, "header", h, "#include <errno.h>\n")
	contains(t, "header", h, "extern int32_t g_lib_scount;\n")
	if strings.Contains(h, "errno;") || strings.Contains(c, "g_lib_scount") {
		t.Fatalf("imported globals defined:\n%s\n%s", h, c)
	}
}

func TestInterfaceTablesAndSymbols(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("m")
	if s0, s1 := be.AddSymbol("x"), be.AddSymbol("x"); s0 != 0 || s1 != 0 {
		t.Fatalf("AddSymbol not deduplicated: %d, %d", s0, s1)
	}
	idx, err := be.AddInterfaceDescriptor("demo.Iface", []backend.Function{fn, nil})
	mustNil(t, err)
	if idx != 0 {
		t.Fatalf("descriptor index = %d", idx)
	}

	b := ssa.NewBuilder()
	b.Define("m", types.NewFunction(nil, nil, types.ConvFyr))
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	h, _ := generate(t, be)

	contains(t, "header", h, "    (addr_t)f_demo_sm,\n    0,\n};")
	contains(t, "header", h, "const addr_t sym_x = (const addr_t)(const char*)\"x\";")
	contains(t, "header", h, "extern const addr_t sym_x;")
}

func TestForeignDescriptorEntryIsRejected(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	other := cgen.New(&backend.Package{Path: "other"}, cgen.Options{})
	other.DeclareFunction("a")
	foreign := other.DeclareFunction("b")
	if _, err := be.AddInterfaceDescriptor("t", []backend.Function{foreign}); !ssa.IsKind(err, ssa.ErrBuild) {
		t.Fatalf("expected build error, got %v", err)
	}
}

func TestNativeCallCastsPointers(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	ptr := types.NewPointer(types.I8, false)
	puts, err := be.ImportFunction("puts", backend.Origin{Native: "<stdio.h>"}, types.NewFunction([]types.Type{ptr}, s32, types.ConvNative))
	mustNil(t, err)
	fn := be.DeclareFunction("say")
	b := ssa.NewBuilder()
	b.Define("say", types.NewFunction([]types.Type{ptr}, s32, types.ConvFyr))
	p := b.DeclareParam(ptr, "s")
	b.DeclareResult(s32, "$return")
	r, err := b.Call(b.Tmp(s32), types.NewFunction([]types.Type{ptr}, s32, types.ConvNative), puts.Index(), ssa.Var(p))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(r)))
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	h, c := generate(t, be)

	contains(t, "header", h, "#include <stdio.h>\n")
	contains(t, "implementation", c, "return puts((void*)v_s);")
}

func TestImportWithoutOrigin(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	_, err := be.ImportFunction("f", backend.Origin{}, types.NewFunction(nil, nil, types.ConvFyr))
	if !ssa.IsKind(err, ssa.ErrBuild) {
		t.Fatalf("expected build error, got %v", err)
	}
}

func TestSpawnUsesSharedHelpers(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "app"}, cgen.Options{})
	workerType := types.NewFunction([]types.Type{s32}, nil, types.ConvFyr)
	worker := be.DeclareFunction("worker")
	b := ssa.NewBuilder()
	b.Define("worker", workerType)
	b.DeclareParam(s32, "n")
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), worker, false, false))

	defineMain(t, be, func(b *ssa.Builder) {
		mustNil(t, b.Spawn(workerType, worker.Index(), ssa.Int(1)))
		mustNil(t, b.Spawn(workerType, worker.Index(), ssa.Int(2)))
	})
	h, c := generate(t, be)

	contains(t, "header", h, "#include \"fyr_spawn.h\"\n")
	contains(t, "header", h, "#include <setjmp.h>\n")
	if n := strings.Count(h, "#define spawn_1_"); n != 1 {
		t.Fatalf("expected one spawn_1 helper, found %d:\n%s", n, h)
	}
	if strings.Contains(h, "c->memory = dummy") {
		t.Fatalf("helper assigns the alloca block to the coroutine:\n%s", h)
	}
	contains(t, "implementation", c, "(1, f_app_sworker);")
	contains(t, "implementation", c, "(2, f_app_sworker);")
	contains(t, "implementation", c, "    fyr_component_main_start();\n    f_app_smain();\n    int ret = 0;\n    fyr_component_main_end();\n    return ret;\n")
}

func TestYieldLowersToSteps(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("gen")
	b := ssa.NewBuilder()
	b.Define("gen", types.NewFunction(nil, nil, types.ConvFyrCoroutine))
	_, err := b.Assign(nil, ssa.KindYield, nil)
	mustNil(t, err)
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))
	h, c := generate(t, be)

	contains(t, "header", h, "#include \"fyr_spawn.h\"\n")
	contains(t, "implementation", c, "    step_s0:;\n    fyr_yield(true);\n    return;\n")
}

func TestCommentsAnnotateStatements(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{Comments: true})
	defineAdd(t, be)
	_, c := generate(t, be)
	contains(t, "implementation", c, "/* ")
}

func TestHeaderAssertsPointerSize(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{PtrSize: 4})
	defineAdd(t, be)
	h, _ := generate(t, be)
	contains(t, "header", h, "_Static_assert(sizeof(void*) == 4, ")

	plain := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	defineAdd(t, plain)
	if h, _ := generate(t, plain); strings.Contains(h, "_Static_assert") {
		t.Fatalf("unexpected pointer assertion:\n%s", h)
	}
}

func TestRotateIsUnimplemented(t *testing.T) {
	be := cgen.New(&backend.Package{Path: "demo"}, cgen.Options{})
	fn := be.DeclareFunction("rot")
	b := ssa.NewBuilder()
	b.Define("rot", types.NewFunction([]types.Type{types.I32}, types.I32, types.ConvFyr))
	x := b.DeclareParam(types.I32, "x")
	b.DeclareResult(types.I32, "$return")
	r := b.Tmp(types.I32)
	_, err := b.Assign(r, ssa.KindRotl, types.I32, ssa.Var(x), ssa.Int(3))
	mustNil(t, err)
	mustNil(t, b.Return(ssa.Var(r)))
	mustNil(t, b.End())
	mustNil(t, be.DefineFunction(b.Func(), fn, false, false))

	_, err = be.GenerateModule(context.Background(), false, nil, nil)
	if !ssa.IsKind(err, ssa.ErrUnimplemented) {
		t.Fatalf("expected unimplemented error, got %v", err)
	}
}
