package irfile_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"fyrc/internal/backend/cgen"
	"fyrc/internal/irfile"
	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

var s32 = &irfile.TypeRef{Scalar: "s32"}

func v(n int) irfile.Operand     { return irfile.Operand{K: irfile.OperandVar, V: n} }
func lit(n int64) irfile.Operand { return irfile.Operand{K: irfile.OperandInt, I: n} }

func sig(result *irfile.TypeRef, params ...irfile.TypeRef) *irfile.TypeRef {
	return &irfile.TypeRef{Func: &irfile.Signature{Params: params, Result: result}}
}

func fixture() *irfile.File {
	addSig := sig(s32, *s32, *s32)
	return &irfile.File{
		Package: irfile.PackageRef{Path: "demo"},
		Globals: []irfile.Global{{Name: "counter", Type: *s32}},
		Funcs: []irfile.Func{
			{
				Name: "add", Exported: true, Type: *addSig.Func,
				Body: []irfile.Op{
					{Op: irfile.OpDefine, Name: "add", Type: addSig},
					{Op: irfile.OpParam, Name: "a", Type: s32},
					{Op: irfile.OpParam, Name: "b", Type: s32},
					{Op: irfile.OpResult, Name: "$return", Type: s32},
					{Op: irfile.OpTmp, Type: s32},
					{Op: irfile.OpAssign, Kind: "add", Type: s32, Dst: 4, Args: []irfile.Operand{v(1), v(2)}},
					{Op: irfile.OpReturn, Args: []irfile.Operand{v(4)}},
					{Op: irfile.OpEnd},
				},
			},
			{
				Name: "main", Exported: true,
				Body: []irfile.Op{
					{Op: irfile.OpDefine, Name: "main", Type: sig(nil)},
					{Op: irfile.OpTmp, Type: s32},
					{Op: irfile.OpCall, Type: addSig, Func: 0, Dst: 1, Args: []irfile.Operand{lit(1), lit(2)}},
					{Op: irfile.OpAssign, Kind: "copy", Type: s32, Dst: -1, Args: []irfile.Operand{v(1)}},
					{Op: irfile.OpAssign, Kind: "println", Args: []irfile.Operand{{K: irfile.OperandString, S: "sum"}, v(-1)}},
					{Op: irfile.OpEnd},
				},
			},
		},
	}
}

func replay(t *testing.T, f *irfile.File) (*cgen.CBackend, error) {
	t.Helper()
	be := cgen.New(f.Package.Backend(), cgen.Options{})
	return be, irfile.Replay(context.Background(), f, be, types.DefaultTarget())
}

func TestEncodeDecodeReplay(t *testing.T) {
	var buf bytes.Buffer
	if err := irfile.Encode(&buf, fixture()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f, err := irfile.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	be, err := replay(t, f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if _, err := be.GenerateModule(context.Background(), false, nil, nil); err != nil {
		t.Fatalf("GenerateModule: %v", err)
	}
	c := be.Implementation()
	for _, want := range []string{
		"int32_t g_demo_scounter;",
		"return v_a + v_b;",
		"demo_sadd(1, 2)",
		`printf("sum %" PRIi32 "\n", g_demo_scounter);`,
		"int main(int argc, char** argv) {",
	} {
		if !strings.Contains(c, want) {
			t.Errorf("implementation lacks %q:\n%s", want, c)
		}
	}
	if !be.IsExecutable() {
		t.Errorf("exported main did not make the package executable")
	}
}

func TestDecodeRejectsForeignSchema(t *testing.T) {
	data, err := msgpack.Marshal(&irfile.File{Schema: irfile.Schema + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := irfile.Decode(bytes.NewReader(data)); !errors.Is(err, irfile.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestReplayNormalizesNames(t *testing.T) {
	f := &irfile.File{
		Package: irfile.PackageRef{Path: "demo"},
		Globals: []irfile.Global{{Name: "cafe\u0301", Type: *s32}},
	}
	be, err := replay(t, f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if _, err := be.GenerateModule(context.Background(), false, nil, nil); err != nil {
		t.Fatalf("GenerateModule: %v", err)
	}
	want := "g_" + cgen.Mangle("demo/caf\u00e9") + ";"
	if !strings.Contains(be.Header(), want) {
		t.Fatalf("header lacks %q:\n%s", want, be.Header())
	}
}

func TestReplayErrors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(f *irfile.File)
		check func(error) bool
	}{
		{
			name: "unknown kind",
			edit: func(f *irfile.File) { f.Funcs[0].Body[5].Kind = "frobnicate" },
			check: func(err error) bool {
				return errors.Is(err, irfile.ErrMalformed)
			},
		},
		{
			name: "branch to a plain op",
			edit: func(f *irfile.File) {
				body := f.Funcs[1].Body
				f.Funcs[1].Body = append(body[:len(body)-1], irfile.Op{Op: irfile.OpBr, Target: 2}, irfile.Op{Op: irfile.OpEnd})
			},
			check: func(err error) bool {
				return errors.Is(err, irfile.ErrMalformed)
			},
		},
		{
			name: "dangling variable",
			edit: func(f *irfile.File) { f.Funcs[0].Body[6].Args[0] = v(9) },
			check: func(err error) bool {
				return errors.Is(err, irfile.ErrMalformed)
			},
		},
		{
			name: "value returned from a procedure",
			edit: func(f *irfile.File) {
				body := f.Funcs[1].Body
				f.Funcs[1].Body = append(body[:len(body)-1], irfile.Op{Op: irfile.OpReturn, Args: []irfile.Operand{lit(1)}}, irfile.Op{Op: irfile.OpEnd})
			},
			check: func(err error) bool {
				return ssa.IsKind(err, ssa.ErrBuild)
			},
		},
		{
			name: "define never closed",
			edit: func(f *irfile.File) {
				body := f.Funcs[1].Body
				f.Funcs[1].Body = body[:len(body)-1]
			},
			check: func(err error) bool {
				return ssa.IsKind(err, ssa.ErrBuild) && strings.Contains(err.Error(), "unclosed")
			},
		},
		{
			name: "unknown scalar",
			edit: func(f *irfile.File) { f.Globals[0].Type.Scalar = "u128" },
			check: func(err error) bool {
				return errors.Is(err, irfile.ErrMalformed)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fixture()
			tt.edit(f)
			_, err := replay(t, f)
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
