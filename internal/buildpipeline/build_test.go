package buildpipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fyrc/internal/buildpipeline"
	"fyrc/internal/cache"
	"fyrc/internal/config"
	"fyrc/internal/irfile"
	"fyrc/internal/observ"
)

func helloFile(pkg string) *irfile.File {
	return &irfile.File{
		Package: irfile.PackageRef{Path: pkg},
		Funcs: []irfile.Func{{
			Name: "main", Exported: true,
			Body: []irfile.Op{
				{Op: irfile.OpDefine, Name: "main", Type: &irfile.TypeRef{Func: &irfile.Signature{}}},
				{Op: irfile.OpAssign, Kind: "println", Args: []irfile.Operand{{K: irfile.OperandString, S: "hello"}}},
				{Op: irfile.OpEnd},
			},
		}},
	}
}

func writeInput(t *testing.T, dir, name string, f *irfile.File) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := irfile.WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func request(t *testing.T, inputs ...string) (*buildpipeline.Request, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Build.OutDir = filepath.Join(root, "out")
	cfg.Emit.IR = true
	c, err := cache.Open(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	return &buildpipeline.Request{Inputs: inputs, Config: cfg, Cache: c}, cfg.Build.OutDir
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestBuildWritesUnitsAndUsesCache(t *testing.T) {
	src := t.TempDir()
	input := writeInput(t, src, "app.fyrir", helloFile("app"))
	req, out := request(t, input)
	req.BaseDir = src
	sink := &buildpipeline.RecordingSink{}
	req.Progress = sink
	req.Timer = observ.NewTimer()

	res, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Units) != 1 {
		t.Fatalf("expected one unit, got %+v", res.Units)
	}
	u := res.Units[0]
	if u.Input != "app.fyrir" || u.Package != "app" || !u.Executable || u.Cached {
		t.Fatalf("unexpected unit %+v", u)
	}
	if u.HeaderPath != filepath.Join(out, "app.h") || u.ImplPath != filepath.Join(out, "app.c") {
		t.Fatalf("unexpected output paths %+v", u)
	}
	if impl := read(t, u.ImplPath); !strings.Contains(impl, `printf("hello\n");`) {
		t.Fatalf("implementation lacks the println:\n%s", impl)
	}
	if ir := read(t, u.IRPath); !strings.Contains(ir, "after stackify") {
		t.Fatalf("IR dump lacks phases:\n%s", ir)
	}
	if u.Timings.Total() < u.Timings.Of(buildpipeline.StageGenerate) {
		t.Fatalf("stage timings do not add up: %+v", u.Timings)
	}
	if len(res.RuntimeHeaders) != 2 {
		t.Fatalf("runtime headers not written: %v", res.RuntimeHeaders)
	}
	for _, h := range res.RuntimeHeaders {
		if filepath.Dir(h) != out {
			t.Fatalf("runtime header %s outside %s", h, out)
		}
	}

	var sawWorking, sawDone bool
	for _, ev := range sink.Events() {
		if ev.File == "app.fyrir" && ev.Stage == buildpipeline.StageGenerate && ev.Status == buildpipeline.StatusWorking {
			sawWorking = true
		}
		if ev.File == "app.fyrir" && ev.Status == buildpipeline.StatusDone {
			sawDone = true
		}
	}
	if !sawWorking || !sawDone {
		t.Fatalf("missing progress events: %+v", sink.Events())
	}
	if r := req.Timer.Report(); len(r.Phases) != len(buildpipeline.Stages) {
		t.Fatalf("unexpected timer phases: %+v", r.Phases)
	}

	if err := os.Remove(u.ImplPath); err != nil {
		t.Fatal(err)
	}
	res, err = buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !res.Units[0].Cached || !res.Units[0].Executable {
		t.Fatalf("second build missed the cache: %+v", res.Units[0])
	}
	if impl := read(t, u.ImplPath); !strings.Contains(impl, `printf("hello\n");`) {
		t.Fatalf("cached implementation differs:\n%s", impl)
	}
}

func TestBuildRejectsTwoInputsForOnePackage(t *testing.T) {
	src := t.TempDir()
	a := writeInput(t, src, "a.fyrir", helloFile("app"))
	b := writeInput(t, src, "b.fyrir", helloFile("app"))
	req, _ := request(t, a, b)
	req.Config.Build.Jobs = 1

	_, err := buildpipeline.Build(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "is also produced by") {
		t.Fatalf("expected a duplicate package error, got %v", err)
	}
}

func TestBuildReportsBrokenInput(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "broken.fyrir")
	if err := os.WriteFile(path, []byte("not msgpack"), 0o644); err != nil {
		t.Fatal(err)
	}
	req, _ := request(t, path)
	sink := &buildpipeline.RecordingSink{}
	req.Progress = sink

	if _, err := buildpipeline.Build(context.Background(), req); err == nil {
		t.Fatalf("expected an error")
	}
	var sawError bool
	for _, ev := range sink.Events() {
		if ev.Status == buildpipeline.StatusError && ev.Stage == buildpipeline.StageDecode && ev.File != "" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("decode failure not reported: %+v", sink.Events())
	}
}

func TestDumpIR(t *testing.T) {
	input := writeInput(t, t.TempDir(), "app.fyrir", helloFile("app"))
	ir, err := buildpipeline.DumpIR(context.Background(), input, config.Default())
	if err != nil {
		t.Fatalf("DumpIR: %v", err)
	}
	if !strings.Contains(ir, "after optimize_constants") || !strings.Contains(ir, "println") {
		t.Fatalf("unexpected dump:\n%s", ir)
	}
}
