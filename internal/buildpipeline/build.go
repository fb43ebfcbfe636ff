// Package buildpipeline compiles IR packages to C units. Packages are
// independent, so each one runs decode, lower, generate and write on its
// own goroutine.
package buildpipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fyrc/internal/backend"
	"fyrc/internal/backend/cgen"
	"fyrc/internal/cache"
	"fyrc/internal/config"
	"fyrc/internal/irfile"
	"fyrc/internal/observ"
	"fyrc/internal/trace"
	"fyrc/internal/types"
	"fyrc/internal/version"
	runtimeembed "fyrc/runtime"
)

// Request configures a build.
type Request struct {
	// Inputs are IR file paths.
	Inputs []string
	Config config.Config
	// BaseDir shortens the input names used in events and results.
	BaseDir  string
	Progress ProgressSink
	// Cache may be nil.
	Cache *cache.Disk
	// Timer may be nil; it receives per-stage totals.
	Timer *observ.Timer
}

// Unit is the outcome of one input.
type Unit struct {
	Input      string
	Package    string
	HeaderPath string
	ImplPath   string
	// IRPath is set when IR dumps are enabled.
	IRPath     string
	Executable bool
	Cached     bool
	Timings    Timings
}

// Result collects every unit in input order.
type Result struct {
	Units          []Unit
	RuntimeHeaders []string
}

// Build compiles every input. The first failure cancels the remaining
// packages; units that finished are still reported.
func Build(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if req == nil {
		return result, fmt.Errorf("missing build request")
	}
	if len(req.Inputs) == 0 {
		return result, fmt.Errorf("no inputs")
	}
	if err := req.Config.Validate(); err != nil {
		return result, err
	}

	b := &builder{
		req:     req,
		outDir:  req.Config.Build.OutDir,
		tg:      req.Config.TypesTarget(),
		claimed: make(map[string]string),
	}
	names := InputNames(req.Inputs, req.BaseDir)
	emitQueued(req.Progress, names)

	jobs := req.Config.Build.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	ctx, span := trace.Start(ctx, trace.ScopeBuild, "build")

	result.Units = make([]Unit, len(req.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Inputs)))
	for i, input := range req.Inputs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			unit, err := b.buildOne(gctx, input, names[i])
			result.Units[i] = unit
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.End(err.Error())
		emitOverall(req.Progress, StatusError, err)
		return result, err
	}

	if req.Config.Build.RuntimeHeaders {
		paths, err := runtimeembed.WriteHeaders(b.outDir)
		if err != nil {
			span.End(err.Error())
			return result, err
		}
		result.RuntimeHeaders = paths
	}
	span.WithExtra("units", strconv.Itoa(len(result.Units))).End("")
	emitOverall(req.Progress, StatusDone, nil)
	return result, nil
}

type builder struct {
	req    *Request
	outDir string
	tg     types.Target

	mu      sync.Mutex
	claimed map[string]string
}

func (b *builder) buildOne(ctx context.Context, input, name string) (Unit, error) {
	ctx, span := trace.Start(ctx, trace.ScopePackage, "package "+name)

	unit := Unit{Input: name}
	stage, err := b.run(ctx, input, name, &unit)
	if err != nil {
		span.End(err.Error())
		emitStage(b.req.Progress, name, stage, StatusError, err, 0)
		return unit, fmt.Errorf("%s: %w", name, err)
	}
	if unit.Cached {
		span.WithExtra("cached", "true")
	}
	span.End("")
	total := unit.Timings.Total()
	status := StatusDone
	if unit.Cached {
		status = StatusCached
	}
	emitStage(b.req.Progress, name, StageWrite, status, nil, total)
	return unit, nil
}

// run returns the stage that failed along with the error.
func (b *builder) run(ctx context.Context, input, name string, unit *Unit) (Stage, error) {
	cfg := &b.req.Config

	start := b.begin(name, StageDecode)
	data, err := os.ReadFile(input)
	if err != nil {
		return StageDecode, err
	}
	f, err := irfile.Decode(bytes.NewReader(data))
	if err != nil {
		return StageDecode, err
	}
	unit.Package = f.Package.DisplayName()
	if err := b.claimOutputs(f.Package.Backend(), name, unit); err != nil {
		return StageDecode, err
	}
	key := b.cacheKey(data)
	cached, hit, err := b.req.Cache.Get(key)
	if err != nil {
		return StageDecode, err
	}
	b.end(unit, StageDecode, start)

	if hit {
		start = b.begin(name, StageWrite)
		unit.Cached = true
		unit.Executable = cached.Executable
		if err := b.write(unit, cached.Header, cached.Impl, cached.IR); err != nil {
			return StageWrite, err
		}
		b.end(unit, StageWrite, start)
		return "", nil
	}

	start = b.begin(name, StageLower)
	be := cgen.New(f.Package.Backend(), cgen.Options{Comments: cfg.Emit.Comments, PtrSize: cfg.Target.PtrSize})
	if err := irfile.Replay(ctx, f, be, b.tg); err != nil {
		return StageLower, err
	}
	b.end(unit, StageLower, start)

	start = b.begin(name, StageGenerate)
	ir, err := be.GenerateModule(ctx, cfg.Emit.IR, packages(f.InitPackages), packages(f.DuplicateCodePackages))
	if err != nil {
		return StageGenerate, err
	}
	b.end(unit, StageGenerate, start)

	start = b.begin(name, StageWrite)
	unit.Executable = be.IsExecutable()
	if err := b.write(unit, be.Header(), be.Implementation(), ir); err != nil {
		return StageWrite, err
	}
	err = b.req.Cache.Put(key, &cache.Unit{
		Package:    unit.Package,
		Header:     be.Header(),
		Impl:       be.Implementation(),
		IR:         ir,
		Executable: unit.Executable,
	})
	if err != nil {
		return StageWrite, err
	}
	b.end(unit, StageWrite, start)
	return "", nil
}

func (b *builder) begin(name string, stage Stage) time.Time {
	emitStage(b.req.Progress, name, stage, StatusWorking, nil, 0)
	return time.Now()
}

func (b *builder) end(unit *Unit, stage Stage, start time.Time) {
	d := time.Since(start)
	unit.Timings.Set(stage, d)
	if b.req.Timer != nil {
		b.req.Timer.Add(string(stage), d)
	}
}

// cacheKey covers the input and every setting that changes the output.
func (b *builder) cacheKey(data []byte) cache.Key {
	cfg := &b.req.Config
	h := &cache.Hasher{}
	h.AddString(version.Version)
	h.AddString(fmt.Sprintf("%s/%d/%d", b.tg.Name, b.tg.PtrSize, b.tg.IntSize))
	h.AddString(fmt.Sprintf("ir=%t comments=%t", cfg.Emit.IR, cfg.Emit.Comments))
	h.Add(data)
	return h.Sum()
}

// claimOutputs computes the output paths of pkg and fails when another
// input of the same build already writes them.
func (b *builder) claimOutputs(pkg *backend.Package, name string, unit *Unit) error {
	header := pkg.HeaderFile()
	if !filepath.IsAbs(header) {
		header = filepath.Join(b.outDir, header)
	}
	base := strings.TrimSuffix(header, ".h")
	unit.HeaderPath = header
	unit.ImplPath = base + ".c"
	if b.req.Config.Emit.IR {
		unit.IRPath = base + ".ir.txt"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if other, ok := b.claimed[header]; ok {
		return fmt.Errorf("package %s is also produced by %s", unit.Package, other)
	}
	b.claimed[header] = name
	return nil
}

func (b *builder) write(unit *Unit, header, impl, ir string) error {
	files := []struct{ path, text string }{
		{unit.HeaderPath, header},
		{unit.ImplPath, impl},
	}
	if unit.IRPath != "" {
		files = append(files, struct{ path, text string }{unit.IRPath, ir})
	}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
		if err := os.WriteFile(f.path, []byte(f.text), 0o644); err != nil {
			return fmt.Errorf("failed to write %q: %w", f.path, err)
		}
	}
	return nil
}

func packages(refs []irfile.PackageRef) []*backend.Package {
	if len(refs) == 0 {
		return nil
	}
	out := make([]*backend.Package, len(refs))
	for i, r := range refs {
		out[i] = r.Backend()
	}
	return out
}

// DumpIR decodes input, replays it and returns the IR of every function
// after every phase without writing anything.
func DumpIR(ctx context.Context, input string, cfg config.Config) (string, error) {
	f, err := irfile.ReadFile(input)
	if err != nil {
		return "", err
	}
	be := cgen.New(f.Package.Backend(), cgen.Options{Comments: cfg.Emit.Comments, PtrSize: cfg.Target.PtrSize})
	if err := irfile.Replay(ctx, f, be, cfg.TypesTarget()); err != nil {
		return "", err
	}
	return be.GenerateModule(ctx, true, packages(f.InitPackages), packages(f.DuplicateCodePackages))
}
