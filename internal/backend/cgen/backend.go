// Package cgen generates C from SSA functions. One CBackend compiles one
// package into a header unit and an implementation unit that include the
// runtime support headers fyr.h and, when coroutines are used, fyr_spawn.h.
package cgen

import (
	"context"
	"io"
	"strconv"
	"strings"

	"fyrc/internal/backend"
	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

// Options tunes code generation.
type Options struct {
	// Comments annotates every statement with the IR node it came from.
	Comments bool
	// PtrSize, when set, makes the header assert the pointer width the
	// package was compiled for.
	PtrSize int
}

// Function is a function defined in the package being compiled.
type Function struct {
	index    int
	name     string
	cname    string
	body     *ssa.Func
	cfunc    *cFunction
	exported bool
}

// Index implements backend.Function.
func (f *Function) Index() int { return f.index }

// Name implements backend.Function.
func (f *Function) Name() string { return f.name }

// IsImported implements backend.Function.
func (f *Function) IsImported() bool { return false }

// CName is the C symbol, known once the function is defined.
func (f *Function) CName() string { return f.cname }

// FunctionImport is a function of another package or of native code.
type FunctionImport struct {
	index int
	cname string
	pkg   *backend.Package
}

// Index implements backend.Function.
func (f *FunctionImport) Index() int { return f.index }

// Name implements backend.Function; imports are known by their C name.
func (f *FunctionImport) Name() string { return f.cname }

// IsImported implements backend.Function.
func (f *FunctionImport) IsImported() bool { return true }

type globalVar struct {
	v        *ssa.Variable
	imported bool
	native   bool
}

type ifaceDescriptor struct {
	name  string
	table []backend.Function
}

type include struct {
	path   string
	system bool
}

func (i include) String() string {
	if i.system {
		return "#include <" + i.path + ">"
	}
	return "#include \"" + i.path + "\""
}

// CBackend implements backend.Backend for C.
type CBackend struct {
	pkg  *backend.Package
	opts Options

	funcs    []backend.Function
	initFunc *Function
	mainFunc *Function

	globals       []globalVar
	globalStorage map[*ssa.Variable]string

	structNames   map[*types.StructType]string
	structsByName map[string]*types.StructType
	structOrder   []string

	includes    []include
	strs        map[string]*cString
	strOrder    []*cString
	strCount    int
	ifaces      []ifaceDescriptor
	symbols     []string
	symbolIndex map[string]int

	// spawn helpers are shared by all spawns of one signature
	spawnHelpers map[string]bool
	helpers      []*cFunction
	functions    []*cFunction
	main         *cFunction

	executable bool
	generated  bool
	header     string
	impl       string
}

var _ backend.Backend = (*CBackend)(nil)

// New returns a backend for pkg.
func New(pkg *backend.Package, opts Options) *CBackend {
	return &CBackend{
		pkg:           pkg,
		opts:          opts,
		globalStorage: make(map[*ssa.Variable]string),
		structNames:   make(map[*types.StructType]string),
		structsByName: make(map[string]*types.StructType),
		strs:          make(map[string]*cString),
		symbolIndex:   make(map[string]int),
		spawnHelpers:  make(map[string]bool),
	}
}

// qualify prefixes name with the package path.
func (b *CBackend) qualify(pkg *backend.Package, name string) string {
	if pkg == nil || pkg.Path == "" {
		return name
	}
	return pkg.Path + "/" + name
}

func (b *CBackend) hasInclude(path string, system bool) bool {
	for _, inc := range b.includes {
		if inc.path == path && inc.system == system {
			return true
		}
	}
	return false
}

func (b *CBackend) addInclude(path string, system bool) {
	if !b.hasInclude(path, system) {
		b.includes = append(b.includes, include{path: path, system: system})
	}
}

// importOrigin includes the headers declaring what is imported from o.
func (b *CBackend) importOrigin(o backend.Origin) {
	if o.Pkg != nil {
		b.addInclude(o.Pkg.HeaderFile(), false)
		return
	}
	for _, path := range strings.Split(o.Native, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if strings.HasPrefix(path, "<") && strings.HasSuffix(path, ">") {
			b.addInclude(path[1:len(path)-1], true)
		} else {
			b.addInclude(path, false)
		}
	}
}

// ImportFunction implements backend.Backend.
func (b *CBackend) ImportFunction(name string, from backend.Origin, ft *types.FunctionType) (backend.Function, error) {
	if ft == nil {
		return nil, ssa.Buildf("import_function", "function %s has no type", name)
	}
	b.importOrigin(from)
	f := &FunctionImport{index: len(b.funcs), pkg: from.Pkg}
	switch {
	case ft.Conv == types.ConvNative:
		f.cname = name
	case from.Pkg != nil:
		f.cname = Mangle(b.qualify(from.Pkg, name))
	default:
		return nil, ssa.Buildf("import_function", "function %s has no package and is not native", name)
	}
	b.funcs = append(b.funcs, f)
	return f, nil
}

// ImportGlobalVar implements backend.Backend.
func (b *CBackend) ImportGlobalVar(name string, t types.Type, from backend.Origin) (*ssa.Variable, error) {
	if t == nil {
		return nil, ssa.Buildf("import_global", "global %s has no type", name)
	}
	b.importOrigin(from)
	if from.Pkg != nil {
		name = "g_" + Mangle(b.qualify(from.Pkg, name))
	}
	v := b.newGlobal(name, t)
	b.globals = append(b.globals, globalVar{v: v, imported: true, native: from.Pkg == nil})
	return v, nil
}

// DeclareGlobalVar implements backend.Backend.
func (b *CBackend) DeclareGlobalVar(name string, t types.Type) *ssa.Variable {
	v := b.newGlobal("g_"+Mangle(b.qualify(b.pkg, name)), t)
	b.globals = append(b.globals, globalVar{v: v})
	return v
}

func (b *CBackend) newGlobal(name string, t types.Type) *ssa.Variable {
	// counts of 2 keep globals out of every single-use optimization
	v := &ssa.Variable{Name: name, Type: t, ReadCount: 2, WriteCount: 2}
	b.globalStorage[v] = name
	return v
}

// DeclareFunction implements backend.Backend.
func (b *CBackend) DeclareFunction(name string) backend.Function {
	if name == "" {
		name = "f" + strconv.Itoa(len(b.funcs)+1)
	}
	f := &Function{index: len(b.funcs), name: name}
	b.funcs = append(b.funcs, f)
	return f
}

// DeclareInitFunction implements backend.Backend.
func (b *CBackend) DeclareInitFunction(name string) backend.Function {
	f := b.DeclareFunction(name).(*Function)
	b.initFunc = f
	return f
}

// InitFunction implements backend.Backend.
func (b *CBackend) InitFunction() backend.Function {
	if b.initFunc == nil || isEmpty(b.initFunc.body) {
		return nil
	}
	return b.initFunc
}

// isEmpty reports whether a function has no body or only its closing end.
func isEmpty(body *ssa.Func) bool {
	if body == nil {
		return true
	}
	entry := body.EntryNode()
	if entry == nil || len(entry.Next) == 0 {
		return true
	}
	return entry.Next[0] == entry.BlockPartner
}

// DefineFunction implements backend.Backend.
func (b *CBackend) DefineFunction(body *ssa.Func, fn backend.Function, exported, possibleDuplicate bool) error {
	f, ok := fn.(*Function)
	if !ok {
		return ssa.Invariantf("define_function", "%s is not a function of this package", fn.Name())
	}
	if body == nil {
		return ssa.Invariantf("define_function", "%s has no body", f.name)
	}
	if f.body != nil {
		return ssa.Buildf("define_function", "%s is defined twice", f.name)
	}
	name := f.name
	if !possibleDuplicate {
		name = b.qualify(b.pkg, name)
	}
	name = Mangle(name)
	switch {
	case f == b.initFunc:
		f.cname = "s_" + name
	case exported && f.name == "main":
		b.mainFunc = f
		b.executable = true
		f.cname = "f_" + name
		f.exported = true
	case exported:
		f.cname = name
		f.exported = true
	default:
		f.cname = "f_" + name
	}
	f.body = body
	f.cfunc = &cFunction{name: f.cname, ret: "void", possibleDuplicate: possibleDuplicate}
	return nil
}

// AddSymbol implements backend.Backend. Equal names share one symbol.
func (b *CBackend) AddSymbol(name string) int {
	if i, ok := b.symbolIndex[name]; ok {
		return i
	}
	b.symbols = append(b.symbols, name)
	b.symbolIndex[name] = len(b.symbols) - 1
	return len(b.symbols) - 1
}

func symbolName(name string) string { return "sym_" + Mangle(name) }

// AddInterfaceDescriptor implements backend.Backend. Entries are resolved
// to C names when the module is generated, so the table may reference
// functions that are defined later.
func (b *CBackend) AddInterfaceDescriptor(name string, table []backend.Function) (int, error) {
	for i, f := range table {
		if f == nil {
			continue
		}
		if f.Index() < 0 || f.Index() >= len(b.funcs) || b.funcs[f.Index()] != f {
			return 0, ssa.Buildf("interface_descriptor", "entry %d of %s is not a function of this backend", i, name)
		}
	}
	b.ifaces = append(b.ifaces, ifaceDescriptor{name: "t_" + md5Hex(name), table: table})
	return len(b.ifaces) - 1, nil
}

// funcName returns the C name used to call the function with index i.
func (b *CBackend) funcName(i int64) (string, error) {
	if i < 0 || i >= int64(len(b.funcs)) {
		return "", ssa.Invariantf("emit", "function index %d out of range", i)
	}
	switch f := b.funcs[i].(type) {
	case *Function:
		if f.cname == "" {
			return "", ssa.Invariantf("emit", "function %s is declared but never defined", f.name)
		}
		return f.cname, nil
	case *FunctionImport:
		return f.cname, nil
	}
	return "", ssa.Invariantf("emit", "function index %d has unknown handle", i)
}

func (b *CBackend) isImport(i int64) bool {
	if i < 0 || i >= int64(len(b.funcs)) {
		return false
	}
	return b.funcs[i].IsImported()
}

// IsExecutable reports whether the package exports main.
func (b *CBackend) IsExecutable() bool { return b.executable }

// Header returns the header unit. Valid after GenerateModule.
func (b *CBackend) Header() string { return b.header }

// Implementation returns the implementation unit. Valid after GenerateModule.
func (b *CBackend) Implementation() string { return b.impl }

// GenerateModule implements backend.Backend.
func (b *CBackend) GenerateModule(ctx context.Context, emitIR bool, initPackages, duplicateCodePackages []*backend.Package) (string, error) {
	if b.generated {
		return "", ssa.Invariantf("generate_module", "module of %s generated twice", b.pkg.HeaderFile())
	}
	b.generated = true
	b.addInclude("stdint.h", true)
	b.addInclude("stdlib.h", true)
	b.addInclude("fyr.h", false)
	for _, p := range initPackages {
		b.addInclude(p.HeaderFile(), false)
	}
	for _, p := range duplicateCodePackages {
		b.addInclude(p.HeaderFile(), false)
	}

	var ir strings.Builder
	for _, fn := range b.funcs {
		f, ok := fn.(*Function)
		if !ok {
			continue
		}
		if f.body == nil {
			if f == b.initFunc {
				continue
			}
			return "", ssa.Invariantf("generate_module", "function %s is declared but never defined", f.name)
		}
		if f == b.initFunc && isEmpty(f.body) {
			continue
		}
		var dump io.Writer
		if emitIR {
			dump = &ir
		}
		if err := b.generateFunction(ctx, f, dump); err != nil {
			return "", err
		}
		b.functions = append(b.functions, f.cfunc)
	}
	if b.mainFunc != nil {
		if err := b.synthesizeMain(initPackages); err != nil {
			return "", err
		}
	}
	if err := b.assemble(); err != nil {
		return "", err
	}
	return ir.String(), nil
}

// synthesizeMain writes the C entry point: run the package initializers,
// then the user main, bracketed by the coroutine runtime when it is used.
func (b *CBackend) synthesizeMain(initPackages []*backend.Package) error {
	m := &cFunction{
		name:   "main",
		ret:    "int",
		params: []cParam{{typ: "int", name: "argc"}, {typ: "char**", name: "argv"}},
	}
	if f := b.InitFunction(); f != nil {
		m.body = append(m.body, call(b.initFunc.cname))
	}
	for _, p := range initPackages {
		if p.Path == "" {
			return ssa.Invariantf("main", "init package without a path")
		}
		m.body = append(m.body, call("s_"+Mangle(p.Path+"/init")))
	}
	userMain := call(b.mainFunc.cname)
	returnsValue := b.mainFunc.cfunc.ret != "void"
	if b.usesCoroutines() {
		m.body = append(m.body, call("fyr_component_main_start"))
		if returnsValue {
			m.body = append(m.body, &cVar{typ: "int", name: "ret", init: userMain})
		} else {
			m.body = append(m.body, userMain, &cVar{typ: "int", name: "ret", init: &cConst{code: "0"}})
		}
		m.body = append(m.body, call("fyr_component_main_end"), &cReturn{x: &cConst{code: "ret"}})
	} else if returnsValue {
		m.body = append(m.body, &cReturn{x: userMain})
	} else {
		m.body = append(m.body, userMain, &cReturn{x: &cConst{code: "0"}})
	}
	b.main = m
	return nil
}

func (b *CBackend) usesCoroutines() bool { return b.hasInclude("fyr_spawn.h", false) }
