// Package backend defines the contract between the driver that builds SSA
// functions and a code generator that turns a whole package into target
// source.
package backend

import (
	"context"
	"path/filepath"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

// Package identifies the package being compiled or imported.
type Package struct {
	// Path is the import path, e.g. "net/http". Empty for a standalone file.
	Path string
	// ObjFilePath and ObjFileName locate the output when Path is empty.
	ObjFilePath string
	ObjFileName string
}

// HeaderFile returns the name under which other units include the package.
func (p *Package) HeaderFile() string {
	if p.Path != "" {
		return p.Path + ".h"
	}
	return filepath.Join(p.ObjFilePath, p.ObjFileName+".h")
}

// Origin tells where an imported function or variable lives: either in
// another compiled package or in native headers. Native is a comma separated
// include list; entries in angle brackets are system headers.
type Origin struct {
	Pkg    *Package
	Native string
}

// IsNative reports whether the origin refers to native code.
func (o Origin) IsNative() bool { return o.Pkg == nil }

// Function is a handle on a function known to a backend, either defined in
// the package or imported. Index is the operand used by call, spawn,
// addr_of_func and destructor arguments.
type Function interface {
	Index() int
	Name() string
	IsImported() bool
}

// Backend generates code for one package.
type Backend interface {
	ImportFunction(name string, from Origin, ft *types.FunctionType) (Function, error)
	ImportGlobalVar(name string, t types.Type, from Origin) (*ssa.Variable, error)
	DeclareGlobalVar(name string, t types.Type) *ssa.Variable
	// DeclareFunction reserves a function index. An empty name picks a
	// synthetic one.
	DeclareFunction(name string) Function
	DeclareInitFunction(name string) Function
	DefineFunction(body *ssa.Func, f Function, exported, possibleDuplicate bool) error
	// GenerateModule lowers every defined function and assembles the
	// module. With emitIR it returns the IR after every phase.
	GenerateModule(ctx context.Context, emitIR bool, initPackages, duplicateCodePackages []*Package) (string, error)
	// AddInterfaceDescriptor registers a dispatch table; nil entries are
	// emitted as null.
	AddInterfaceDescriptor(name string, table []Function) (int, error)
	AddSymbol(name string) int
	// InitFunction returns the init function unless it is missing or empty.
	InitFunction() Function
}
