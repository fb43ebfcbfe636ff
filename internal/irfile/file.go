// Package irfile is the on-disk form of one package's SSA as produced by a
// front-end. Functions are stored as builder op streams; Replay feeds them
// through ssa.Builder into any backend.Backend.
package irfile

import (
	"fyrc/internal/backend"
)

// Schema is bumped whenever the encoding of File changes incompatibly.
const Schema uint16 = 1

// Ext is the conventional extension of IR files.
const Ext = ".fyrir"

// File describes one package.
type File struct {
	Schema  uint16     `msgpack:"schema"`
	Package PackageRef `msgpack:"package"`

	Structs    []StructDef `msgpack:"structs,omitempty"`
	Globals    []Global    `msgpack:"globals,omitempty"`
	Funcs      []Func      `msgpack:"funcs,omitempty"`
	Symbols    []string    `msgpack:"symbols,omitempty"`
	Interfaces []Interface `msgpack:"interfaces,omitempty"`

	// InitPackages are initialized by a synthesized main, in order.
	InitPackages []PackageRef `msgpack:"init_packages,omitempty"`
	// DuplicateCodePackages share possibly duplicated code with this one.
	DuplicateCodePackages []PackageRef `msgpack:"dup_packages,omitempty"`
}

// PackageRef mirrors backend.Package.
type PackageRef struct {
	Path        string `msgpack:"path,omitempty"`
	ObjFilePath string `msgpack:"obj_path,omitempty"`
	ObjFileName string `msgpack:"obj_name,omitempty"`
}

// Backend converts the reference.
func (p PackageRef) Backend() *backend.Package {
	return &backend.Package{Path: p.Path, ObjFilePath: p.ObjFilePath, ObjFileName: p.ObjFileName}
}

// DisplayName is the path, or the object file name for standalone files.
func (p PackageRef) DisplayName() string {
	if p.Path != "" {
		return p.Path
	}
	return p.ObjFileName
}

// Origin locates an import. Exactly one of Pkg and Native is set.
type Origin struct {
	Pkg    *PackageRef `msgpack:"pkg,omitempty"`
	Native string      `msgpack:"native,omitempty"`
}

// TypeRef is a type expression. Exactly one of Scalar, Elem, Struct and
// Func is set.
type TypeRef struct {
	Scalar string     `msgpack:"s,omitempty"`
	Elem   *TypeRef   `msgpack:"p,omitempty"`
	Const  bool       `msgpack:"c,omitempty"`
	Struct int        `msgpack:"t,omitempty"` // 1-based index into File.Structs
	Func   *Signature `msgpack:"f,omitempty"`
}

// Signature is a function type.
type Signature struct {
	Params []TypeRef `msgpack:"params,omitempty"`
	Result *TypeRef  `msgpack:"result,omitempty"`
	Conv   string    `msgpack:"conv,omitempty"`
}

type StructDef struct {
	Name    string     `msgpack:"name"`
	PkgPath string     `msgpack:"pkg,omitempty"`
	Union   bool       `msgpack:"union,omitempty"`
	Extends int        `msgpack:"extends,omitempty"` // 1-based index into File.Structs
	Fields  []FieldDef `msgpack:"fields,omitempty"`
}

type FieldDef struct {
	Name  string  `msgpack:"name"`
	Type  TypeRef `msgpack:"type"`
	Count int     `msgpack:"count,omitempty"`
}

// Global is a package variable, imported when From is set.
type Global struct {
	Name string  `msgpack:"name"`
	Type TypeRef `msgpack:"type"`
	From *Origin `msgpack:"from,omitempty"`
}

// Func is an imported or defined function. Its position in File.Funcs is
// the function reference used by ops and operands.
type Func struct {
	Name string `msgpack:"name"`

	// Imports carry an origin and a signature and no body.
	From *Origin   `msgpack:"from,omitempty"`
	Type Signature `msgpack:"type"`

	Init              bool `msgpack:"init,omitempty"`
	Exported          bool `msgpack:"exported,omitempty"`
	PossibleDuplicate bool `msgpack:"dup,omitempty"`
	Body              []Op `msgpack:"body,omitempty"`
}

// Interface is a dispatch table of function references; -1 is a null entry.
type Interface struct {
	Name  string `msgpack:"name"`
	Funcs []int  `msgpack:"funcs"`
}

// Op codes of a function body.
const (
	OpDefine       = "define"
	OpParam        = "param"
	OpResult       = "result"
	OpVar          = "var"
	OpTmp          = "tmp"
	OpAssign       = "assign"
	OpCall         = "call"
	OpCallIndirect = "call_indirect"
	OpSpawn        = "spawn"
	OpSpawnIndir   = "spawn_indirect"
	OpBlock        = "block"
	OpLoop         = "loop"
	OpIf           = "if"
	OpElse         = "else"
	OpEnd          = "end"
	OpBr           = "br"
	OpBrIf         = "br_if"
	OpReturn       = "return"
)

// Op is one builder call. Variables are numbered in declaration order
// starting at 1 (params, results, vars and temporaries alike); a negative
// number -k names global k-1 and VarMem is the memory pseudo-variable that
// stores assign to.
type Op struct {
	Op   string    `msgpack:"op"`
	Kind string    `msgpack:"kind,omitempty"`
	Name string    `msgpack:"name,omitempty"`
	Type *TypeRef  `msgpack:"type,omitempty"`
	Dst  int       `msgpack:"dst,omitempty"`
	Args []Operand `msgpack:"args,omitempty"`
	// Target is the position of the op that opened the scope a branch
	// leaves.
	Target int `msgpack:"target,omitempty"`
	// Func is the callee of call and spawn.
	Func int  `msgpack:"func,omitempty"`
	RC   bool `msgpack:"rc,omitempty"`
}

// VarMem references the memory pseudo-variable.
const VarMem = 1 << 30

// Operand kinds.
const (
	OperandInt uint8 = iota
	OperandFloat
	OperandString
	OperandVar
	// OperandFunc is a function reference resolved to the backend index.
	OperandFunc
)

type Operand struct {
	K uint8   `msgpack:"k"`
	I int64   `msgpack:"i,omitempty"`
	F float64 `msgpack:"f,omitempty"`
	S string  `msgpack:"s,omitempty"`
	V int     `msgpack:"v,omitempty"`
}
