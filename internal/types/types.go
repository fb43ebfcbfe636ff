// Package types describes the value types of the SSA IR and computes their
// memory layout for a target.
package types

import (
	"fmt"
	"strings"
)

// Type is implemented by every IR type.
type Type interface {
	// String returns the type code. Equal codes imply equal layout.
	String() string
	isType()
}

// Scalar enumerates the built-in value kinds.
type Scalar uint8

const (
	// I8 is an unsigned 8-bit integer.
	I8 Scalar = iota + 1
	// I16 is an unsigned 16-bit integer.
	I16
	// I32 is an unsigned 32-bit integer.
	I32
	// I64 is an unsigned 64-bit integer.
	I64
	// S8 is a signed 8-bit integer.
	S8
	// S16 is a signed 16-bit integer.
	S16
	// S32 is a signed 32-bit integer.
	S32
	// S64 is a signed 64-bit integer.
	S64
	// Addr is an opaque address, sized like a pointer.
	Addr
	// F32 is a single precision float.
	F32
	// F64 is a double precision float.
	F64
	// Ptr is an untyped pointer.
	Ptr
	// Int is the platform unsigned integer.
	Int
	// SInt is the platform signed integer.
	SInt
)

var scalarNames = [...]string{
	I8: "i8", I16: "i16", I32: "i32", I64: "i64",
	S8: "s8", S16: "s16", S32: "s32", S64: "s64",
	Addr: "addr", F32: "f32", F64: "f64", Ptr: "ptr",
	Int: "int", SInt: "sint",
}

func (s Scalar) String() string {
	if int(s) < len(scalarNames) && scalarNames[s] != "" {
		return scalarNames[s]
	}
	return fmt.Sprintf("scalar(%d)", uint8(s))
}

func (Scalar) isType() {}

// ParseScalar maps a scalar type code back to its kind.
func ParseScalar(name string) (Scalar, bool) {
	for i, n := range scalarNames {
		if n != "" && n == name {
			return Scalar(i), true
		}
	}
	return 0, false
}

// IsSigned reports whether the scalar is a signed integer.
func (s Scalar) IsSigned() bool {
	switch s {
	case S8, S16, S32, S64, SInt:
		return true
	}
	return false
}

// IsFloat reports whether the scalar is a floating point kind.
func (s Scalar) IsFloat() bool { return s == F32 || s == F64 }

// IsInteger reports whether the scalar is an integer kind, addresses included.
func (s Scalar) IsInteger() bool { return !s.IsFloat() }

// PointerType is a typed pointer.
type PointerType struct {
	Elem    Type
	IsConst bool
}

// NewPointer returns a pointer to elem.
func NewPointer(elem Type, isConst bool) *PointerType {
	return &PointerType{Elem: elem, IsConst: isConst}
}

func (p *PointerType) String() string {
	if p.IsConst {
		return "const*" + p.Elem.String()
	}
	return "*" + p.Elem.String()
}

func (*PointerType) isType() {}

// Finalize lays out the pointed-to struct, if any. Cycles through pointers
// terminate because a struct counts as finalized before its pointer fields are visited.
func (p *PointerType) Finalize(t Target) error {
	switch e := p.Elem.(type) {
	case *StructType:
		return e.Finalize(t)
	case *PointerType:
		return e.Finalize(t)
	}
	return nil
}

// Field is one struct member. Count > 1 declares an inline array.
type Field struct {
	Name  string
	Type  Type
	Count int
}

// StructType is a struct or union with lazily computed layout.
type StructType struct {
	Name    string
	PkgPath string
	Fields  []Field
	IsUnion bool
	// Extends embeds another struct: its fields come first in the layout,
	// in field indexes and in the emitted declaration.
	Extends *StructType

	finalized  bool
	finalizing bool
	size       int
	align      int
	offsets    map[string]int
}

// NewStruct returns an empty struct type. An empty name marks it anonymous.
func NewStruct(name string, isUnion bool) *StructType {
	return &StructType{Name: name, IsUnion: isUnion, align: 1}
}

// AddField appends a field. Fields must not be added after Finalize.
func (s *StructType) AddField(name string, t Type, count int) {
	if count == 0 {
		count = 1
	}
	s.Fields = append(s.Fields, Field{Name: name, Type: t, Count: count})
}

func (s *StructType) String() string {
	if s.Name != "" {
		if s.IsUnion {
			return "union " + s.Name
		}
		return "struct " + s.Name
	}
	var sb strings.Builder
	if s.IsUnion {
		sb.WriteString("union{")
	} else {
		sb.WriteString("struct{")
	}
	for i, f := range s.AllFields() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(f.Type.String())
		if f.Count > 1 {
			fmt.Fprintf(&sb, "[%d]", f.Count)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func (*StructType) isType() {}

// Finalized reports whether the layout has been computed.
func (s *StructType) Finalized() bool { return s.finalized }

// Size returns the padded struct size. Valid after Finalize.
func (s *StructType) Size() int { return s.size }

// Align returns the struct alignment. Valid after Finalize.
func (s *StructType) Align() int { return s.align }

// AllFields returns the fields of the extended structs followed by the
// fields declared on s.
func (s *StructType) AllFields() []Field {
	if s.Extends == nil {
		return s.Fields
	}
	var chain []*StructType
	seen := make(map[*StructType]bool)
	for st := s; st != nil && !seen[st]; st = st.Extends {
		seen[st] = true
		chain = append(chain, st)
	}
	var out []Field
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Fields...)
	}
	return out
}

// extendsCycle reports whether the Extends chain of s loops.
func (s *StructType) extendsCycle() bool {
	seen := make(map[*StructType]bool)
	for st := s; st != nil; st = st.Extends {
		if seen[st] {
			return true
		}
		seen[st] = true
	}
	return false
}

// Field looks up a field by name, falling back to the extended struct.
func (s *StructType) Field(name string) (Field, bool) {
	for st := s; st != nil; st = st.Extends {
		for _, f := range st.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// FieldIndex returns the position of a field in AllFields.
func (s *StructType) FieldIndex(name string) (int, bool) {
	for i, f := range s.AllFields() {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// FieldOffset returns the byte offset of a field, including fields of the
// extended struct.
func (s *StructType) FieldOffset(name string) (int, error) {
	if !s.finalized {
		return 0, &LayoutError{Kind: LayoutErrNotFinalized, Struct: s.String()}
	}
	if off, ok := s.offsets[name]; ok {
		return off, nil
	}
	return 0, &LayoutError{Kind: LayoutErrUnknownField, Struct: s.String(), Field: name}
}

// CallingConvention selects how a function is called.
type CallingConvention uint8

const (
	// ConvFyr is the default convention of compiled functions.
	ConvFyr CallingConvention = iota
	// ConvFyrCoroutine marks a function that may suspend.
	ConvFyrCoroutine
	// ConvSystem is the platform C convention.
	ConvSystem
	// ConvNative calls a host function by its unmangled name.
	ConvNative
)

var convNames = [...]string{"fyr", "fyrCoroutine", "system", "native"}

func (c CallingConvention) String() string {
	if int(c) < len(convNames) {
		return convNames[c]
	}
	return fmt.Sprintf("conv(%d)", uint8(c))
}

// ParseConvention maps a convention name to its value.
func ParseConvention(name string) (CallingConvention, bool) {
	for i, n := range convNames {
		if n == name {
			return CallingConvention(i), true
		}
	}
	return 0, false
}

// FunctionType is a function signature. Result is nil for procedures.
type FunctionType struct {
	Params []Type
	Result Type
	Conv   CallingConvention
}

// NewFunction returns a function type.
func NewFunction(params []Type, result Type, conv CallingConvention) *FunctionType {
	return &FunctionType{Params: params, Result: result, Conv: conv}
}

// IsAsync reports whether calls to the function are suspension points.
func (f *FunctionType) IsAsync() bool { return f.Conv == ConvFyrCoroutine }

func (f *FunctionType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(") => ")
	if f.Result != nil {
		sb.WriteString(f.Result.String())
	} else {
		sb.WriteString("void")
	}
	if f.Conv != ConvFyr {
		sb.WriteByte(' ')
		sb.WriteString(f.Conv.String())
	}
	return sb.String()
}

func (*FunctionType) isType() {}

// IsSigned reports whether t is a signed integer scalar.
func IsSigned(t Type) bool {
	s, ok := t.(Scalar)
	return ok && s.IsSigned()
}

// IsFloat reports whether t is a floating point scalar.
func IsFloat(t Type) bool {
	s, ok := t.(Scalar)
	return ok && s.IsFloat()
}

// IsInteger reports whether t is an integer scalar.
func IsInteger(t Type) bool {
	s, ok := t.(Scalar)
	return ok && s.IsInteger()
}
