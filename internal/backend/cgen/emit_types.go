package cgen

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

var scalarCTypes = map[types.Scalar]string{
	types.I8:   "uint8_t",
	types.S8:   "int8_t",
	types.I16:  "uint16_t",
	types.S16:  "int16_t",
	types.I32:  "uint32_t",
	types.S32:  "int32_t",
	types.I64:  "uint64_t",
	types.S64:  "int64_t",
	types.F32:  "float",
	types.F64:  "double",
	types.Addr: "addr_t",
	types.Ptr:  "addr_t",
	types.Int:  "uint_t",
	types.SInt: "int_t",
}

// mapType returns the C spelling of t. cstyle spells pointers as void* for
// calls into native code. refCounted wraps t in the two word header of
// reference counted storage.
func (b *CBackend) mapType(t types.Type, cstyle, refCounted bool) (string, error) {
	if refCounted {
		if _, ok := t.(*types.FunctionType); ok {
			return "", ssa.Invariantf("map_type", "function type %s cannot be reference counted", t)
		}
		s := types.NewStruct("", false)
		s.AddField("word1", types.SInt, 1)
		s.AddField("word2", types.SInt, 1)
		s.AddField("value", t, 1)
		return b.mapType(s, cstyle, false)
	}
	switch x := t.(type) {
	case types.Scalar:
		if c, ok := scalarCTypes[x]; ok {
			return c, nil
		}
		return "", ssa.Invariantf("map_type", "unknown scalar %s", x)
	case *types.PointerType:
		if !cstyle {
			return "addr_t", nil
		}
		if x.IsConst {
			return "const void*", nil
		}
		return "void*", nil
	case *types.FunctionType:
		ret := "void"
		if x.Result != nil {
			r, err := b.mapType(x.Result, cstyle, false)
			if err != nil {
				return "", err
			}
			ret = r
		}
		params := make([]string, 0, len(x.Params))
		for _, p := range x.Params {
			c, err := b.mapType(p, cstyle, false)
			if err != nil {
				return "", err
			}
			params = append(params, c)
		}
		return ret + "(*)(" + strings.Join(params, ",") + ")", nil
	case *types.StructType:
		name, err := b.registerStruct(x)
		if err != nil {
			return "", err
		}
		if x.IsUnion {
			return "union " + name, nil
		}
		return "struct " + name, nil
	case nil:
		return "", ssa.Invariantf("map_type", "missing type")
	default:
		return "", ssa.Invariantf("map_type", "unsupported type %T", t)
	}
}

// signedType returns the signed twin of an unsigned integer type.
func (b *CBackend) signedType(t types.Type) (string, error) {
	switch t {
	case types.I8:
		return "int8_t", nil
	case types.I16:
		return "int16_t", nil
	case types.I32:
		return "int32_t", nil
	case types.I64:
		return "int64_t", nil
	case types.Addr, types.Ptr:
		return "saddr_t", nil
	case types.Int:
		return "int_t", nil
	}
	return "", ssa.Invariantf("map_type", "no signed twin of %v", t)
}

// unsignedType returns the unsigned twin of a signed integer type.
func (b *CBackend) unsignedType(t types.Type) (string, error) {
	switch t {
	case types.S8:
		return "uint8_t", nil
	case types.S16:
		return "uint16_t", nil
	case types.S32:
		return "uint32_t", nil
	case types.S64:
		return "uint64_t", nil
	case types.SInt:
		return "uint_t", nil
	}
	return "", ssa.Invariantf("map_type", "no unsigned twin of %v", t)
}

func isSigned(t types.Type) bool {
	s, ok := t.(types.Scalar)
	return ok && s.IsSigned()
}

// typecode is a structural spelling of t: equal codes mean the C layouts
// agree.
func (b *CBackend) typecode(t types.Type) (string, error) {
	s, ok := t.(*types.StructType)
	if !ok {
		return b.mapType(t, false, false)
	}
	var sb strings.Builder
	if s.IsUnion {
		sb.WriteByte('u')
	}
	sb.WriteByte('{')
	for _, f := range s.AllFields() {
		code, err := b.typecode(f.Type)
		if err != nil {
			return "", err
		}
		sb.WriteString("[" + strconv.Itoa(f.Count) + "]" + code + ",")
	}
	sb.WriteByte('}')
	return sb.String(), nil
}

func (b *CBackend) mangledTypecode(t types.Type) (string, error) {
	code, err := b.typecode(t)
	if err != nil {
		return "", err
	}
	return md5Hex(code), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// registerStruct names a struct type and queues its declaration together
// with the structs it embeds by value.
func (b *CBackend) registerStruct(s *types.StructType) (string, error) {
	if name, ok := b.structNames[s]; ok {
		return name, nil
	}
	var name string
	switch {
	case s.Name == "":
		tc, err := b.mangledTypecode(s)
		if err != nil {
			return "", err
		}
		name = "ta_struct" + tc
	case s.PkgPath != "":
		name = Mangle(s.PkgPath + "/" + s.Name)
	default:
		name = Mangle(s.Name)
	}
	b.structNames[s] = name
	if _, ok := b.structsByName[name]; ok {
		// a structurally identical anonymous struct was registered before
		return name, nil
	}
	b.structsByName[name] = s
	b.structOrder = append(b.structOrder, name)
	for _, f := range s.AllFields() {
		if inner, ok := f.Type.(*types.StructType); ok {
			if _, err := b.registerStruct(inner); err != nil {
				return "", err
			}
		}
	}
	return name, nil
}

// orderedStructs returns the registered structs so that every struct
// embedded by value is declared before its user. Pointer fields do not
// constrain the order.
func (b *CBackend) orderedStructs() []string {
	out := make([]string, 0, len(b.structOrder))
	done := make(map[string]bool, len(b.structOrder))
	var visit func(name string)
	visit = func(name string) {
		if done[name] {
			return
		}
		done[name] = true
		for _, f := range b.structsByName[name].AllFields() {
			if inner, ok := f.Type.(*types.StructType); ok {
				visit(b.structNames[inner])
			}
		}
		out = append(out, name)
	}
	for _, name := range b.structOrder {
		visit(name)
	}
	return out
}

func (b *CBackend) structDecl(name string) (string, error) {
	s := b.structsByName[name]
	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef S_%s\n#define S_%s\n", name, name)
	if s.IsUnion {
		sb.WriteString("union ")
	} else {
		sb.WriteString("struct ")
	}
	sb.WriteString(name + " {\n")
	for _, f := range s.AllFields() {
		typ, err := b.mapType(f.Type, false, false)
		if err != nil {
			return "", fmt.Errorf("field %s of %s: %w", f.Name, name, err)
		}
		decl := declare(typ, f.Name)
		if f.Count > 1 {
			decl += "[" + strconv.Itoa(f.Count) + "]"
		}
		sb.WriteString("    " + decl + ";\n")
	}
	sb.WriteString("};\n#endif\n")
	return sb.String(), nil
}
