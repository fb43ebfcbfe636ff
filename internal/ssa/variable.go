package ssa

import "fyrc/internal/types"

// Variable is a typed storage slot. Read and write counts are maintained as
// nodes referencing it are built and removed; they drive liveness.
type Variable struct {
	Name string
	Type types.Type

	ReadCount  int
	WriteCount int

	// IsConstant is set by the constant folder; Constant holds the literal.
	IsConstant bool
	Constant   Arg

	// IsCopy marks a variable folded into CopiedValue by copy elision.
	IsCopy      bool
	CopiedValue *Variable

	// Addressable is set once addr_of is applied; it disables constant
	// folding and copy elision for the variable.
	Addressable bool
	// NeedsRefCounting widens the storage with two header words.
	NeedsRefCounting bool
}

func (v *Variable) String() string {
	if v == nil {
		return "<nil>"
	}
	return v.Name
}

// IsTemporary reports whether the variable was created by the builder rather than declared.
func (v *Variable) IsTemporary() bool {
	return len(v.Name) > 0 && v.Name[0] == '%'
}
