package types

import "fmt"

// LayoutErrorKind enumerates layout failures.
type LayoutErrorKind uint8

const (
	// LayoutErrRecursive indicates a struct that contains itself by value.
	LayoutErrRecursive LayoutErrorKind = iota + 1
	// LayoutErrUnknownField indicates a lookup of a missing field.
	LayoutErrUnknownField
	// LayoutErrNotFinalized indicates an offset query before Finalize.
	LayoutErrNotFinalized
	// LayoutErrNegativeCount indicates an array field with a negative count.
	LayoutErrNegativeCount
)

// LayoutError reports a failed layout computation or query.
type LayoutError struct {
	Kind   LayoutErrorKind
	Struct string
	Field  string
	Count  int // for LayoutErrNegativeCount
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrRecursive:
		return fmt.Sprintf("recursive value type has infinite size (%s)", e.Struct)
	case LayoutErrUnknownField:
		return fmt.Sprintf("unknown field %q in %s", e.Field, e.Struct)
	case LayoutErrNotFinalized:
		return fmt.Sprintf("layout of %s queried before finalize", e.Struct)
	case LayoutErrNegativeCount:
		return fmt.Sprintf("negative array count %d for field %q in %s", e.Count, e.Field, e.Struct)
	default:
		return fmt.Sprintf("layout error kind=%d in %s", e.Kind, e.Struct)
	}
}
