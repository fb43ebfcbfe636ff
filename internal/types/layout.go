package types

import "fmt"

// SizeOf returns the byte size of t, finalizing structs on demand.
func (tg Target) SizeOf(t Type) (int, error) {
	switch x := t.(type) {
	case Scalar:
		return tg.scalarSize(x)
	case *PointerType, *FunctionType:
		return tg.PtrSize, nil
	case *StructType:
		if err := x.Finalize(tg); err != nil {
			return 0, err
		}
		return x.size, nil
	case nil:
		return 0, fmt.Errorf("size of nil type")
	default:
		return 0, fmt.Errorf("size of unsupported type %T", t)
	}
}

// AlignOf returns the natural alignment of t.
func (tg Target) AlignOf(t Type) (int, error) {
	switch x := t.(type) {
	case Scalar:
		return tg.scalarSize(x)
	case *PointerType, *FunctionType:
		return tg.PtrSize, nil
	case *StructType:
		if len(x.AllFields()) == 0 {
			return 1, nil
		}
		if err := x.Finalize(tg); err != nil {
			return 0, err
		}
		return x.align, nil
	case nil:
		return 0, fmt.Errorf("alignment of nil type")
	default:
		return 0, fmt.Errorf("alignment of unsupported type %T", t)
	}
}

// AlignedSizeOf returns the size of t rounded up to its alignment, i.e. its array stride.
func (tg Target) AlignedSizeOf(t Type) (int, error) {
	size, err := tg.SizeOf(t)
	if err != nil {
		return 0, err
	}
	align, err := tg.AlignOf(t)
	if err != nil {
		return 0, err
	}
	return roundUp(size, align), nil
}

func (tg Target) scalarSize(s Scalar) (int, error) {
	switch s {
	case I8, S8:
		return 1, nil
	case I16, S16:
		return 2, nil
	case I32, S32, F32:
		return 4, nil
	case I64, S64, F64:
		return 8, nil
	case Addr, Ptr:
		return tg.PtrSize, nil
	case Int, SInt:
		return tg.IntSize, nil
	default:
		return 0, fmt.Errorf("size of unknown scalar %s", s)
	}
}

// Finalize computes field offsets, alignment and padded size. It runs once;
// later calls are no-ops even if fields changed in between.
func (s *StructType) Finalize(tg Target) error {
	if s.finalized {
		return nil
	}
	if s.finalizing {
		return &LayoutError{Kind: LayoutErrRecursive, Struct: s.String()}
	}
	if s.extendsCycle() {
		return &LayoutError{Kind: LayoutErrRecursive, Struct: s.String()}
	}
	s.finalizing = true
	defer func() { s.finalizing = false }()

	fields := s.AllFields()
	offsets := make(map[string]int, len(fields))
	size, align := 0, 1
	for _, f := range fields {
		if f.Count < 0 {
			return &LayoutError{Kind: LayoutErrNegativeCount, Struct: s.String(), Field: f.Name, Count: f.Count}
		}
		fa, err := tg.AlignOf(f.Type)
		if err != nil {
			return fmt.Errorf("field %s of %s: %w", f.Name, s, err)
		}
		stride, err := tg.AlignedSizeOf(f.Type)
		if err != nil {
			return fmt.Errorf("field %s of %s: %w", f.Name, s, err)
		}
		align = max(align, fa)
		width := stride * f.Count
		if s.IsUnion {
			offsets[f.Name] = 0
			size = max(size, width)
			continue
		}
		size = roundUp(size, fa)
		offsets[f.Name] = size
		size += width
	}
	s.offsets = offsets
	s.align = align
	s.size = roundUp(size, align)
	s.finalized = true

	for _, f := range fields {
		if p, ok := f.Type.(*PointerType); ok {
			if err := p.Finalize(tg); err != nil {
				return err
			}
		}
	}
	return nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	if rem := n % align; rem != 0 {
		return n + align - rem
	}
	return n
}
