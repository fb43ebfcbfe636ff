package types

type typePair struct{ a, b Type }

// Compare reports structural equality. Struct names and field names are
// ignored; field count and pairwise field types must match.
func Compare(a, b Type) bool {
	return compare(a, b, make(map[typePair]struct{}))
}

func compare(a, b Type, seen map[typePair]struct{}) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch x := a.(type) {
	case *StructType:
		y, ok := b.(*StructType)
		if !ok || x.IsUnion != y.IsUnion {
			return false
		}
		key := typePair{a, b}
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
		xf, yf := x.AllFields(), y.AllFields()
		if len(xf) != len(yf) {
			return false
		}
		for i := range xf {
			if !compare(xf[i].Type, yf[i].Type, seen) {
				return false
			}
		}
		return true
	case *PointerType:
		y, ok := b.(*PointerType)
		return ok && compare(x.Elem, y.Elem, seen)
	case *FunctionType:
		y, ok := b.(*FunctionType)
		if !ok || x.Conv != y.Conv || len(x.Params) != len(y.Params) {
			return false
		}
		if (x.Result == nil) != (y.Result == nil) {
			return false
		}
		if x.Result != nil && !compare(x.Result, y.Result, seen) {
			return false
		}
		for i := range x.Params {
			if !compare(x.Params[i], y.Params[i], seen) {
				return false
			}
		}
		return true
	}
	return false
}
