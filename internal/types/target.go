package types

// Target describes the platform sizes layout depends on.
type Target struct {
	Name    string // e.g. "c-lp64"
	PtrSize int    // bytes
	IntSize int    // bytes
}

// DefaultTarget is a 64-bit C target with 32-bit native ints.
func DefaultTarget() Target {
	return Target{
		Name:    "c-lp64",
		PtrSize: 8,
		IntSize: 4,
	}
}
