package ssa

import (
	"errors"
	"fmt"
)

// ErrorKind classifies compiler failures.
type ErrorKind uint8

const (
	// ErrInvariant means the IR broke an assumption of the running phase.
	// It points at a defect in an earlier phase or in the front-end.
	ErrInvariant ErrorKind = iota + 1
	// ErrUnimplemented means the IR shape is recognized but not lowered.
	ErrUnimplemented
	// ErrBuild is a consistency check raised while the graph is constructed.
	ErrBuild
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvariant:
		return "invariant violation"
	case ErrUnimplemented:
		return "not implemented"
	case ErrBuild:
		return "build error"
	default:
		return fmt.Sprintf("error(%d)", uint8(k))
	}
}

// Error is returned by the builder, the passes and the backends.
type Error struct {
	Kind ErrorKind
	Op   string // phase or operation that failed
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.Kind.String() + ": " + e.Msg
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Msg
}

// Invariantf reports a broken IR assumption.
func Invariantf(op, format string, args ...any) error {
	return &Error{Kind: ErrInvariant, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Unimplementedf reports an IR shape that is not lowered yet.
func Unimplementedf(op, format string, args ...any) error {
	return &Error{Kind: ErrUnimplemented, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Buildf reports a construction-time consistency failure.
func Buildf(op, format string, args ...any) error {
	return &Error{Kind: ErrBuild, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
