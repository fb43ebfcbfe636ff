package ssa

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"fyrc/internal/trace"
)

// Phase names in pipeline order.
const (
	PhaseOptimizeConstants = "optimize_constants"
	PhaseRemoveDeadCode    = "remove_dead_code"
	PhaseStackify          = "stackify"
	PhaseSMTransform       = "sm_transform"
)

// Prepare runs the per-function lowering pipeline in order: constant
// folding, dead code removal, stackification and, for asynchronous
// functions, the state machine transform. When dump is non-nil the body is
// written to it after every phase.
func Prepare(ctx context.Context, f *Func, dump io.Writer) error {
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID

	run := func(name string, pass func() (string, error)) error {
		span := trace.Begin(tracer, trace.ScopePhase, name, parent)
		extra, err := pass()
		if err == nil {
			err = f.Err()
		}
		if extra != "" {
			span.WithExtra("changed", extra)
		}
		span.WithExtra("nodes", strconv.Itoa(f.LiveCount()))
		if err != nil {
			span.End(err.Error())
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		span.End("")
		if dump != nil {
			if _, err := fmt.Fprintf(dump, "// %s after %s\n%s\n", f.Name, name, f); err != nil {
				return err
			}
		}
		return nil
	}

	if err := f.Err(); err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	if err := checkClosed(f); err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	if err := run(PhaseOptimizeConstants, func() (string, error) {
		return "", OptimizeConstants(f)
	}); err != nil {
		return err
	}
	if err := run(PhaseRemoveDeadCode, func() (string, error) {
		before := f.LiveCount()
		err := RemoveDeadCode(f)
		return strconv.Itoa(before - f.LiveCount()), err
	}); err != nil {
		return err
	}
	if err := run(PhaseStackify, func() (string, error) {
		return strconv.Itoa(Stackify(f)), nil
	}); err != nil {
		return err
	}
	if entry := f.EntryNode(); entry != nil && entry.IsAsync {
		if err := run(PhaseSMTransform, func() (string, error) {
			steps, err := TransformStateMachine(f)
			return strconv.Itoa(steps), err
		}); err != nil {
			return err
		}
	}
	if err := Validate(f); err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	return nil
}

// LiveCount returns the number of nodes reachable from the entry.
func (f *Func) LiveCount() int {
	n := 0
	f.Reachable(func(*Node) { n++ })
	return n
}
