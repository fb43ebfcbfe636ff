package ssa

import (
	"errors"
	"fmt"
)

// Validate checks the structural invariants of a function body: edge
// symmetry, scope pairing and operand well-formedness.
func Validate(f *Func) error {
	if err := checkClosed(f); err != nil {
		return err
	}
	var errs []error
	reached := make(map[NodeID]bool)
	var branches []*Node
	report := func(n *Node, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: node %d (%s): %s", f.Name, n.ID, n.Kind, fmt.Sprintf(format, args...)))
	}
	f.Reachable(func(n *Node) {
		reached[n.ID] = true
		if len(n.Next) > 2 || (len(n.Next) == 2 && n.Kind != KindIf) {
			report(n, "%d successors", len(n.Next))
		}
		if len(n.Prev) > 2 || (len(n.Prev) == 2 && n.Kind != KindEnd) {
			report(n, "%d predecessors", len(n.Prev))
		}
		for _, id := range n.Next {
			m := f.Node(id)
			if m == nil {
				report(n, "successor %d does not exist", id)
			} else if indexOf(m.Prev, n.ID) < 0 {
				report(n, "successor %d does not link back", id)
			}
		}
		for _, id := range n.Prev {
			m := f.Node(id)
			if m == nil {
				report(n, "predecessor %d does not exist", id)
			} else if indexOf(m.Next, n.ID) < 0 {
				report(n, "predecessor %d does not link forward", id)
			}
		}
		if n.Kind.OpensScope() {
			end := f.partner(n)
			if end == nil || end.Kind != KindEnd || end.BlockPartner != n.ID {
				report(n, "scope is not paired with an end")
			}
		}
		if n.Kind == KindEnd {
			if open := f.partner(n); open == nil || open.BlockPartner != n.ID {
				report(n, "end is not paired with a scope")
			}
		}
		switch n.Kind {
		case KindGotoStep, KindGotoStepIf:
			if n.BlockPartner != EndOfFunction {
				if s := f.partner(n); s == nil || s.Kind != KindStep {
					report(n, "destination is not a step")
				}
			}
		case KindBr, KindBrIf:
			if t := f.partner(n); t == nil || !t.Kind.OpensScope() {
				report(n, "branch target is not a scope")
			} else {
				branches = append(branches, n)
			}
		}
		for i, a := range n.Args {
			switch a.Kind {
			case ArgVar:
				if a.Var == nil {
					report(n, "operand %d is a nil variable", i)
				}
			case ArgNode:
				inner := f.Node(a.Node)
				if inner == nil {
					report(n, "operand %d refers to missing node %d", i, a.Node)
				} else if len(inner.Next) != 0 || len(inner.Prev) != 0 {
					report(n, "nested operand %d is still linked into the chain", i)
				}
			case ArgInt, ArgFloat, ArgString:
			default:
				report(n, "operand %d has no kind", i)
			}
		}
	})
	for _, n := range branches {
		if !reached[n.BlockPartner] {
			report(n, "branch target %d is not part of the body", n.BlockPartner)
		}
	}
	return errors.Join(errs...)
}

// checkClosed reports a body whose define never reaches its end.
func checkClosed(f *Func) error {
	entry := f.EntryNode()
	if entry == nil || entry.Kind != KindDefine {
		return Invariantf("validate", "function %q does not start with define", f.Name)
	}
	end := f.partner(entry)
	if end == nil || end.Kind != KindEnd {
		return Invariantf("validate", "define of %q has no end", f.Name)
	}
	closed := false
	f.Reachable(func(n *Node) {
		if n == end {
			closed = true
		}
	})
	if !closed {
		return Buildf("validate", "body of %q is not closed", f.Name)
	}
	return nil
}
