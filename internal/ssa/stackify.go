package ssa

import "fyrc/internal/types"

// Stackify folds single-use temporaries into their consumers so the body
// becomes a sequence of expression trees. Evaluation order and memory
// effects are preserved; inlining never crosses control flow or a
// side-effect barrier. It returns the number of operands folded.
func Stackify(f *Func) int {
	entry := f.EntryNode()
	if entry == nil {
		return 0
	}
	return stackifyStep(f, entry, f.partner(entry))
}

func stackifyStep(f *Func, start, end *Node) int {
	folded := 0
	// the first node has nothing to fold
	for n := f.next(start); n != nil && n != end; n = f.next(n) {
		if n.Kind == KindAddrOf {
			// the address of a folded expression is not the address of a local
			continue
		}
		if n.Kind == KindIf && len(n.Next) > 1 && n.Next[1] != n.BlockPartner {
			folded += stackifyStep(f, f.Node(n.Next[1]), f.partner(n))
		}
		var doNotInline []*Variable
		assigned := make(map[*Variable]bool)
		for i, a := range n.Args {
			if a.Kind == ArgVar && a.Var.ReadCount == 1 {
				if inline := findInline(f, f.prev(n), a.Var, doNotInline, assigned); inline != nil {
					inline.Assign.ReadCount--
					inline.Assign.WriteCount--
					inline.Assign = nil
					if inline.Kind == KindConst {
						n.Args[i] = inline.Args[0]
					} else {
						n.Args[i] = Nested(inline.ID)
					}
					// detaching a straight-line node cannot fail
					_ = f.RemoveNode(inline)
					folded++
				}
			}
			switch a.Kind {
			case ArgVar:
				doNotInline = append(doNotInline, a.Var)
			case ArgNode:
				collectAssignments(f, f.Node(a.Node), nil, assigned)
			}
		}
		if n.Kind == KindStep || n.Kind == KindGotoStep {
			break
		}
	}
	return folded
}

// findInline searches backwards from n for the node assigning v and
// returns it if moving it to the consumer is safe.
func findInline(f *Func, n *Node, v *Variable, doNotInline []*Variable, assigned map[*Variable]bool) *Node {
	for ; n != nil; n = f.prev(n) {
		if n.Kind.endsStraightLine() {
			return nil
		}
		if n.Assign == v {
			switch {
			case n.Kind.IsDecl(), n.Kind == KindCallEnd:
				return nil
			case isCoroutineCall(n):
				return nil
			case assignsTo(f, n, doNotInline), readsFrom(f, n, assigned):
				return nil
			}
			return n
		}
		if n.Assign != nil && collectAssignments(f, n, v, assigned) {
			return nil
		}
		if crossesBarrier(f, n) {
			return nil
		}
	}
	return nil
}

func isCoroutineCall(n *Node) bool {
	if n.Kind != KindCall && n.Kind != KindCallIndirect {
		return false
	}
	ft, ok := n.Type.(*types.FunctionType)
	return ok && ft.IsAsync()
}

// collectAssignments records the variables n and its operands assign. It
// returns true if one of them is v.
func collectAssignments(f *Func, n *Node, v *Variable, assigned map[*Variable]bool) bool {
	if n == nil || n.Assign == nil {
		return false
	}
	if n.Assign == v {
		return true
	}
	assigned[n.Assign] = true
	for _, a := range n.Args {
		if a.Kind == ArgNode && collectAssignments(f, f.Node(a.Node), v, assigned) {
			return true
		}
	}
	return false
}

func assignsTo(f *Func, n *Node, vars []*Variable) bool {
	for _, v := range vars {
		if n.Assign == v {
			return true
		}
	}
	for _, a := range n.Args {
		if a.Kind == ArgNode && assignsTo(f, f.Node(a.Node), vars) {
			return true
		}
	}
	return false
}

func readsFrom(f *Func, n *Node, vars map[*Variable]bool) bool {
	for _, a := range n.Args {
		switch a.Kind {
		case ArgVar:
			if vars[a.Var] {
				return true
			}
		case ArgNode:
			if readsFrom(f, f.Node(a.Node), vars) {
				return true
			}
		}
	}
	return false
}

func crossesBarrier(f *Func, n *Node) bool {
	if n.Kind.isBarrier() {
		return true
	}
	for _, a := range n.Args {
		if a.Kind == ArgNode && crossesBarrier(f, f.Node(a.Node)) {
			return true
		}
	}
	return false
}
