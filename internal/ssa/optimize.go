package ssa

// OptimizeConstants folds variables that are written exactly once with a
// literal: the assigning node is deleted and every later read is replaced by
// the literal. Propagation runs forward only.
func OptimizeConstants(f *Func) error {
	entry := f.EntryNode()
	if entry == nil {
		return Invariantf("optimize_constants", "function has no entry")
	}
	return optimizeConstants(f, entry, f.partner(entry))
}

func optimizeConstants(f *Func, start, end *Node) error {
	for n := start; n != nil && n != end; {
		if n.Kind == KindIf && len(n.Next) > 1 {
			if err := optimizeConstants(f, f.Node(n.Next[1]), f.partner(n)); err != nil {
				return err
			}
		}
		if isConstantDefinition(n) {
			n.Assign.IsConstant = true
			n.Assign.Constant = n.Args[0]
			n.Assign.WriteCount--
			next := f.next(n)
			if err := f.RemoveNode(n); err != nil {
				return err
			}
			n = next
			continue
		}
		for i, a := range n.Args {
			if a.Kind == ArgVar && a.Var.IsConstant {
				n.Args[i] = a.Var.Constant
				a.Var.ReadCount--
			}
		}
		n = f.next(n)
	}
	return nil
}

func isConstantDefinition(n *Node) bool {
	if n.Assign == nil || n.Assign.WriteCount != 1 || n.Assign.Addressable || len(n.Args) != 1 {
		return false
	}
	switch n.Kind {
	case KindConst:
		return n.Args[0].IsLiteral()
	case KindCopy:
		return n.Args[0].IsNumber()
	}
	return false
}

// RemoveDeadCode deletes nodes whose results are never read and code that
// can never execute. The backward pass runs again when the forward pass
// unlinked anything, since unreachable reads kept their producers alive.
func RemoveDeadCode(f *Func) error {
	entry := f.EntryNode()
	if entry == nil {
		return Invariantf("remove_dead_code", "function has no entry")
	}
	end := f.partner(entry)
	if err := removeUnread(f, end, entry); err != nil {
		return err
	}
	changed, err := removeUnreachable(f, entry, end)
	if err != nil || !changed {
		return err
	}
	return removeUnread(f, end, entry)
}

// removeUnread walks backwards from start until it reaches the scope node stop.
func removeUnread(f *Func, start, stop *Node) error {
	for n := start; n != nil && n != stop; {
		if v := n.Assign; v != nil && v.IsCopy {
			v.WriteCount--
			for v.IsCopy {
				v = v.CopiedValue
			}
			v.WriteCount++
			n.Assign = v
		}

		switch {
		case n.Kind == KindEnd:
			if len(n.Prev) > 1 {
				if err := removeUnread(f, f.Node(n.Prev[1]), f.partner(n)); err != nil {
					return err
				}
			}
			n = f.prev(n)
			continue
		case n.Kind == KindDeclVar:
			if n.Assign.ReadCount == 0 && n.Assign.WriteCount == 0 {
				prev := f.prev(n)
				if err := f.RemoveNode(n); err != nil {
					return err
				}
				n = prev
				continue
			}
			n = f.prev(n)
			continue
		case n.Kind == KindDeclParam || n.Kind == KindDeclResult || n.Kind == KindReturn:
			n = f.prev(n)
			continue
		case isElidableCopy(n):
			src := n.Args[0].Var
			src.IsCopy = true
			src.CopiedValue = n.Assign
			src.ReadCount--
			n.Assign.WriteCount--
			prev := f.prev(n)
			if err := f.RemoveNode(n); err != nil {
				return err
			}
			n = prev
			continue
		}

		if n.Kind == KindCopy && len(n.Args) == 1 && n.Args[0].IsNumber() {
			n.Kind = KindConst
		}
		if n.Assign != nil && n.Assign.ReadCount == 0 {
			if hasEffects(n.Kind) {
				n.Assign.WriteCount--
				n.Assign = nil
			} else {
				prev := f.prev(n)
				releaseNode(f, n)
				if err := f.RemoveNode(n); err != nil {
					return err
				}
				n = prev
				continue
			}
		}
		n = f.prev(n)
	}
	return nil
}

func isElidableCopy(n *Node) bool {
	if n.Kind != KindCopy || n.Assign == nil || len(n.Args) != 1 || n.Args[0].Kind != ArgVar {
		return false
	}
	dst, src := n.Assign, n.Args[0].Var
	return dst != src && dst.WriteCount == 1 && !dst.Addressable &&
		src.WriteCount == 1 && src.ReadCount == 1 && !src.Addressable
}

// hasEffects reports kinds that stay even when their result is unused.
func hasEffects(k Kind) bool {
	if k.IsCall() || k.isBarrier() {
		return true
	}
	switch k {
	case KindIncref, KindIncrefArr, KindCoroutine, KindResume, KindCallEnd, KindYield, KindYieldContinue:
		return true
	}
	return false
}

// releaseNode undoes the read and write counts a node contributes.
func releaseNode(f *Func, n *Node) {
	if n.Assign != nil {
		n.Assign.WriteCount--
	}
	for _, a := range n.Args {
		switch a.Kind {
		case ArgVar:
			a.Var.ReadCount--
		case ArgNode:
			releaseNode(f, f.Node(a.Node))
		}
	}
}

// releaseStrain releases every node from start up to stop, descending into
// nested scopes and else arms.
func releaseStrain(f *Func, start, stop *Node) {
	for n := start; n != nil && n != stop; n = f.next(n) {
		releaseNode(f, n)
		if n.Kind == KindIf && len(n.Next) > 1 {
			releaseStrain(f, f.Node(n.Next[1]), f.partner(n))
		}
	}
}

// lastBefore returns the last node of the region strain starting at n,
// i.e. the node whose successor is stop, stepping over nested scopes.
func (f *Func) lastBefore(n, stop *Node) *Node {
	for n != nil {
		if n.Kind.OpensScope() {
			n = f.partner(n)
		}
		next := f.next(n)
		if next == nil || next == stop {
			return n
		}
		n = next
	}
	return nil
}

// removeUnreachable strips code after return or br and resolves ifs with a
// literal condition. It reports whether the chain changed.
func removeUnreachable(f *Func, start, end *Node) (bool, error) {
	changed := false
	for n := start; n != nil && n != end; {
		switch n.Kind {
		case KindReturn, KindBr:
			next := f.next(n)
			if next == nil || next == end {
				return changed, nil
			}
			releaseStrain(f, next, end)
			if err := f.cutRange(next, f.lastBefore(next, end)); err != nil {
				return changed, err
			}
			return true, nil

		case KindIf:
			if len(n.Args) == 1 && n.Args[0].IsNumber() {
				next, err := f.resolveIf(n)
				if err != nil {
					return changed, err
				}
				changed = true
				n = next
				continue
			}
			scopeEnd := f.partner(n)
			for _, arm := range n.Next {
				c, err := removeUnreachable(f, f.Node(arm), scopeEnd)
				if err != nil {
					return changed, err
				}
				changed = changed || c
			}
			n = f.next(scopeEnd)

		case KindBlock, KindLoop:
			scopeEnd := f.partner(n)
			c, err := removeUnreachable(f, f.next(n), scopeEnd)
			if err != nil {
				return changed, err
			}
			changed = changed || c
			n = f.next(scopeEnd)

		default:
			n = f.next(n)
		}
	}
	return changed, nil
}

// resolveIf replaces an if with a literal condition by the taken arm and
// returns the node where scanning continues. An arm that branches to the if
// itself keeps the construct as a block.
func (f *Func) resolveIf(n *Node) (*Node, error) {
	end := f.partner(n)
	if len(n.Prev) != 1 || len(end.Next) != 1 {
		return nil, Invariantf("remove_dead_code", "if %d is not embedded in a straight chain", n.ID)
	}
	before, after := f.Node(n.Prev[0]), f.Node(end.Next[0])

	taken := 0
	if n.Args[0].IsZero() {
		taken = 1
	}
	for arm := range n.Next {
		if arm != taken {
			releaseStrain(f, f.Node(n.Next[arm]), end)
		}
	}
	if taken >= len(n.Next) || n.Next[taken] == end.ID {
		// nothing survives; the whole construct goes
		if err := f.cutRange(n, end); err != nil {
			return nil, err
		}
		return after, nil
	}

	first := f.Node(n.Next[taken])
	last := f.Node(end.Prev[taken])
	if f.branchesTo(first, end, n.ID) {
		// the taken arm leaves the if early; it stays a block so the
		// branches keep their join point
		n.Kind = KindBlock
		n.Args = nil
		n.Next = []NodeID{first.ID}
		end.Prev = []NodeID{last.ID}
		return n, nil
	}
	before.Next[indexOf(before.Next, n.ID)] = first.ID
	first.Prev = []NodeID{before.ID}
	last.Next = []NodeID{after.ID}
	after.Prev[indexOf(after.Prev, end.ID)] = last.ID
	n.Next, n.Prev = nil, nil
	end.Next, end.Prev = nil, nil
	return first, nil
}

// branchesTo reports whether a br or br_if between first and stop, nested
// scopes included, targets the scope node target.
func (f *Func) branchesTo(first, stop *Node, target NodeID) bool {
	for n := first; n != nil && n != stop; {
		if (n.Kind == KindBr || n.Kind == KindBrIf) && n.BlockPartner == target {
			return true
		}
		if n.Kind.OpensScope() {
			end := f.partner(n)
			for _, arm := range n.Next {
				if f.branchesTo(f.Node(arm), end, target) {
					return true
				}
			}
			n = f.next(end)
			continue
		}
		n = f.next(n)
	}
	return false
}
