package ssa

import "strconv"

// TransformStateMachine lowers an asynchronous function into steps. Every
// suspension point (yield, coroutine call) ends a step with a goto_step;
// branches become goto_step(_if) and asynchronous block/loop scaffolding is
// removed. Synchronous functions are left untouched. It returns the number
// of steps created.
func TransformStateMachine(f *Func) (int, error) {
	entry := f.EntryNode()
	if entry == nil {
		return 0, Invariantf("sm_transform", "function has no entry")
	}
	if !entry.IsAsync {
		return 0, nil
	}
	t := &smTransformer{f: f}
	if err := t.walk(entry, f.next(entry), f.partner(entry), nil); err != nil {
		return t.steps, err
	}
	if err := t.resolve(); err != nil {
		return t.steps, err
	}
	return t.steps, t.cleanup()
}

type smTransformer struct {
	f     *Func
	steps int
}

func (t *smTransformer) newStep() *Node {
	s := t.f.NewNode(KindStep, nil, nil)
	s.Name = "s" + strconv.Itoa(t.steps)
	t.steps++
	return s
}

func (t *smTransformer) newGoto() *Node {
	return t.f.NewNode(KindGotoStep, nil, nil)
}

// walk lowers the chain from n up to and including the end node stop.
// pred is the node n was reached from; step is the open step, if any.
func (t *smTransformer) walk(pred, n, stop, step *Node) error {
	f := t.f
	for n != nil {
		if n.Kind == KindEnd {
			open := f.partner(n)
			if step != nil {
				// a return right before the end of a block or loop already
				// leaves the step
				if open.Kind == KindIf || pred.Kind != KindReturn {
					if err := f.InsertBetween(pred, n, t.newGoto()); err != nil {
						return err
					}
				}
				step = nil
			}
			if n == stop {
				return nil
			}
			pred, n = n, f.next(n)
			continue
		}

		if (n.Kind == KindBlock || n.Kind == KindLoop) && n.IsAsync {
			if step != nil {
				if err := f.InsertBetween(pred, n, t.newGoto()); err != nil {
					return err
				}
				step = nil
			}
			pred, n = n, f.next(n)
			continue
		}

		if step == nil {
			step = t.newStep()
			if err := f.InsertBetween(pred, n, step); err != nil {
				return err
			}
		}

		switch {
		case n.Kind.OpensScope() && !n.IsAsync:
			// no suspension inside; only branches leaving it need lowering
			if err := t.lowerEscapes(n); err != nil {
				return err
			}
			end := f.partner(n)
			pred, n = end, f.next(end)

		case n.Kind == KindIf:
			if len(n.Next) > 1 {
				if err := t.walk(n, f.Node(n.Next[1]), f.partner(n), step); err != nil {
					return err
				}
			}
			pred, n = n, f.next(n)

		case n.Kind == KindBr || n.Kind == KindBrIf:
			next := f.next(n)
			t.lowerBranch(n)
			if n.Kind == KindGotoStep {
				step = nil
			}
			pred, n = n, next

		case isCoroutineCall(n):
			result := f.NewNode(KindCallEnd, n.Assign, n.Type)
			n.Assign = nil
			if n.Kind == KindCall {
				n.Kind = KindCallBegin
			} else {
				n.Kind = KindCallIndirectBegin
			}
			g := t.newGoto()
			if err := f.InsertAfter(n, g); err != nil {
				return err
			}
			if err := f.InsertAfter(g, result); err != nil {
				return err
			}
			step = nil
			pred, n = g, result

		case n.Kind == KindYield:
			g := t.newGoto()
			if err := f.InsertAfter(n, g); err != nil {
				return err
			}
			step = nil
			pred, n = g, f.next(g)

		default:
			pred, n = n, f.next(n)
		}
	}
	return Invariantf("sm_transform", "chain ended before its end node")
}

// lowerBranch turns br/br_if into goto_step/goto_step_if aimed at the
// scope being left: the loop head for loops, the end for everything else.
func (t *smTransformer) lowerBranch(n *Node) {
	target := t.f.partner(n)
	if n.Kind == KindBr {
		n.Kind = KindGotoStep
		n.Args = nil
	} else {
		n.Kind = KindGotoStepIf
		n.Args = n.Args[:1]
	}
	if target != nil && target.Kind != KindLoop {
		n.BlockPartner = target.BlockPartner
	}
}

// lowerEscapes rewrites branches inside a synchronous scope that leave to
// an asynchronous one, since those scopes lose their scaffolding.
func (t *smTransformer) lowerEscapes(scope *Node) error {
	f := t.f
	var visit func(n, stop *Node)
	visit = func(n, stop *Node) {
		for ; n != nil && n != stop; n = f.next(n) {
			if n.Kind == KindIf && len(n.Next) > 1 {
				visit(f.Node(n.Next[1]), f.partner(n))
			}
			if n.Kind == KindBr || n.Kind == KindBrIf {
				if target := f.partner(n); target != nil && target.IsAsync {
					t.lowerBranch(n)
				}
			}
		}
	}
	if scope.Kind == KindIf && len(scope.Next) > 1 {
		visit(f.Node(scope.Next[1]), f.partner(scope))
	}
	visit(f.next(scope), f.partner(scope))
	return nil
}

// resolve points every goto at the first step reachable from its target.
func (t *smTransformer) resolve() error {
	var gotos []*Node
	t.f.Reachable(func(n *Node) {
		if n.Kind == KindGotoStep || n.Kind == KindGotoStepIf {
			gotos = append(gotos, n)
		}
	})
	for _, g := range gotos {
		from := g
		if g.BlockPartner != NoNodeID {
			from = t.f.partner(g)
			if from == nil {
				return Invariantf("sm_transform", "goto %d has no target", g.ID)
			}
		}
		g.BlockPartner = t.nextStep(from)
	}
	return nil
}

func (t *smTransformer) nextStep(n *Node) NodeID {
	for ; n != nil; n = t.f.next(n) {
		if n.Kind == KindStep {
			return n.ID
		}
	}
	return EndOfFunction
}

// cleanup removes the scaffolding of asynchronous blocks and loops. If
// scaffolding stays; it still selects between steps.
func (t *smTransformer) cleanup() error {
	var dead []*Node
	t.f.Reachable(func(n *Node) {
		switch n.Kind {
		case KindBlock, KindLoop:
			if n.IsAsync {
				dead = append(dead, n)
			}
		case KindEnd:
			if open := t.f.partner(n); open != nil && open.IsAsync && (open.Kind == KindBlock || open.Kind == KindLoop) {
				dead = append(dead, n)
			}
		}
	})
	for _, n := range dead {
		if err := t.f.RemoveNode(n); err != nil {
			return err
		}
	}
	return nil
}
