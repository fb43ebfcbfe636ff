package cgen

import (
	"strconv"
	"strings"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

// emitCode renders the chain from n up to, but excluding, stop.
func (fe *funcEmitter) emitCode(n, stop *ssa.Node) ([]cNode, error) {
	var code []cNode
	for n != nil && n != stop {
		if fe.b.opts.Comments {
			code = append(code, &cComment{text: fe.f.NodeString(n)})
		}
		switch n.Kind {
		case ssa.KindIf:
			cond, err := fe.arg(n, 0)
			if err != nil {
				return nil, err
			}
			end := fe.f.Node(n.BlockPartner)
			s := &cIf{cond: cond}
			if s.body, err = fe.emitCode(fe.next(n), end); err != nil {
				return nil, err
			}
			if len(n.Next) > 1 && n.Next[1] != n.BlockPartner {
				if s.els, err = fe.emitCode(fe.f.Node(n.Next[1]), end); err != nil {
					return nil, err
				}
			}
			code = append(code, s)
			if fe.targets[n.ID] {
				code = append(code, &cLabel{name: fe.label(n.ID)})
			}
			n = fe.next(end)
			continue

		case ssa.KindLoop:
			end := fe.f.Node(n.BlockPartner)
			if fe.targets[n.ID] {
				code = append(code, &cLabel{name: fe.label(n.ID)})
			}
			body, err := fe.emitCode(fe.next(n), end)
			if err != nil {
				return nil, err
			}
			code = append(code, body...)
			n = fe.next(end)
			continue

		case ssa.KindBlock:
			end := fe.f.Node(n.BlockPartner)
			body, err := fe.emitCode(fe.next(n), end)
			if err != nil {
				return nil, err
			}
			code = append(code, body...)
			if fe.targets[n.ID] {
				code = append(code, &cLabel{name: fe.label(n.ID)})
			}
			n = fe.next(end)
			continue

		case ssa.KindBr:
			jump, err := fe.branch(n)
			if err != nil {
				return nil, err
			}
			code = append(code, jump)

		case ssa.KindBrIf:
			cond, err := fe.arg(n, 0)
			if err != nil {
				return nil, err
			}
			jump, err := fe.branch(n)
			if err != nil {
				return nil, err
			}
			code = append(code, &cIf{cond: cond, body: []cNode{jump}})

		case ssa.KindYield, ssa.KindYieldContinue:
			fe.b.addInclude("fyr_spawn.h", false)
			arg := "true"
			if n.Kind == ssa.KindYieldContinue {
				arg = "false"
			}
			code = append(code, call("fyr_yield", &cConst{code: arg}))

		case ssa.KindStep:
			code = append(code, &cLabel{name: "step_" + n.Name})

		case ssa.KindGotoStep:
			jump, err := fe.gotoStep(n)
			if err != nil {
				return nil, err
			}
			code = append(code, jump)

		case ssa.KindGotoStepIf:
			cond, err := fe.arg(n, 0)
			if err != nil {
				return nil, err
			}
			jump, err := fe.gotoStep(n)
			if err != nil {
				return nil, err
			}
			code = append(code, &cIf{cond: cond, body: []cNode{jump}})

		case ssa.KindCallBegin, ssa.KindCallIndirectBegin:
			s, err := fe.callBegin(n)
			if err != nil {
				return nil, err
			}
			code = append(code, s)

		case ssa.KindCallEnd:
			// the value was assigned by the matching call_begin

		case ssa.KindSpawn:
			s, err := fe.spawn(n)
			if err != nil {
				return nil, err
			}
			code = append(code, s)

		case ssa.KindSpawnIndirect:
			fe.b.addInclude("fyr_spawn.h", false)
			return nil, ssa.Unimplementedf(PhaseEmit, "spawn of a function value")

		case ssa.KindReturn:
			if len(n.Args) == 0 {
				code = append(code, fe.bareReturn())
				break
			}
			x, err := fe.arg(n, 0)
			if err != nil {
				return nil, err
			}
			code = append(code, &cReturn{x: x})

		case ssa.KindTrap:
			code = append(code, call("exit", &cConst{code: "EXIT_FAILURE"}))

		case ssa.KindNotnull:
			x, err := fe.arg(n, 0)
			if err != nil {
				return nil, err
			}
			code = append(code, &cIf{
				cond: &cBinary{op: "==", l: x, r: &cConst{code: "NULL"}},
				body: []cNode{call("exit", &cConst{code: "EXIT_FAILURE"})},
			})

		case ssa.KindStore:
			if len(n.Args) < 3 {
				return nil, ssa.Invariantf(PhaseEmit, "store needs a pointer, an offset and a value")
			}
			dst, err := fe.deref(n, n.Type)
			if err != nil {
				return nil, err
			}
			v, err := fe.operand(n.Args[2], n.Type)
			if err != nil {
				return nil, err
			}
			code = append(code, &cBinary{op: "=", l: dst, r: v})

		case ssa.KindSetMember:
			if len(n.Args) < 3 {
				return nil, ssa.Invariantf(PhaseEmit, "set_member needs a struct, a field index and a value")
			}
			m, err := fe.member(n)
			if err != nil {
				return nil, err
			}
			v, err := fe.operand(n.Args[2], fe.valueType(n.Args[2]))
			if err != nil {
				return nil, err
			}
			code = append(code, &cBinary{op: "=", l: m, r: v})

		case ssa.KindMemcpy, ssa.KindMemmove:
			s, err := fe.memCopy(n)
			if err != nil {
				return nil, err
			}
			code = append(code, s)

		case ssa.KindMoveArr:
			s, err := fe.moveArr(n)
			if err != nil {
				return nil, err
			}
			code = append(code, s)

		case ssa.KindPrintln:
			s, err := fe.println(n)
			if err != nil {
				return nil, err
			}
			code = append(code, s)

		case ssa.KindDeclParam, ssa.KindDeclResult, ssa.KindDeclVar, ssa.KindEnd:

		case ssa.KindDefine:
			return nil, ssa.Invariantf(PhaseEmit, "nested define")

		default:
			s, err := fe.emitAssigned(n)
			if err != nil {
				return nil, err
			}
			code = append(code, s)
		}
		n = fe.next(n)
	}
	return code, nil
}

// label names the C label of a branch target.
func (fe *funcEmitter) label(id ssa.NodeID) string {
	if l, ok := fe.labels[id]; ok {
		return l
	}
	l := "block" + strconv.Itoa(fe.nextLabel)
	fe.nextLabel++
	fe.labels[id] = l
	return l
}

// branch jumps to the head of a loop, behind a block or if, or leaves
// the function when the target is the define.
func (fe *funcEmitter) branch(n *ssa.Node) (cNode, error) {
	target := fe.f.Node(n.BlockPartner)
	if target == nil {
		return nil, ssa.Invariantf(PhaseEmit, "%s %d has no target", n.Kind, n.ID)
	}
	if target.Kind == ssa.KindDefine {
		return fe.bareReturn(), nil
	}
	return &cGoto{label: fe.label(target.ID)}, nil
}

func (fe *funcEmitter) gotoStep(n *ssa.Node) (cNode, error) {
	if n.BlockPartner == ssa.EndOfFunction {
		return fe.bareReturn(), nil
	}
	step := fe.f.Node(n.BlockPartner)
	if step == nil || step.Kind != ssa.KindStep {
		return nil, ssa.Invariantf(PhaseEmit, "%s %d does not target a step", n.Kind, n.ID)
	}
	return &cGoto{label: "step_" + step.Name}, nil
}

// bareReturn leaves the function with whatever the results hold.
func (fe *funcEmitter) bareReturn() cNode {
	switch {
	case fe.valueResult:
		if strings.HasPrefix(fe.cf.ret, "struct ") || strings.HasPrefix(fe.cf.ret, "union ") {
			return &cReturn{x: &cCast{typ: fe.cf.ret, x: &cCompound{values: []cNode{&cConst{code: "0"}}}}}
		}
		return &cReturn{x: &cConst{code: "0"}}
	case len(fe.results) == 1:
		return &cReturn{x: &cConst{code: fe.storage[fe.results[0]]}}
	case len(fe.results) > 1:
		values := make([]cNode, len(fe.results))
		for i, r := range fe.results {
			values[i] = &cConst{code: fe.storage[r]}
		}
		return &cReturn{x: &cCast{typ: fe.cf.ret, x: &cCompound{values: values}}}
	}
	return &cReturn{}
}

// callBegin performs a coroutine call. Coroutines run on their own stack,
// so the call returns once the callee finished and the result is assigned
// to the variable of the matching call_end.
func (fe *funcEmitter) callBegin(n *ssa.Node) (cNode, error) {
	var end *ssa.Node
	for m := fe.next(n); m != nil; m = fe.next(m) {
		if m.Kind == ssa.KindCallEnd {
			end = m
			break
		}
		if m.Kind != ssa.KindGotoStep && m.Kind != ssa.KindStep {
			break
		}
	}
	if end == nil {
		return nil, ssa.Invariantf(PhaseEmit, "%s %d has no call_end", n.Kind, n.ID)
	}
	var x cNode
	var err error
	if n.Kind == ssa.KindCallBegin {
		x, err = fe.call(n)
	} else {
		x, err = fe.callIndirect(n)
	}
	if err != nil {
		return nil, err
	}
	if v := end.Assign; v != nil && (v.ReadCount != 0 || v.WriteCount != 0) {
		lhs, err := fe.variable(v)
		if err != nil {
			return nil, err
		}
		return &cBinary{op: "=", l: lhs, r: x}, nil
	}
	return x, nil
}

func (fe *funcEmitter) memCopy(n *ssa.Node) (cNode, error) {
	if len(n.Args) < 4 {
		return nil, ssa.Invariantf(PhaseEmit, "%s needs a destination, a source, a count and a size", n.Kind)
	}
	fe.b.addInclude("string.h", true)
	var x [4]cNode
	for i := range x {
		var err error
		if x[i], err = fe.operand(n.Args[i], types.Int); err != nil {
			return nil, err
		}
	}
	name := "memcpy"
	if n.Kind == ssa.KindMemmove {
		name = "memmove"
	}
	return call(name, x[0], x[1], &cBinary{op: "*", l: x[2], r: x[3]}), nil
}

func (fe *funcEmitter) moveArr(n *ssa.Node) (cNode, error) {
	if len(n.Args) < 5 {
		return nil, ssa.Invariantf(PhaseEmit, "move_arr needs 5 operands, has %d", len(n.Args))
	}
	idx, err := fe.intArg(n, 4)
	if err != nil {
		return nil, err
	}
	if fe.b.isImport(idx) {
		return nil, ssa.Invariantf(PhaseEmit, "move_arr destructor is imported")
	}
	fn, err := fe.b.funcName(idx)
	if err != nil {
		return nil, err
	}
	args := make([]cNode, 0, 5)
	for i := 0; i < 4; i++ {
		x, err := fe.operand(n.Args[i], fe.valueType(n.Args[i]))
		if err != nil {
			return nil, err
		}
		args = append(args, x)
	}
	return call("fyr_move_arr", append(args, &cConst{code: fn})...), nil
}
