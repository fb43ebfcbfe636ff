package ssa

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a textual rendering of the function body.
func Dump(w io.Writer, f *Func) error {
	var sb strings.Builder
	f.writeStrain(&sb, "", f.EntryNode())
	_, err := io.WriteString(w, sb.String())
	return err
}

// String renders the function body.
func (f *Func) String() string {
	var sb strings.Builder
	f.writeStrain(&sb, "", f.EntryNode())
	return sb.String()
}

func (f *Func) writeStrain(sb *strings.Builder, indent string, n *Node) {
	for n != nil && n.Kind != KindEnd {
		switch n.Kind {
		case KindDefine, KindBlock, KindLoop:
			sb.WriteString(indent)
			sb.WriteString(f.NodeString(n))
			sb.WriteByte('\n')
			f.writeStrain(sb, indent+"    ", f.next(n))
			sb.WriteString(indent)
			sb.WriteString("end\n")
			n = f.afterScope(n)
		case KindIf:
			sb.WriteString(indent)
			sb.WriteString(f.NodeString(n))
			sb.WriteByte('\n')
			f.writeStrain(sb, indent+"    ", f.next(n))
			if len(n.Next) > 1 {
				sb.WriteString(indent)
				sb.WriteString("else\n")
				f.writeStrain(sb, indent+"    ", f.Node(n.Next[1]))
			}
			sb.WriteString(indent)
			sb.WriteString("end\n")
			n = f.afterScope(n)
		default:
			sb.WriteString(indent)
			sb.WriteString(f.NodeString(n))
			sb.WriteByte('\n')
			n = f.next(n)
		}
	}
}

// afterScope returns the node following the end of a scope, or nil when
// the scope has no end in the chain (an async block after lowering).
func (f *Func) afterScope(n *Node) *Node {
	end := f.partner(n)
	if end == nil {
		return nil
	}
	return f.next(end)
}

// NodeString renders one node with nested operands inline.
func (f *Func) NodeString(n *Node) string {
	var sb strings.Builder
	if n.Assign != nil {
		sb.WriteString(n.Assign.String())
		sb.WriteString(" = ")
	}
	sb.WriteString(n.Kind.String())
	if n.Name != "" {
		sb.WriteByte(' ')
		sb.WriteString(n.Name)
	}
	if n.Type != nil {
		sb.WriteByte(' ')
		sb.WriteString(n.Type.String())
	}
	for i, a := range n.Args {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		if a.Kind == ArgNode {
			sb.WriteByte('(')
			sb.WriteString(f.NodeString(f.Node(a.Node)))
			sb.WriteByte(')')
			continue
		}
		sb.WriteString(a.literalString())
	}
	if n.Kind == KindGotoStep || n.Kind == KindGotoStepIf {
		sb.WriteString(" -> ")
		sb.WriteString(f.stepName(n.BlockPartner))
	}
	return sb.String()
}

func (f *Func) stepName(id NodeID) string {
	if id == EndOfFunction {
		return "<end>"
	}
	n := f.Node(id)
	if n == nil {
		return "<unresolved>"
	}
	if n.Kind == KindStep {
		return n.Name
	}
	return fmt.Sprintf("<%s %d>", n.Kind, n.ID)
}
