package ssa

import (
	"fmt"

	"fortio.org/safecast"

	"fyrc/internal/types"
)

// NodeID indexes the node arena of a Func.
type NodeID int32

const (
	// NoNodeID marks an absent link.
	NoNodeID NodeID = -1
	// EndOfFunction is the goto_step destination when no step follows.
	EndOfFunction NodeID = -2
)

// Node is one SSA operation. Next has two entries only for an if with an
// else arm; Prev has two entries only for the end of such an if.
type Node struct {
	ID   NodeID
	Kind Kind
	// Name is the function name on define and the label on step.
	Name string
	// Type is the value type, or the callee signature for calls.
	Type   types.Type
	Assign *Variable
	Args   []Arg
	Next   []NodeID
	Prev   []NodeID
	// BlockPartner pairs block/loop/if/define with its end and back. After
	// coroutine lowering it holds the destination of goto_step(_if).
	BlockPartner NodeID
	IsAsync      bool
}

// Func owns the node arena of one function body.
type Func struct {
	Name  string
	Type  *types.FunctionType
	Entry NodeID
	// Mem is the pseudo-variable standing for memory state.
	Mem *Variable

	nodes []*Node
	limit int // arena cap below the NodeID range; zero means none
	err   error
}

func newFunc() *Func {
	return &Func{
		Entry: NoNodeID,
		Mem:   &Variable{Name: "$mem", ReadCount: 2, WriteCount: 2},
	}
}

// NewNode allocates a detached node. Once the arena cannot address another
// node the result is not stored, its ID is NoNodeID and Err reports the
// overflow.
func (f *Func) NewNode(kind Kind, assign *Variable, t types.Type, args ...Arg) *Node {
	n := &Node{ID: NoNodeID, Kind: kind, Type: t, Assign: assign, Args: args, BlockPartner: NoNodeID}
	id, err := safecast.Conv[NodeID](len(f.nodes))
	if err == nil && f.limit > 0 && len(f.nodes) >= f.limit {
		err = fmt.Errorf("arena holds %d nodes", f.limit)
	}
	if err != nil {
		if f.err == nil {
			f.err = Invariantf("new_node", "function %s exceeds the node limit: %v", f.Name, err)
		}
		return n
	}
	n.ID = id
	f.nodes = append(f.nodes, n)
	return n
}

// Err returns the first allocation failure of the arena.
func (f *Func) Err() error { return f.err }

// Node resolves an id; it returns nil for NoNodeID and EndOfFunction.
func (f *Func) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(f.nodes) {
		return nil
	}
	return f.nodes[id]
}

// Len returns the arena size, including detached nodes.
func (f *Func) Len() int { return len(f.nodes) }

// EntryNode returns the define node.
func (f *Func) EntryNode() *Node { return f.Node(f.Entry) }

// next returns the first successor or nil.
func (f *Func) next(n *Node) *Node {
	if n == nil || len(n.Next) == 0 {
		return nil
	}
	return f.Node(n.Next[0])
}

// prev returns the first predecessor or nil.
func (f *Func) prev(n *Node) *Node {
	if n == nil || len(n.Prev) == 0 {
		return nil
	}
	return f.Node(n.Prev[0])
}

// partner returns the block partner or nil.
func (f *Func) partner(n *Node) *Node {
	if n == nil {
		return nil
	}
	return f.Node(n.BlockPartner)
}

// Link appends the edge a -> b.
func (f *Func) Link(a, b *Node) {
	a.Next = append(a.Next, b.ID)
	b.Prev = append(b.Prev, a.ID)
}

// InsertBetween splices n into the edge a -> b.
func (f *Func) InsertBetween(a, b, n *Node) error {
	ai := indexOf(a.Next, b.ID)
	bi := indexOf(b.Prev, a.ID)
	if ai < 0 || bi < 0 {
		return Invariantf("insert", "node %d is not linked to node %d", a.ID, b.ID)
	}
	a.Next[ai] = n.ID
	b.Prev[bi] = n.ID
	n.Prev = append(n.Prev, a.ID)
	n.Next = append(n.Next, b.ID)
	return nil
}

// InsertAfter splices n behind a, which must have a single successor.
func (f *Func) InsertAfter(a, n *Node) error {
	if len(a.Next) != 1 {
		return Invariantf("insert", "node %d (%s) has %d successors", a.ID, a.Kind, len(a.Next))
	}
	return f.InsertBetween(a, f.Node(a.Next[0]), n)
}

// RemoveNode unlinks n and joins its neighbours. Nodes with more than one
// successor or predecessor cannot be removed this way.
func (f *Func) RemoveNode(n *Node) error {
	if len(n.Next) > 1 || len(n.Prev) > 1 {
		return Invariantf("remove", "node %d (%s) has multiple edges", n.ID, n.Kind)
	}
	next, prev := NoNodeID, NoNodeID
	if len(n.Next) == 1 {
		next = n.Next[0]
	}
	if len(n.Prev) == 1 {
		prev = n.Prev[0]
	}
	if nn := f.Node(next); nn != nil {
		replaceEdge(&nn.Prev, n.ID, prev)
	}
	if pn := f.Node(prev); pn != nil {
		replaceEdge(&pn.Next, n.ID, next)
	}
	n.Next = nil
	n.Prev = nil
	return nil
}

// cutRange unlinks the straight chain first..last and joins first's
// predecessor with last's successor.
func (f *Func) cutRange(first, last *Node) error {
	if len(first.Prev) != 1 || len(last.Next) != 1 {
		return Invariantf("remove", "cannot cut range %d..%d", first.ID, last.ID)
	}
	before := f.Node(first.Prev[0])
	after := f.Node(last.Next[0])
	bi := indexOf(before.Next, first.ID)
	ai := indexOf(after.Prev, last.ID)
	if bi < 0 || ai < 0 {
		return Invariantf("remove", "range %d..%d is not linked to its neighbours", first.ID, last.ID)
	}
	before.Next[bi] = after.ID
	after.Prev[ai] = before.ID
	first.Prev = nil
	last.Next = nil
	return nil
}

// Reachable calls fn for every node reachable from the entry, in chain
// order, including nodes nested as operands.
func (f *Func) Reachable(fn func(*Node)) {
	seen := make(map[NodeID]bool, len(f.nodes))
	var visitArgs func(n *Node)
	visitArgs = func(n *Node) {
		for _, a := range n.Args {
			if a.Kind != ArgNode || seen[a.Node] {
				continue
			}
			seen[a.Node] = true
			inner := f.Node(a.Node)
			fn(inner)
			visitArgs(inner)
		}
	}
	stack := []NodeID{f.Entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.Node(id)
		if n == nil || seen[id] {
			continue
		}
		seen[id] = true
		fn(n)
		visitArgs(n)
		for i := len(n.Next) - 1; i >= 0; i-- {
			stack = append(stack, n.Next[i])
		}
	}
}

func indexOf(ids []NodeID, id NodeID) int {
	for i, x := range ids {
		if x == id {
			return i
		}
	}
	return -1
}

func replaceEdge(ids *[]NodeID, old, repl NodeID) {
	for i, x := range *ids {
		if x == old {
			if repl == NoNodeID {
				*ids = append((*ids)[:i], (*ids)[i+1:]...)
				return
			}
			(*ids)[i] = repl
		}
	}
}
