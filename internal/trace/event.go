package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event. Smaller scopes are coarser.
type Scope uint8

const (
	// ScopeBuild covers a whole fyrc invocation.
	ScopeBuild Scope = iota + 1
	// ScopePackage covers one IR package: decode, replay, generate, write.
	ScopePackage
	// ScopeFunc covers the lowering of one function.
	ScopeFunc
	// ScopePhase covers one pass over one function.
	ScopePhase
)

var scopeNames = [...]string{
	ScopeBuild:   "build",
	ScopePackage: "package",
	ScopeFunc:    "func",
	ScopePhase:   "phase",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	// Name is the subject, e.g. "package demo", "func demo_smain", "stackify".
	Name   string
	Detail string
	Extra  map[string]string
}
