package ssa

import "fmt"

// Kind is the operation a node performs.
type Kind uint8

const (
	KindInvalid Kind = iota

	// structure
	KindDefine
	KindDeclParam
	KindDeclResult
	KindDeclVar
	KindBlock
	KindLoop
	KindIf
	KindEnd
	KindBr
	KindBrIf
	KindReturn
	KindTrap

	// coroutines
	KindYield
	KindYieldContinue
	KindStep
	KindGotoStep
	KindGotoStepIf
	KindCallBegin
	KindCallEnd
	KindCallIndirectBegin
	KindSpawn
	KindSpawnIndirect
	KindCoroutine
	KindResume

	// calls
	KindCall
	KindCallIndirect

	// values and memory
	KindConst
	KindCopy
	KindStruct
	KindUnion
	KindLoad
	KindStore
	KindAddrOf
	KindAddrOfFunc
	KindSymbol
	KindTableIface
	KindMember
	KindSetMember

	// runtime support
	KindAlloc
	KindFree
	KindIncref
	KindDecref
	KindAllocArr
	KindFreeArr
	KindIncrefArr
	KindDecrefArr
	KindLock
	KindUnlock
	KindLockArr
	KindUnlockArr
	KindNotnull
	KindNotnullRef
	KindCmpRef
	KindLenArr
	KindLenStr
	KindArrToStr
	KindMoveArr
	KindMemcpy
	KindMemmove
	KindMemcmp
	KindPrintln

	// arithmetic
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindDivS
	KindDivU
	KindRemS
	KindRemU
	KindAnd
	KindOr
	KindXor
	KindShl
	KindShrS
	KindShrU
	KindRotl
	KindRotr
	KindEq
	KindNe
	KindLt
	KindLtS
	KindLtU
	KindGt
	KindGtS
	KindGtU
	KindLe
	KindLeS
	KindLeU
	KindGe
	KindGeS
	KindGeU
	KindMin
	KindMax
	KindEqz
	KindClz
	KindCtz
	KindPopcnt
	KindNeg
	KindAbs
	KindCopysign
	KindCeil
	KindFloor
	KindTrunc
	KindNearest
	KindSqrt

	// conversions
	KindWrap
	KindExtend
	KindPromote
	KindDemote
	KindTrunc32
	KindTrunc64
	KindConvert32U
	KindConvert32S
	KindConvert64U
	KindConvert64S

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid: "invalid",

	KindDefine: "define", KindDeclParam: "decl_param", KindDeclResult: "decl_result", KindDeclVar: "decl_var",
	KindBlock: "block", KindLoop: "loop", KindIf: "if", KindEnd: "end", KindBr: "br", KindBrIf: "br_if",
	KindReturn: "return", KindTrap: "trap",

	KindYield: "yield", KindYieldContinue: "yield_continue", KindStep: "step",
	KindGotoStep: "goto_step", KindGotoStepIf: "goto_step_if",
	KindCallBegin: "call_begin", KindCallEnd: "call_end", KindCallIndirectBegin: "call_indirect_begin",
	KindSpawn: "spawn", KindSpawnIndirect: "spawn_indirect", KindCoroutine: "coroutine", KindResume: "resume",

	KindCall: "call", KindCallIndirect: "call_indirect",

	KindConst: "const", KindCopy: "copy", KindStruct: "struct", KindUnion: "union",
	KindLoad: "load", KindStore: "store", KindAddrOf: "addr_of", KindAddrOfFunc: "addr_of_func",
	KindSymbol: "symbol", KindTableIface: "table_iface", KindMember: "member", KindSetMember: "set_member",

	KindAlloc: "alloc", KindFree: "free", KindIncref: "incref", KindDecref: "decref",
	KindAllocArr: "alloc_arr", KindFreeArr: "free_arr", KindIncrefArr: "incref_arr", KindDecrefArr: "decref_arr",
	KindLock: "lock", KindUnlock: "unlock", KindLockArr: "lock_arr", KindUnlockArr: "unlock_arr",
	KindNotnull: "notnull", KindNotnullRef: "notnull_ref", KindCmpRef: "cmp_ref",
	KindLenArr: "len_arr", KindLenStr: "len_str", KindArrToStr: "arr_to_str", KindMoveArr: "move_arr",
	KindMemcpy: "memcpy", KindMemmove: "memmove", KindMemcmp: "memcmp", KindPrintln: "println",

	KindAdd: "add", KindSub: "sub", KindMul: "mul", KindDiv: "div", KindDivS: "div_s", KindDivU: "div_u",
	KindRemS: "rem_s", KindRemU: "rem_u", KindAnd: "and", KindOr: "or", KindXor: "xor",
	KindShl: "shl", KindShrS: "shr_s", KindShrU: "shr_u", KindRotl: "rotl", KindRotr: "rotr",
	KindEq: "eq", KindNe: "ne",
	KindLt: "lt", KindLtS: "lt_s", KindLtU: "lt_u", KindGt: "gt", KindGtS: "gt_s", KindGtU: "gt_u",
	KindLe: "le", KindLeS: "le_s", KindLeU: "le_u", KindGe: "ge", KindGeS: "ge_s", KindGeU: "ge_u",
	KindMin: "min", KindMax: "max", KindEqz: "eqz", KindClz: "clz", KindCtz: "ctz", KindPopcnt: "popcnt",
	KindNeg: "neg", KindAbs: "abs", KindCopysign: "copysign", KindCeil: "ceil", KindFloor: "floor",
	KindTrunc: "trunc", KindNearest: "nearest", KindSqrt: "sqrt",

	KindWrap: "wrap", KindExtend: "extend", KindPromote: "promote", KindDemote: "demote",
	KindTrunc32: "trunc32", KindTrunc64: "trunc64",
	KindConvert32U: "convert32_u", KindConvert32S: "convert32_s",
	KindConvert64U: "convert64_u", KindConvert64S: "convert64_s",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k, name := range kindNames {
		if name != "" {
			m[name] = Kind(k)
		}
	}
	return m
}()

func (k Kind) String() string {
	if k < kindCount && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a textual kind back to its value.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// OpensScope reports whether the kind is closed by a matching end.
func (k Kind) OpensScope() bool {
	switch k {
	case KindDefine, KindBlock, KindLoop, KindIf:
		return true
	}
	return false
}

// IsDecl reports whether the kind declares a parameter, result or local.
func (k Kind) IsDecl() bool {
	switch k {
	case KindDeclParam, KindDeclResult, KindDeclVar:
		return true
	}
	return false
}

// IsCall reports whether the kind transfers control to another function.
// Nodes of these kinds are never deleted for having an unread result.
func (k Kind) IsCall() bool {
	switch k {
	case KindCall, KindCallIndirect, KindSpawn, KindSpawnIndirect:
		return true
	}
	return false
}

// endsStraightLine reports whether operand inlining must not look past a node of this kind.
func (k Kind) endsStraightLine() bool {
	switch k {
	case KindStep, KindGotoStep, KindGotoStepIf, KindBr, KindBrIf,
		KindIf, KindBlock, KindLoop, KindEnd, KindReturn, KindDefine,
		KindYield, KindYieldContinue:
		return true
	}
	return false
}

// isBarrier reports whether moving a computation across a node of this kind
// could change observable effects.
func (k Kind) isBarrier() bool {
	switch k {
	case KindCall, KindCallIndirect, KindCallBegin, KindCallEnd, KindCallIndirectBegin,
		KindSpawn, KindSpawnIndirect, KindResume,
		KindDecref, KindDecrefArr, KindStore, KindSetMember,
		KindFree, KindFreeArr, KindLock, KindLockArr, KindUnlock, KindUnlockArr,
		KindMemcpy, KindMemmove, KindMoveArr, KindPrintln:
		return true
	}
	return false
}
