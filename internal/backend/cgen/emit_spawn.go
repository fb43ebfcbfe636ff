package cgen

import (
	"strconv"
	"strings"

	"fyrc/internal/ssa"
	"fyrc/internal/types"
)

// spawn starts a function on a fresh coroutine stack. Two helpers do the
// work: spawn_1 allocates the stack, queues the coroutine and moves the
// native stack pointer into the new memory with alloca; spawn_2 then runs
// there, returns to the spawner on first entry and runs the function once
// the coroutine is resumed.
func (fe *funcEmitter) spawn(n *ssa.Node) (cNode, error) {
	ft, ok := n.Type.(*types.FunctionType)
	if !ok {
		return nil, ssa.Invariantf(PhaseEmit, "spawn without a function type")
	}
	fe.b.addInclude("fyr_spawn.h", false)
	fe.b.addInclude("setjmp.h", true)
	fe.b.addInclude("alloca.h", true)

	idx, err := fe.intArg(n, 0)
	if err != nil {
		return nil, err
	}
	fn, err := fe.b.funcName(idx)
	if err != nil {
		return nil, err
	}
	native := ft.Conv == types.ConvNative
	params := make([]cParam, 0, len(ft.Params)+1)
	paramTypes := make([]string, 0, len(ft.Params))
	names := make([]string, 0, len(ft.Params))
	for i, p := range ft.Params {
		typ, err := fe.b.mapType(p, native, false)
		if err != nil {
			return nil, err
		}
		name := "p" + strconv.Itoa(i+1)
		params = append(params, cParam{typ: typ, name: name})
		paramTypes = append(paramTypes, typ)
		names = append(names, name)
	}
	params = append(params, cParam{typ: "void(*)(" + strings.Join(paramTypes, ",") + ")", name: "fun"})

	tc := md5Hex("void(*)(" + strings.Join(paramTypes, ",") + ")")
	name1 := "spawn_1_" + tc
	name2 := "spawn_2_" + tc
	if !fe.b.spawnHelpers[name1] {
		fe.b.spawnHelpers[name1] = true
		fe.b.addSpawnHelpers(name1, name2, params, names)
	}

	args, err := fe.callArgs(ft, n.Args[1:])
	if err != nil {
		return nil, err
	}
	return call(name1, append(args, &cConst{code: fn})...), nil
}

func (b *CBackend) addSpawnHelpers(name1, name2 string, params []cParam, names []string) {
	argList := strings.Join(names, ", ")
	stmts := func(lines ...string) []cNode {
		out := make([]cNode, len(lines))
		for i, l := range lines {
			out[i] = &cConst{code: l}
		}
		return out
	}

	f2 := &cFunction{
		name: name2,
		ret:  "void",
		params: append([]cParam{
			{typ: "__attribute__ ((unused)) void *", name: "dummy"},
			{typ: "jmp_buf", name: "caller"},
			{typ: "struct fyr_coro_t*", name: "c"},
		}, params...),
		possibleDuplicate: true,
		body: stmts(
			"if (!setjmp(c->buf)) { longjmp(caller, 1); }",
			"fyr_running = c",
			"fun("+argList+")",
			"fyr_running = NULL",
			"fyr_garbage_coro = c",
			"fyr_yield(true)",
		),
	}

	forward := "dummy, buf, c"
	if argList != "" {
		forward += ", " + argList
	}
	f1 := &cFunction{
		name:              name1,
		ret:               "void",
		params:            params,
		possibleDuplicate: true,
		body: stmts(
			"addr_t p; addr_t newtop; addr_t mytop; addr_t dummy",
			"struct fyr_coro_t *c",
			"jmp_buf buf",
			"p = fyr_alloc(fyr_stacksize())",
			"c = (struct fyr_coro_t*)p",
			"newtop = p + fyr_stacksize()",
			"mytop = (addr_t)&p",
			"dummy = alloca((size_t)((intptr_t)mytop - (intptr_t)newtop))",
			"c->next = fyr_ready_first",
			"c->memory = p",
			"fyr_ready_first = c",
			"if (fyr_ready_last == NULL) { fyr_ready_last = c; }",
			"if (setjmp(buf)) { return; }",
			name2+"("+forward+", fun)",
		),
	}
	b.helpers = append(b.helpers, f2, f1)
}
