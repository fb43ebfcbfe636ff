package cgen

import (
	"fmt"
	"strconv"
	"strings"
)

// assemble renders the header and implementation units. The header
// declares everything other units may reference; tables, symbols and
// possible duplicate code are defined in it, but only compiled into the
// unit that defines FYR_COMPILE_MAIN.
func (b *CBackend) assemble() error {
	type global struct {
		decl   string
		define bool
	}
	var globals []global
	for _, g := range b.globals {
		if g.native {
			continue
		}
		typ, err := b.mapType(g.v.Type, false, false)
		if err != nil {
			return fmt.Errorf("global %s: %w", g.v.Name, err)
		}
		globals = append(globals, global{decl: declare(typ, b.globalStorage[g.v]), define: !g.imported})
	}

	// declarations may register further structs; render them last
	var structs []string
	for _, name := range b.orderedStructs() {
		decl, err := b.structDecl(name)
		if err != nil {
			return err
		}
		structs = append(structs, decl)
	}

	guard := headerGuard(b.pkg.Path)
	if b.pkg.Path == "" {
		guard = headerGuard(b.pkg.ObjFileName)
	}

	var h strings.Builder
	fmt.Fprintf(&h, "#ifndef %s\n#define %s\n\n", guard, guard)
	for _, inc := range b.includes {
		h.WriteString(inc.String())
		h.WriteByte('\n')
	}
	if n := b.opts.PtrSize; n != 0 {
		fmt.Fprintf(&h, "_Static_assert(sizeof(void*) == %d, \"compiled for %d-byte pointers\");\n", n, n)
	}
	h.WriteByte('\n')
	for _, s := range structs {
		h.WriteString(s)
		h.WriteByte('\n')
	}
	for _, f := range b.helpers {
		h.WriteString(f.declaration())
		h.WriteByte('\n')
	}
	for _, f := range b.functions {
		h.WriteString(f.declaration())
		h.WriteByte('\n')
	}
	for _, d := range b.ifaces {
		entries := make([]string, len(d.table))
		for i, f := range d.table {
			if f == nil {
				entries[i] = "0"
				continue
			}
			name, err := b.funcName(int64(f.Index()))
			if err != nil {
				return fmt.Errorf("interface table %s: %w", d.name, err)
			}
			entries[i] = "(addr_t)" + name
		}
		n := strconv.Itoa(len(d.table))
		fmt.Fprintf(&h, "#ifndef %s_H\n#define %s_H\n#ifdef FYR_COMPILE_MAIN\n", d.name, d.name)
		fmt.Fprintf(&h, "const addr_t %s[%s] = {\n", d.name, n)
		for _, e := range entries {
			fmt.Fprintf(&h, "    %s,\n", e)
		}
		fmt.Fprintf(&h, "};\n#else\nextern const addr_t %s[%s];\n#endif\n#endif\n", d.name, n)
	}
	for _, s := range b.symbols {
		c := symbolName(s)
		fmt.Fprintf(&h, "#ifndef SYM_%s_H\n#define SYM_%s_H\n#ifdef FYR_COMPILE_MAIN\n", c, c)
		fmt.Fprintf(&h, "const addr_t %s = (const addr_t)(const char*)%s;\n", c, quoteC(s))
		fmt.Fprintf(&h, "#else\nextern const addr_t %s;\n#endif\n#endif\n", c)
	}
	for _, g := range globals {
		fmt.Fprintf(&h, "extern %s;\n", g.decl)
	}
	writeDuplicate := func(f *cFunction) {
		fmt.Fprintf(&h, "\n#ifdef FYR_COMPILE_MAIN\n#ifndef %s_H\n#define %s_H\n", f.name, f.name)
		f.write(&h, "")
		h.WriteString("#endif\n#endif\n")
	}
	for _, f := range b.helpers {
		writeDuplicate(f)
	}
	for _, f := range b.functions {
		if f.possibleDuplicate {
			writeDuplicate(f)
		}
	}
	h.WriteString("\n#endif\n")

	var c strings.Builder
	if b.executable {
		c.WriteString("#define FYR_COMPILE_MAIN\n\n")
	}
	fmt.Fprintf(&c, "#include %s\n\n", quoteC(b.pkg.HeaderFile()))
	for _, s := range b.strOrder {
		c.WriteString(s.definition(true))
		c.WriteString(";\n\n")
	}
	for _, g := range globals {
		if g.define {
			c.WriteString(g.decl)
			c.WriteString(";\n\n")
		}
	}
	for _, f := range b.functions {
		if !f.possibleDuplicate {
			f.write(&c, "")
			c.WriteByte('\n')
		}
	}
	if b.main != nil {
		b.main.write(&c, "")
	}

	b.header = h.String()
	b.impl = c.String()
	return nil
}
