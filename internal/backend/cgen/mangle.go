package cgen

import (
	"fmt"
	"strconv"
	"strings"
)

// escapes maps every reserved character to its two byte escape. Each code
// letter is used once so the encoding can be reversed.
var escapes = map[byte]string{
	'_': "_u",
	'.': "__",
	'/': "_s",
	'<': "_l",
	'>': "_g",
	',': "_c",
	'*': "_p",
	'^': "_x",
	'~': "_r",
	'&': "_R",
	'[': "_o",
	']': "_e",
	'(': "_O",
	')': "_C",
	' ': "_w",
}

var unescapes = func() map[byte]byte {
	m := make(map[byte]byte, len(escapes))
	for c, esc := range escapes {
		m[esc[1]] = c
	}
	return m
}()

// Mangle turns a qualified name into a C identifier. Letters and digits pass
// through; reserved characters use a fixed escape and any other byte is
// written as _hXX.
func Mangle(name string) string {
	var sb strings.Builder
	sb.Grow(len(name) + 8)
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		case escapes[c] != "":
			sb.WriteString(escapes[c])
		default:
			fmt.Fprintf(&sb, "_h%02x", c)
		}
	}
	return sb.String()
}

// Demangle reverses Mangle.
func Demangle(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			sb.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("demangle %q: dangling escape", s)
		}
		code := s[i+1]
		if code == 'h' {
			if i+3 >= len(s) {
				return "", fmt.Errorf("demangle %q: short hex escape", s)
			}
			b, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return "", fmt.Errorf("demangle %q: %w", s, err)
			}
			sb.WriteByte(byte(b))
			i += 3
			continue
		}
		c, ok := unescapes[code]
		if !ok {
			return "", fmt.Errorf("demangle %q: unknown escape _%c", s, code)
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), nil
}

// headerGuard returns the include guard macro of a package header. Case is
// kept so distinct escapes stay distinct.
func headerGuard(pkgPath string) string {
	return "FYR_" + Mangle(pkgPath) + "_H"
}
