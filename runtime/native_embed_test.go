package runtimeembed_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	runtimeembed "fyrc/runtime"
)

func TestHeadersDeclareTheABI(t *testing.T) {
	fyr, err := fs.ReadFile(runtimeembed.HeadersFS(), "fyr.h")
	if err != nil {
		t.Fatalf("fyr.h: %v", err)
	}
	for _, want := range []string{"typedef uint8_t* addr_t;", "fyr_dtr_t", "fyr_alloc(", "#define fyr_min"} {
		if !strings.Contains(string(fyr), want) {
			t.Errorf("fyr.h lacks %q", want)
		}
	}
	spawn, err := fs.ReadFile(runtimeembed.HeadersFS(), "fyr_spawn.h")
	if err != nil {
		t.Fatalf("fyr_spawn.h: %v", err)
	}
	if !strings.Contains(string(spawn), "struct fyr_coro_t {") {
		t.Errorf("fyr_spawn.h lacks the coroutine record")
	}
}

func TestWriteHeaders(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := runtimeembed.WriteHeaders(dir)
	if err != nil {
		t.Fatalf("WriteHeaders: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("wrote %v", paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
}
