package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"fyrc/internal/cache"
)

func TestPutGet(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "units"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := (&cache.Hasher{}).AddString("demo").AddString("ir bytes").Sum()

	if _, ok, err := c.Get(key); err != nil || ok {
		t.Fatalf("empty cache returned ok=%v err=%v", ok, err)
	}
	in := &cache.Unit{Package: "demo", Header: "h", Impl: "c", Executable: true}
	if err := c.Put(key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	out, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if out.Header != "h" || out.Impl != "c" || !out.Executable || out.Package != "demo" {
		t.Fatalf("unexpected unit %+v", out)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatalf("entry survived Clear")
	}
	if _, err := os.Stat(c.Dir()); err != nil {
		t.Fatalf("Clear removed the cache directory: %v", err)
	}
}

func TestKeysSeparateParts(t *testing.T) {
	a := (&cache.Hasher{}).AddString("ab").AddString("c").Sum()
	b := (&cache.Hasher{}).AddString("a").AddString("bc").Sum()
	if a == b {
		t.Fatalf("part boundaries do not affect the key")
	}
	again := (&cache.Hasher{}).AddString("ab").AddString("c").Sum()
	if a != again {
		t.Fatalf("key is not deterministic")
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *cache.Disk
	key := (&cache.Hasher{}).Sum()
	if err := c.Put(key, &cache.Unit{}); err != nil {
		t.Fatalf("Put on nil cache: %v", err)
	}
	if _, ok, err := c.Get(key); ok || err != nil {
		t.Fatalf("Get on nil cache: ok=%v err=%v", ok, err)
	}
}
