package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fyrc/internal/config"
)

func write(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if cfg.Path != "" || cfg.Build.OutDir != "build" || !cfg.Build.Cache || cfg.Target.PtrSize != 8 || cfg.Target.IntSize != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "[target]\nptr_size = 4\n\n[emit]\ncomments = true\n")
	sub := filepath.Join(dir, "src", "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Discover(sub)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if cfg.Path != path {
		t.Fatalf("found %q, want %q", cfg.Path, path)
	}
	tg := cfg.TypesTarget()
	if tg.PtrSize != 4 || tg.IntSize != 4 || tg.Name != "c-p32" {
		t.Fatalf("unexpected target: %+v", tg)
	}
	if !cfg.Emit.Comments || cfg.Emit.IR || cfg.Build.OutDir != "build" || !cfg.Build.RuntimeHeaders {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"pointer size", "[target]\nptr_size = 2\n", "ptr_size"},
		{"int size", "[target]\nint_size = 3\n", "int_size"},
		{"wide int", "[target]\nint_size = 8\n", "int_size must be 4"},
		{"jobs", "[build]\njobs = -1\n", "jobs"},
		{"unknown key", "[build]\nwarp = true\n", "unknown keys: build.warp"},
		{"syntax", "[build\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, t.TempDir(), tt.body)
			_, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
