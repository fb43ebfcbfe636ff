// Package runtimeembed carries the runtime ABI headers that generated C
// units include.
package runtimeembed

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed include/*.h
var headersFS embed.FS

// HeadersFS exposes the embedded headers at their base names.
func HeadersFS() fs.FS {
	sub, err := fs.Sub(headersFS, "include")
	if err != nil {
		panic(err)
	}
	return sub
}

// WriteHeaders copies every header into dir and returns the written paths.
func WriteHeaders(dir string) ([]string, error) {
	entries, err := fs.ReadDir(headersFS, "include")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		data, err := fs.ReadFile(headersFS, "include/"+e.Name())
		if err != nil {
			return nil, err
		}
		p := filepath.Join(dir, e.Name())
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write runtime header: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
