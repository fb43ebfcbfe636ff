package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"fyrc/internal/config"
	"fyrc/internal/irfile"
)

// loadConfig reads --config or the nearest fyrc.toml.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		return config.Load(path)
	}
	return config.Discover(".")
}

// expandInputs replaces directories by the IR files they contain, sorted.
// With no arguments the working directory is searched.
func expandInputs(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), irfile.Ext) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		inputs = append(inputs, found...)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no %s files found", irfile.Ext)
	}
	return inputs, nil
}
