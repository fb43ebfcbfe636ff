// Package config loads fyrc.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"fyrc/internal/types"
)

// FileName is the project configuration file looked up from the working
// directory upwards.
const FileName = "fyrc.toml"

// Config is the decoded project configuration.
type Config struct {
	Target TargetConfig `toml:"target"`
	Build  BuildConfig  `toml:"build"`
	Emit   EmitConfig   `toml:"emit"`

	// Path is the file the configuration came from; empty for defaults.
	Path string `toml:"-"`
}

type TargetConfig struct {
	Name    string `toml:"name"`
	PtrSize int    `toml:"ptr_size"`
	IntSize int    `toml:"int_size"`
}

type BuildConfig struct {
	OutDir string `toml:"out_dir"`
	// Jobs bounds parallel package builds; 0 means GOMAXPROCS.
	Jobs           int  `toml:"jobs"`
	Cache          bool `toml:"cache"`
	RuntimeHeaders bool `toml:"runtime_headers"`
}

type EmitConfig struct {
	IR       bool `toml:"ir"`
	Comments bool `toml:"comments"`
}

// Default returns the configuration used without a fyrc.toml.
func Default() Config {
	tg := types.DefaultTarget()
	return Config{
		Target: TargetConfig{Name: tg.Name, PtrSize: tg.PtrSize, IntSize: tg.IntSize},
		Build: BuildConfig{
			OutDir:         "build",
			Cache:          true,
			RuntimeHeaders: true,
		},
	}
}

// TypesTarget converts the target section.
func (c *Config) TypesTarget() types.Target {
	return types.Target{Name: c.Target.Name, PtrSize: c.Target.PtrSize, IntSize: c.Target.IntSize}
}

// Find looks for fyrc.toml in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest fyrc.toml, or the defaults if there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load decodes path. Keys that are absent keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("target", "ptr_size") && !meta.IsDefined("target", "name") {
		cfg.Target.Name = fmt.Sprintf("c-p%d", cfg.Target.PtrSize*8)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Target.PtrSize {
	case 4, 8:
	default:
		errs = append(errs, fmt.Errorf("[target].ptr_size must be 4 or 8, got %d", c.Target.PtrSize))
	}
	// the C runtime defines int_t and uint_t as 32-bit
	if c.Target.IntSize != 4 {
		errs = append(errs, fmt.Errorf("[target].int_size must be 4 for the C target, got %d", c.Target.IntSize))
	}
	if c.Build.Jobs < 0 {
		errs = append(errs, fmt.Errorf("[build].jobs must not be negative"))
	}
	if strings.TrimSpace(c.Build.OutDir) == "" {
		errs = append(errs, fmt.Errorf("[build].out_dir must not be empty"))
	}
	return errors.Join(errs...)
}
