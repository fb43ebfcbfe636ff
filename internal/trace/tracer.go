package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer receives events. Implementations are safe for concurrent use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop discards everything.
var Nop Tracer = nopTracer{}

// StorageMode selects where events go.
type StorageMode uint8

const (
	// ModeStream writes events as they happen.
	ModeStream StorageMode = iota + 1
	// ModeRing keeps the most recent events in memory.
	ModeRing
	// ModeBoth streams and keeps a ring.
	ModeBoth
)

func (m StorageMode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeRing:
		return "ring"
	case ModeBoth:
		return "both"
	}
	return "unknown"
}

// ParseMode converts a flag value to a StorageMode.
func ParseMode(s string) (StorageMode, error) {
	for _, m := range []StorageMode{ModeStream, ModeRing, ModeBoth} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return ModeStream, fmt.Errorf("invalid trace mode: %q (expected: stream|ring|both)", s)
}

// DefaultRingSize is used when Config.RingSize is not positive.
const DefaultRingSize = 4096

// Config describes a tracer.
type Config struct {
	Level  Level
	Mode   StorageMode
	Format Format
	// Output takes precedence over OutputPath.
	Output io.Writer
	// OutputPath is a file name; "" and "-" mean stderr.
	OutputPath string
	RingSize   int
}

// New builds the tracer described by cfg.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.Mode == ModeRing {
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	}
	if cfg.Mode != ModeStream && cfg.Mode != ModeBoth {
		return nil, fmt.Errorf("unknown trace mode: %v", cfg.Mode)
	}

	w := cfg.Output
	if w == nil {
		if cfg.OutputPath == "" || cfg.OutputPath == "-" {
			w = os.Stderr
		} else {
			f, err := os.Create(cfg.OutputPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open trace output: %w", err)
			}
			w = f
		}
	}
	stream := NewStreamTracer(w, cfg.Level, cfg.Format.resolve(cfg.OutputPath))
	if cfg.Mode == ModeStream {
		return stream, nil
	}
	return NewMultiTracer(cfg.Level, stream, NewRingTracer(cfg.RingSize, cfg.Level)), nil
}
