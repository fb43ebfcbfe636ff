package trace

import (
	"fmt"
	"strings"
)

// Level controls which scopes are recorded.
type Level uint8

const (
	LevelOff Level = iota
	LevelPackage
	LevelFunc
	LevelPhase
)

var levelNames = [...]string{
	LevelOff:     "off",
	LevelPackage: "package",
	LevelFunc:    "func",
	LevelPhase:   "phase",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a flag value to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(s)
	for l, n := range levelNames {
		if n == name {
			return Level(l), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// ShouldEmit reports whether events of scope are recorded at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPackage:
		return scope <= ScopePackage
	case LevelFunc:
		return scope <= ScopeFunc
	case LevelPhase:
		return true
	}
	return false
}
