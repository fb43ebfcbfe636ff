// Package trace records what fyrc is doing while it builds: the build as a
// whole, each package, each function and each SSA phase.
//
//	fyrc build --trace=- --trace-level=func pkg.fyrir
//
// Levels select scopes. LevelPackage shows build and package spans,
// LevelFunc adds a span per function and LevelPhase adds a span per phase.
// In ring mode events stay in memory and are dumped only when the build
// fails.
//
// The tracer and the current span travel in the context:
//
//	ctx, span := trace.Start(ctx, trace.ScopePackage, "package main")
//	defer span.End("")
package trace
