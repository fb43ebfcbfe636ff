package buildpipeline

import "time"

// Stage describes a phase of one package build.
type Stage string

const (
	// StageDecode reads and decodes the IR file.
	StageDecode Stage = "decode"
	// StageLower replays the IR through the builder into the backend.
	StageLower Stage = "lower"
	// StageGenerate runs the per-function passes and assembles the module.
	StageGenerate Stage = "generate"
	// StageWrite writes header, implementation and dumps.
	StageWrite Stage = "write"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageDecode, StageLower, StageGenerate, StageWrite}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusCached indicates the output came from the cache.
	StatusCached Status = "cached"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for an input (or for the overall build when File
// is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Builds call it from several
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds the duration of each finished stage of one package.
type Timings struct {
	stages map[Stage]time.Duration
}

// Set records dur for stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration, len(Stages))
	}
	t.stages[stage] = dur
}

// Of returns the duration of stage, 0 when it did not run.
func (t Timings) Of(stage Stage) time.Duration {
	return t.stages[stage]
}

// Total sums every recorded stage.
func (t Timings) Total() time.Duration {
	var total time.Duration
	for _, d := range t.stages {
		total += d
	}
	return total
}
