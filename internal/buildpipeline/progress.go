package buildpipeline

import (
	"path/filepath"
	"strings"
	"time"
)

// InputNames returns the names under which Build reports inputs: relative
// to baseDir where possible and slash separated, in input order.
func InputNames(files []string, baseDir string) []string {
	names := make([]string, len(files))

	base := strings.TrimSpace(baseDir)
	if base != "" {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
	}

	for i, file := range files {
		path := filepath.Clean(file)
		if base != "" {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			if rel, err := filepath.Rel(base, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				path = rel
			}
		}
		names[i] = filepath.ToSlash(path)
	}
	return names
}

func emitQueued(sink ProgressSink, files []string) {
	if sink == nil {
		return
	}
	for _, file := range files {
		sink.OnEvent(Event{File: file, Stage: StageDecode, Status: StatusQueued})
	}
}

func emitStage(sink ProgressSink, file string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{File: file, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

func emitOverall(sink ProgressSink, status Status, err error) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Stage: StageWrite, Status: status, Err: err})
}
