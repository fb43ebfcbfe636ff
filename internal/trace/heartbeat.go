package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat emits a periodic event carrying the number of open spans. A
// build that keeps beating with a constant open count is stuck.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat returns nil when t is disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for beat := 1; ; beat++ {
			select {
			case now := <-ticker.C:
				t.Emit(&Event{
					Time:   now,
					Seq:    NextSeq(),
					Kind:   KindHeartbeat,
					Scope:  ScopeBuild,
					Name:   "heartbeat",
					Detail: fmt.Sprintf("#%d open=%d", beat, OpenSpans()),
				})
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for the goroutine to exit.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
