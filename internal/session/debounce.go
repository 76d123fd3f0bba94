package session

import (
	"time"
)

// DefaultDebounce is the quiet window before an edit is auto-applied.
const DefaultDebounce = 400 * time.Millisecond

type applyKind int

const (
	applyPrompts applyKind = iota
	applyConfig
)

func (k applyKind) String() string {
	if k == applyPrompts {
		return "prompts"
	}
	return "config"
}

// fire is delivered to the session loop when a debounce window elapses.
type fire struct {
	kind applyKind
	gen  uint64
}

// debouncer holds at most one pending fire. Every schedule or cancel bumps
// the generation; the loop drops fires whose generation is stale, which also
// covers a timer that fired just before it was stopped.
// Only the session loop touches it.
type debouncer struct {
	kind   applyKind
	window time.Duration
	out    chan<- fire
	done   <-chan struct{}

	gen   uint64
	timer *time.Timer
}

func newDebouncer(kind applyKind, window time.Duration, out chan<- fire, done <-chan struct{}) *debouncer {
	return &debouncer{kind: kind, window: window, out: out, done: done}
}

// schedule restarts the window from now.
func (d *debouncer) schedule() {
	d.cancel()
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		select {
		case d.out <- fire{kind: d.kind, gen: gen}:
		case <-d.done:
		}
	})
}

// cancel drops any pending fire.
func (d *debouncer) cancel() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// take reports whether f is the live fire and consumes it.
func (d *debouncer) take(f fire) bool {
	if f.gen != d.gen || d.timer == nil {
		return false
	}
	d.timer = nil
	return true
}
