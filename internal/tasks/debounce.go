// Package tasks provides cancellable scheduled work keyed by a generation
// counter: scheduling again invalidates the effect of any prior pending
// task, deterministically, even if its timer has already fired.
package tasks

import (
	"sync"
	"time"
)

// Debouncer runs at most one pending func. Schedule supersedes any prior
// pending call; a superseded func never runs.
type Debouncer struct {
	Delay time.Duration

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// Schedule arranges for fn to run after the configured delay unless a
// newer Schedule or a Cancel happens first. fn runs on a timer goroutine.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.Delay, func() {
		d.mu.Lock()
		live := d.gen == gen
		d.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Cancel invalidates any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
