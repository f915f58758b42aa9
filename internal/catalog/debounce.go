package catalog

import (
	"sync"
	"time"
)

// DefaultSearchDelay is the pause after the last keystroke before a search
// fires.
const DefaultSearchDelay = 275 * time.Millisecond

// Debouncer collapses a burst of triggers into the last one. Each Trigger
// resets the timer; only the function from the final call in a burst runs.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn after the debounce delay, replacing any previously
// scheduled function.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels a pending trigger, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
