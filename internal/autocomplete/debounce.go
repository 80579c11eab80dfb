package autocomplete

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid successive calls into one deferred invocation.
// Used so fast typing does not recompute suggestions on every keystroke.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Debounce schedules fn after the debounce duration; a newer call resets the
// timer and drops the previously scheduled fn. A zero duration runs fn
// synchronously, which keeps tests deterministic.
func (d *Debouncer) Debounce(fn func()) {
	if d.duration <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops any pending invocation.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
