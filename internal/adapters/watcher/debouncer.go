// Package watcher turns file system changes into debounced rebuild triggers.
package watcher

import (
	"slices"
	"sync"
	"time"
	"unique"
)

// DefaultDebounceWindow is the quiet period that ends a burst of file events.
const DefaultDebounceWindow = 100 * time.Millisecond

// Debouncer coalesces rapid file system events into one batch of changed paths.
type Debouncer struct {
	mu       sync.Mutex
	pending  map[unique.Handle[string]]struct{}
	timer    *time.Timer
	window   time.Duration
	callback func(paths []string)
}

// NewDebouncer creates a debouncer that calls callback once window has passed without new paths.
func NewDebouncer(window time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{
		pending:  make(map[unique.Handle[string]]struct{}),
		window:   window,
		callback: callback,
	}
}

// Add records a changed path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[unique.Make(path)] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	paths := d.drain()
	d.mu.Unlock()

	if len(paths) > 0 && d.callback != nil {
		d.callback(paths)
	}
}

// Flush delivers pending paths immediately and blocks until the callback returns.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			// The timer fired and fire will deliver the batch.
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}
	paths := d.drain()
	d.mu.Unlock()

	if len(paths) > 0 && d.callback != nil {
		d.callback(paths)
	}
}

// drain returns the sorted pending paths and clears the set. d.mu must be held.
func (d *Debouncer) drain() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(d.pending))
	for handle := range d.pending {
		paths = append(paths, handle.Value())
	}
	clear(d.pending)
	slices.Sort(paths)
	return paths
}
