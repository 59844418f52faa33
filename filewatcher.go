package main

import (
	"sync"
	"time"
)

const (
	// watchDebounce is how long a file must stay quiet before it is reassembled
	watchDebounce = 500 * time.Millisecond
	// watchPoll bounds how long Watch waits between context checks
	watchPoll = 100 * time.Millisecond
)

// debouncer coalesces bursts of change events per path into one call
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*time.Timer
	fire    func(string)
	stopped bool
}

func newDebouncer(delay time.Duration, fire func(string)) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*time.Timer),
		fire:    fire,
	}
}

// touch (re)starts the quiet period of path
func (d *debouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if timer, exists := d.pending[path]; exists {
		timer.Stop()
	}
	d.pending[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.pending, path)
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.fire(path)
		}
	})
}

// stop cancels all pending calls
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, timer := range d.pending {
		timer.Stop()
		delete(d.pending, path)
	}
}
