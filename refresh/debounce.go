package refresh

import (
	"sync"
	"time"
)

// Debouncer calls fn once per key, wait after the last Trigger for that key.
// Triggers arriving while a call is pending push it back.
type Debouncer[K comparable] struct {
	wait time.Duration
	fn   func(K)

	mu      sync.Mutex
	timers  map[K]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewDebouncer[K comparable](wait time.Duration, fn func(K)) *Debouncer[K] {
	return &Debouncer[K]{wait: wait, fn: fn, timers: make(map[K]*time.Timer)}
}

func (d *Debouncer[K]) Trigger(key K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok && t.Stop() {
		t.Reset(d.wait)
		return
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.wait, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[key] == t {
			delete(d.timers, key)
		}
		d.mu.Unlock()
		d.fn(key)
	})
	d.timers[key] = t
}

// Pending reports how many keys are waiting to fire.
func (d *Debouncer[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop drops pending calls and waits for running ones.
func (d *Debouncer[K]) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
