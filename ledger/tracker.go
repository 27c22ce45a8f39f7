package ledger

import "sync"

// RequestTracker discards stale fetch results. Each fetch for a key takes a
// generation from Begin; only the latest generation may publish its result.
// A late response from an older fetch is dropped instead of overwriting
// newer data.
type RequestTracker struct {
	mu      sync.Mutex
	current map[string]uint64
}

func NewRequestTracker() *RequestTracker {
	return &RequestTracker{current: make(map[string]uint64)}
}

// Begin starts a new fetch for key and supersedes every earlier one.
func (t *RequestTracker) Begin(key string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[key]++
	return t.current[key]
}

// IsCurrent reports whether gen is still the latest fetch for key.
func (t *RequestTracker) IsCurrent(key string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current[key] == gen
}

// Publish runs fn only if gen is still current, holding the tracker lock so
// a newer Begin cannot interleave with the publish. It reports whether fn ran.
func (t *RequestTracker) Publish(key string, gen uint64, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current[key] != gen {
		return false
	}
	fn()
	return true
}
