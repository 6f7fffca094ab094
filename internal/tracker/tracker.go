// Package tracker implements the key-press deduplication state machine.
//
// Hardware keyboards auto-repeat a held key as a stream of duplicate
// key-down events. The tracker remembers when each key was last pressed and
// classifies every raw key event as either a new genuine press or a
// repeat/release to be ignored, so a held key counts once rather than
// hundreds of times.
package tracker

import (
	"sync"
	"time"
)

// DefaultKeyTimeout governs both how long a re-pressed key must wait before
// an auto-repeat counts as new activity, and how long a stuck key may remain
// tracked before forced eviction.
const DefaultKeyTimeout = 2 * time.Second

// Tracker holds per-key press timestamps behind a single mutex. The lock is
// held only for the duration of a classify/cleanup/reset call; no I/O
// happens under it.
type Tracker struct {
	mu      sync.Mutex
	pressed map[uint32]time.Time
	timeout time.Duration
}

// New creates a Tracker. A non-positive timeout falls back to
// DefaultKeyTimeout.
func New(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultKeyTimeout
	}
	return &Tracker{
		pressed: make(map[uint32]time.Time),
		timeout: timeout,
	}
}

// Classify decides whether a raw key event is new activity.
//
// A key-down is countable and genuine when the key is not currently tracked,
// or when its stored press is older than the key timeout. Duplicate
// key-downs inside the window are suppressed. A key-up clears the key's
// suppression and is never countable nor genuine: only the transition into a
// fresh press is activity.
func (t *Tracker) Classify(key uint32, down bool, now time.Time) (countable, genuine bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if down {
		last, held := t.pressed[key]
		if !held || now.Sub(last) > t.timeout {
			t.pressed[key] = now
			return true, true
		}
		return false, false
	}

	delete(t.pressed, key)
	return false, false
}

// CleanupStale evicts every key whose press is at least the key timeout old
// and returns the number evicted. The pump loop calls this periodically to
// self-heal from key-up events the OS never delivered (focus loss, hook
// coalescing); without it a stuck key would silently block all future
// counting of that key.
func (t *Tracker) CleanupStale(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for key, last := range t.pressed {
		if now.Sub(last) >= t.timeout {
			delete(t.pressed, key)
			evicted++
		}
	}
	return evicted
}

// Reset forgets all tracked keys. Called whenever monitoring starts or the
// counters are explicitly reset.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pressed = make(map[uint32]time.Time)
}

// SetTimeout changes the key timeout, for config hot reload. A non-positive
// value restores the default.
func (t *Tracker) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultKeyTimeout
	}
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
}

// Timeout returns the current key timeout.
func (t *Tracker) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// TrackedKeys returns the number of keys currently tracked as pressed.
func (t *Tracker) TrackedKeys() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pressed)
}
