// Package state holds the process-wide activity metrics: keyboard and mouse
// event counters plus the idle clock.
//
// All fields are lock-free atomics with sequentially-consistent semantics.
// The hook thread writes, any host thread reads; there is no ordering
// guarantee between a keyboard and a mouse event arriving concurrently -
// each publishes independently.
package state

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of the counters and idle clock, taken for
// the activity log.
type Snapshot struct {
	Timestamp     int64
	KeyboardCount uint64
	MouseCount    uint64
	IdleSeconds   uint64
}

// State is the shared activity state for one engine instance.
//
// The zero value is not usable; construct with New. A last-activity value of
// 0 means "no genuine activity since the last reset", not "idle for zero
// seconds".
type State struct {
	keyboard     atomic.Uint64
	mouse        atomic.Uint64
	lastActivity atomic.Uint64 // epoch seconds, 0 = never
	monitoring   atomic.Bool

	now func() time.Time
}

// New creates a State using the wall clock.
func New() *State {
	return NewWithClock(time.Now)
}

// NewWithClock creates a State with an injected clock, for tests.
func NewWithClock(now func() time.Time) *State {
	return &State{now: now}
}

// IncrementKeyboard adds one countable keyboard event.
func (s *State) IncrementKeyboard() {
	s.keyboard.Add(1)
}

// IncrementMouse adds one mouse event.
func (s *State) IncrementMouse() {
	s.mouse.Add(1)
}

// Touch records genuine activity "now", resetting the idle clock.
// The idle clock never moves backward through any other operation.
func (s *State) Touch() {
	s.lastActivity.Store(uint64(s.now().Unix()))
}

// KeyboardCount returns the keyboard event counter.
func (s *State) KeyboardCount() uint64 {
	return s.keyboard.Load()
}

// MouseCount returns the mouse event counter.
func (s *State) MouseCount() uint64 {
	return s.mouse.Load()
}

// LastActivity returns the epoch seconds of the most recent genuine event,
// or 0 if none has occurred since the last reset.
func (s *State) LastActivity() uint64 {
	return s.lastActivity.Load()
}

// IdleTime returns whole seconds elapsed since the last genuine event.
// Returns 0 when no genuine activity has ever occurred (the 0 sentinel) or
// when the clock appears to have moved backward.
func (s *State) IdleTime() uint64 {
	last := s.lastActivity.Load()
	if last == 0 {
		return 0
	}
	now := uint64(s.now().Unix())
	if now < last {
		return 0
	}
	return now - last
}

// Reset zeroes both counters and sets the idle clock to "just became
// active". A reset pretends activity just happened; it does not return the
// clock to the never-active sentinel.
func (s *State) Reset() {
	s.keyboard.Store(0)
	s.mouse.Store(0)
	s.lastActivity.Store(uint64(s.now().Unix()))
}

// SetMonitoring flips the monitoring flag and reports whether the value
// changed. Used by the control surface for idempotent start/stop.
func (s *State) SetMonitoring(on bool) bool {
	return s.monitoring.CompareAndSwap(!on, on)
}

// Monitoring reports whether a hook session is supposed to be alive.
func (s *State) Monitoring() bool {
	return s.monitoring.Load()
}

// Snapshot captures the current counters and idle time.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:     s.now().Unix(),
		KeyboardCount: s.keyboard.Load(),
		MouseCount:    s.mouse.Load(),
		IdleSeconds:   s.IdleTime(),
	}
}
