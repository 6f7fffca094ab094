// Package hook bridges OS-level raw input delivery into the activity
// classification engine.
//
// IMPORTANT: adapters observe that input occurred - they do NOT capture what
// was typed or clicked. Keyboard events carry only an opaque platform key
// identifier used for auto-repeat deduplication; mouse events carry nothing.
//
// Platform support:
//   - Windows: low-level keyboard and mouse hooks (SetWindowsHookExW)
//   - Linux:   /dev/input/event* (requires input group or root), with a
//     D-Bus idle-monitor fallback when evdev is not readable
//   - macOS:   CGEventTap (requires Accessibility permission)
//
// All native-call surface lives in this package; the tracker and state
// packages never touch platform APIs and are unit-testable with synthetic
// events via the Simulated adapter.
package hook

import (
	"context"
	"errors"
	"sync"
	"time"

	"activityd/internal/state"
	"activityd/internal/tracker"
)

// Default pump and cleanup cadence. The pump interval bounds stop latency;
// the cleanup interval bounds how long a stuck key survives.
const (
	DefaultPumpInterval    = 50 * time.Millisecond
	DefaultCleanupInterval = 10 * time.Second
)

// stopGracePeriod bounds how long Stop waits for the pump to observe
// cancellation before the defensive forced hook teardown.
const stopGracePeriod = 100 * time.Millisecond

// ErrNotAvailable is returned when input monitoring isn't available on this
// platform or with the current permissions.
var ErrNotAvailable = errors.New("input monitoring not available")

// ErrPermissionDenied is returned when the OS denies hook installation.
var ErrPermissionDenied = errors.New("insufficient permissions for input monitoring")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("hook adapter already running")

// Adapter is the per-platform input hook lifecycle.
//
// Start installs the OS hook and spawns the pump; it returns only after hook
// installation has succeeded or failed, so a nil return means events are
// flowing. Stop is cooperative with a bounded grace period and then forcibly
// tears the hook down. Done is closed when the pump exits, whether by Stop
// or by the OS revoking the hook; hosts watch it to reconcile their
// monitoring flag.
type Adapter interface {
	Start(ctx context.Context) error
	Stop() error
	Available() (bool, string)
	Done() <-chan struct{}
}

// Options tunes adapter timing.
type Options struct {
	PumpInterval    time.Duration
	CleanupInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PumpInterval <= 0 {
		o.PumpInterval = DefaultPumpInterval
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	return o
}

// New creates the Adapter for the current platform.
func New(d *Dispatcher, opts Options) Adapter {
	return newPlatformAdapter(d, opts.withDefaults())
}

// NewFallback returns the degraded adapter for the current platform, if it
// has one. A fallback maintains the idle clock when the full input hook
// cannot run; it never advances the event counters.
func NewFallback(d *Dispatcher) (Adapter, bool) {
	return newFallbackAdapter(d)
}

// Dispatcher routes decoded events through the tracker into the shared
// state. It is what platform adapters call from their pump; it contains no
// native code and is exercised directly by tests.
type Dispatcher struct {
	tracker *tracker.Tracker
	state   *state.State
	now     func() time.Time
}

// NewDispatcher wires a dispatcher. A nil clock uses the wall clock.
func NewDispatcher(tr *tracker.Tracker, st *state.State, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{tracker: tr, state: st, now: now}
}

// HandleKey classifies one decoded keyboard event. A countable event
// increments the keyboard counter; a genuine one resets the idle clock.
func (d *Dispatcher) HandleKey(code uint32, down bool) {
	countable, genuine := d.tracker.Classify(code, down, d.now())
	if countable {
		d.state.IncrementKeyboard()
	}
	if genuine {
		d.state.Touch()
	}
}

// HandleMouse records one mouse event. Every mouse event is unconditionally
// genuine: mouse hardware has no auto-repeat analog, so no dedup applies.
func (d *Dispatcher) HandleMouse() {
	d.state.IncrementMouse()
	d.state.Touch()
}

// Wake resets the idle clock without advancing any counter. Used by degraded
// adapters (the D-Bus fallback) that can observe that activity happened but
// not the individual events.
func (d *Dispatcher) Wake() {
	d.state.Touch()
}

// Cleanup evicts stale pressed keys; adapters call it on their cleanup tick.
func (d *Dispatcher) Cleanup() int {
	return d.tracker.CleanupStale(d.now())
}

// Reset clears the pressed-key set; called around session boundaries.
func (d *Dispatcher) Reset() {
	d.tracker.Reset()
}

// base carries the running flag and pump-exit channel shared by adapters.
type base struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// begin transitions to running and returns the fresh done channel the pump
// must close on exit.
func (b *base) begin() (chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrAlreadyRunning
	}
	b.running = true
	b.done = make(chan struct{})
	return b.done, nil
}

// end marks the adapter stopped. Safe to call from the pump or from Stop.
func (b *base) end() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// Running reports whether a pump is alive.
func (b *base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Done returns the channel closed when the current pump exits. Before the
// first Start it returns nil, which blocks forever in a select.
func (b *base) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
