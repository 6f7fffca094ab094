// Package engine exposes the activity-monitoring control surface to the
// host application.
//
// An Engine instance owns its tracker, shared state and platform hook
// adapter; hosts construct one and hold it rather than going through
// process-global state, so tests can run multiple isolated instances.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"activityd/internal/actlog"
	"activityd/internal/hook"
	"activityd/internal/state"
	"activityd/internal/tracker"
)

// Options configures an Engine.
type Options struct {
	// KeyTimeout is the auto-repeat dedup / stuck-key window.
	// Zero means tracker.DefaultKeyTimeout.
	KeyTimeout time.Duration

	// PumpInterval and CleanupInterval tune the hook adapter.
	PumpInterval    time.Duration
	CleanupInterval time.Duration

	// Clock overrides the wall clock, for tests.
	Clock func() time.Time

	// Logger receives lifecycle events. Nil uses slog.Default().
	Logger *slog.Logger
}

// AdapterFunc builds a hook adapter around the engine's dispatcher. Used to
// substitute the simulated adapter in tests or the D-Bus fallback probe.
type AdapterFunc func(*hook.Dispatcher) hook.Adapter

// Engine is the activity-classification engine.
//
// The monitoring flag is true iff a hook pump is alive: a watchdog observes
// the adapter's Done channel and reverts the flag if the pump exits without
// StopMonitoring being called (hook revoked, devices unplugged).
type Engine struct {
	log     *slog.Logger
	state   *state.State
	tracker *tracker.Tracker
	adapter hook.Adapter

	mu     sync.Mutex
	cancel context.CancelFunc
	// session generation; lets the watchdog of a dead session recognize it
	// is stale and leave the flag alone
	gen uint64
}

// New creates an Engine backed by the platform hook adapter.
func New(opts Options) *Engine {
	return NewWithAdapter(opts, nil)
}

// NewWithAdapter creates an Engine with a caller-supplied adapter factory.
// A nil factory selects the platform adapter.
func NewWithAdapter(opts Options, mk AdapterFunc) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := state.NewWithClock(clock)
	tr := tracker.New(opts.KeyTimeout)
	d := hook.NewDispatcher(tr, st, clock)

	var a hook.Adapter
	if mk != nil {
		a = mk(d)
	} else {
		a = hook.New(d, hook.Options{
			PumpInterval:    opts.PumpInterval,
			CleanupInterval: opts.CleanupInterval,
		})
	}

	return &Engine{
		log:     logger,
		state:   st,
		tracker: tr,
		adapter: a,
	}
}

// StartMonitoring begins a hook session. Returns false without side effects
// when already monitoring, and false when hook installation fails - the
// monitoring flag reflects actual hook success, never mere intent.
func (e *Engine) StartMonitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Monitoring() {
		return false
	}

	e.state.Reset()
	e.tracker.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.adapter.Start(ctx); err != nil {
		cancel()
		e.log.Error("hook installation failed", "error", err)
		return false
	}

	e.cancel = cancel
	e.gen++
	e.state.SetMonitoring(true)
	go e.watch(e.gen, e.adapter.Done())

	e.log.Info("monitoring started")
	return true
}

// watch reverts the monitoring flag if this session's pump exits without a
// StopMonitoring call.
func (e *Engine) watch(gen uint64, done <-chan struct{}) {
	if done == nil {
		return
	}
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen && e.state.Monitoring() {
		e.state.SetMonitoring(false)
		e.log.Warn("input hook exited unexpectedly; monitoring disabled")
	}
}

// StopMonitoring tears down the hook session. Returns false without side
// effects when not monitoring.
func (e *Engine) StopMonitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Monitoring() {
		return false
	}

	e.state.SetMonitoring(false)
	e.gen++ // retire the session's watchdog
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if err := e.adapter.Stop(); err != nil {
		e.log.Error("hook teardown failed", "error", err)
	}

	e.log.Info("monitoring stopped")
	return true
}

// Monitoring reports whether a hook session is alive.
func (e *Engine) Monitoring() bool {
	return e.state.Monitoring()
}

// KeyboardCount returns the countable keyboard events since the last reset.
func (e *Engine) KeyboardCount() uint64 {
	return e.state.KeyboardCount()
}

// MouseCount returns the mouse events since the last reset.
func (e *Engine) MouseCount() uint64 {
	return e.state.MouseCount()
}

// IdleTime returns whole seconds since the last genuine activity, or 0 if
// none has occurred since the last reset.
func (e *Engine) IdleTime() uint64 {
	return e.state.IdleTime()
}

// ResetCounters zeroes the counters, resets the idle clock to "just became
// active" and clears the pressed-key set. Callable whether or not
// monitoring is active.
func (e *Engine) ResetCounters() {
	e.state.Reset()
	e.tracker.Reset()
}

// SaveActivityLog appends one snapshot record to the CSV log at path and, on
// confirmed success, resets the counters - each record closes an accounting
// window. On failure the counters are left untouched.
func (e *Engine) SaveActivityLog(path string) error {
	snap := e.state.Snapshot()
	if err := actlog.Append(path, snap); err != nil {
		return err
	}
	e.ResetCounters()
	e.log.Debug("activity log flushed",
		"path", path,
		"keyboard", snap.KeyboardCount,
		"mouse", snap.MouseCount,
		"idle_seconds", snap.IdleSeconds)
	return nil
}

// SetKeyTimeout applies a new auto-repeat window, e.g. on config reload.
// Takes effect immediately, without restarting the hook session.
func (e *Engine) SetKeyTimeout(d time.Duration) {
	e.tracker.SetTimeout(d)
}

// Available reports whether the underlying hook adapter can run here, with
// a human-readable reason.
func (e *Engine) Available() (bool, string) {
	return e.adapter.Available()
}
