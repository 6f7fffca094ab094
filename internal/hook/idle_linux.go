//go:build linux

package hook

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

// Mutter IdleMonitor session-bus endpoint.
const (
	idleMonitorDest   = "org.gnome.Mutter.IdleMonitor"
	idleMonitorPath   = "/org/gnome/Mutter/IdleMonitor/Core"
	idleMonitorMethod = "org.gnome.Mutter.IdleMonitor.GetIdletime"

	// The compositor only reports milliseconds-since-last-input, so the
	// probe polls instead of pumping events; once per second is plenty.
	idleProbeInterval = time.Second
)

// IdleProbe is a degraded Linux adapter for hosts without evdev access. It
// polls the compositor's idle monitor over the session bus and resets the
// idle clock whenever the reported idle time drops (i.e. the user did
// something). Counters are never advanced: the probe cannot observe
// individual events, only that activity happened.
type IdleProbe struct {
	base
	d *Dispatcher

	cancel context.CancelFunc
}

// NewIdleProbe creates the D-Bus fallback adapter.
func NewIdleProbe(d *Dispatcher) *IdleProbe {
	return &IdleProbe{d: d}
}

func newFallbackAdapter(d *Dispatcher) (Adapter, bool) {
	return NewIdleProbe(d), true
}

// Available checks that the compositor exposes an idle monitor.
func (p *IdleProbe) Available() (bool, string) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return false, fmt.Sprintf("session bus unavailable: %v", err)
	}
	defer conn.Close()
	if _, err := queryIdletime(conn); err != nil {
		return false, fmt.Sprintf("idle monitor unavailable: %v", err)
	}
	return true, "Mutter IdleMonitor available (idle clock only, no event counters)"
}

// Start connects to the session bus and begins polling. The first query is
// performed before Start returns so failure is synchronous.
func (p *IdleProbe) Start(ctx context.Context) error {
	done, err := p.begin()
	if err != nil {
		return err
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		p.end()
		return fmt.Errorf("%w: session bus: %v", ErrNotAvailable, err)
	}
	last, err := queryIdletime(conn)
	if err != nil {
		conn.Close()
		p.end()
		return fmt.Errorf("%w: idle monitor: %v", ErrNotAvailable, err)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.d.Reset()
	go p.pump(ctx, done, conn, last)
	return nil
}

func (p *IdleProbe) pump(ctx context.Context, done chan struct{}, conn *dbus.Conn, last uint64) {
	defer close(done)
	defer p.end()
	defer conn.Close()

	ticker := time.NewTicker(idleProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle, err := queryIdletime(conn)
			if err != nil {
				// Compositor went away; let the watchdog reconcile.
				return
			}
			last = p.observe(idle, last)
		}
	}
}

// observe compares successive compositor idle readings and returns the new
// baseline. A drop means input happened since the last poll; only the idle
// clock is touched, since the probe cannot see individual events.
func (p *IdleProbe) observe(idle, last uint64) uint64 {
	if idle < last {
		p.d.Wake()
	}
	return idle
}

// Stop signals the pump and waits one grace period for it to exit.
func (p *IdleProbe) Stop() error {
	if !p.Running() {
		return nil
	}
	done := p.Done()
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
	}
	p.d.Reset()
	return nil
}

// queryIdletime returns the compositor-reported idle time in milliseconds.
func queryIdletime(conn *dbus.Conn) (uint64, error) {
	obj := conn.Object(idleMonitorDest, dbus.ObjectPath(idleMonitorPath))
	call := obj.Call(idleMonitorMethod, 0)
	if call.Err != nil {
		return 0, call.Err
	}
	var idleMs uint64
	if err := call.Store(&idleMs); err != nil {
		return 0, err
	}
	return idleMs, nil
}
