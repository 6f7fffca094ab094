package hook

import (
	"context"
)

// Simulated is an Adapter for tests that feeds synthetic decoded events
// through the dispatcher without touching any OS hook.
type Simulated struct {
	base
	d      *Dispatcher
	cancel context.CancelFunc

	// StartErr, when set, makes Start fail the way a denied hook
	// installation would.
	StartErr error
}

// NewSimulated creates a simulated adapter.
func NewSimulated(d *Dispatcher) *Simulated {
	return &Simulated{d: d}
}

// Available always reports true.
func (s *Simulated) Available() (bool, string) {
	return true, "simulated adapter (for testing)"
}

// Start begins the simulated session.
func (s *Simulated) Start(ctx context.Context) error {
	if s.StartErr != nil {
		return s.StartErr
	}
	done, err := s.begin()
	if err != nil {
		return err
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.d.Reset()

	go func() {
		defer close(done)
		defer s.end()
		<-ctx.Done()
	}()
	return nil
}

// Stop ends the session and waits for the pump to exit.
func (s *Simulated) Stop() error {
	if !s.Running() {
		return nil
	}
	done := s.Done()
	if s.cancel != nil {
		s.cancel()
	}
	if done != nil {
		<-done
	}
	s.d.Reset()
	return nil
}

// Abort kills the pump as if the OS revoked the hook, without the Stop
// bookkeeping. Hosts should observe Done and reconcile.
func (s *Simulated) Abort() {
	if s.cancel != nil {
		s.cancel()
	}
}

// SimulateKey feeds one decoded keyboard event.
func (s *Simulated) SimulateKey(code uint32, down bool) {
	if s.Running() {
		s.d.HandleKey(code, down)
	}
}

// SimulateMouse feeds one decoded mouse event.
func (s *Simulated) SimulateMouse() {
	if s.Running() {
		s.d.HandleMouse()
	}
}

// SimulateCleanup runs the stale-key cleanup pass the pump would run.
func (s *Simulated) SimulateCleanup() int {
	return s.d.Cleanup()
}
