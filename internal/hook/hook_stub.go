//go:build !darwin && !linux && !windows

package hook

import "context"

// stubAdapter is used on platforms without an input hook implementation.
type stubAdapter struct {
	base
	d *Dispatcher
}

func newPlatformAdapter(d *Dispatcher, _ Options) Adapter {
	return &stubAdapter{d: d}
}

func (s *stubAdapter) Available() (bool, string) {
	return false, "input monitoring not implemented for this platform"
}

func (s *stubAdapter) Start(ctx context.Context) error {
	return ErrNotAvailable
}

func (s *stubAdapter) Stop() error {
	return nil
}
