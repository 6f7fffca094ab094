//go:build !linux

package hook

// No degraded adapter exists off Linux: Windows hooks need no extra
// privilege, and macOS without Accessibility permission exposes nothing
// an unprivileged process could poll instead.
func newFallbackAdapter(d *Dispatcher) (Adapter, bool) {
	return nil, false
}
