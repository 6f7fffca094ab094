//go:build linux

package hook

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// TestPumpClosesRevokedDeviceOnce drives the pump with pipes standing in for
// device fds. A revoked device is closed inline when poll flags it; the exit
// path must close only the survivors, otherwise an fd number reused elsewhere
// in the process gets closed out from under its new owner.
func TestPumpClosesRevokedDeviceOnce(t *testing.T) {
	d, _, _ := newTestDispatcher()
	a := &linuxAdapter{d: d, opts: Options{PumpInterval: 10 * time.Millisecond}.withDefaults()}

	done, err := a.begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	var dead, alive [2]int
	if err := unix.Pipe(dead[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if err := unix.Pipe(alive[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(alive[1])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.pump(ctx, done, []int{dead[0], alive[0]})

	// Closing the write end raises POLLHUP; the pump closes the read end
	// inline and drops it from the poll set.
	unix.Close(dead[1])
	time.Sleep(100 * time.Millisecond)

	// A new pipe lands on the lowest free fd numbers, i.e. the ones just
	// released. They must survive the pump's exit.
	var recycled [2]int
	if err := unix.Pipe(recycled[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not exit after cancellation")
	}

	for _, fd := range recycled[:] {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			t.Errorf("recycled fd %d closed by pump exit: %v", fd, err)
		} else {
			unix.Close(fd)
		}
	}
	// The surviving device fd belongs to the pump and is closed on exit.
	if err := unix.Close(alive[0]); err == nil {
		t.Error("surviving device fd should already be closed by the pump")
	}
}
