//go:build linux

package hook

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux input_event constants.
const (
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2

	// Key codes at btnMisc and above are buttons (mouse, joystick, touch),
	// not keyboard keys.
	btnMisc = 0x100
)

// inputEvent matches struct input_event for the build architecture.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const eventSize = int(unsafe.Sizeof(inputEvent{}))

// linuxAdapter reads decoded events from /dev/input/event* devices,
// multiplexed with poll(2) so the pump stays responsive to a stop request.
type linuxAdapter struct {
	base
	d    *Dispatcher
	opts Options

	cancel context.CancelFunc
}

func newPlatformAdapter(d *Dispatcher, opts Options) Adapter {
	return &linuxAdapter{d: d, opts: opts}
}

// findInputDevices parses /proc/bus/input/devices for event nodes whose
// handlers mark them as keyboards or mice.
func findInputDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var devices []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "H: Handlers=") {
			continue
		}
		handlers := strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
		var event string
		var wanted bool
		for _, h := range handlers {
			switch {
			case strings.HasPrefix(h, "event"):
				event = "/dev/input/" + h
			case h == "kbd" || strings.HasPrefix(h, "mouse"):
				wanted = true
			}
		}
		if wanted && event != "" {
			devices = append(devices, event)
		}
	}
	return devices, scanner.Err()
}

// Available checks that at least one input device is readable.
func (l *linuxAdapter) Available() (bool, string) {
	devices, err := findInputDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot enumerate input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard or mouse devices found"
	}
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			unix.Close(fd)
			return true, fmt.Sprintf("readable input device: %s", dev)
		}
	}
	return false, "input devices not readable (need membership in the 'input' group or root)"
}

// Start opens the input devices and begins the pump. Device access is
// verified before Start returns, so a nil error means events are flowing.
func (l *linuxAdapter) Start(ctx context.Context) error {
	done, err := l.begin()
	if err != nil {
		return err
	}

	devices, err := findInputDevices()
	if err != nil || len(devices) == 0 {
		l.end()
		return fmt.Errorf("%w: no input devices", ErrNotAvailable)
	}

	var fds []int
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			continue
		}
		fds = append(fds, fd)
	}
	if len(fds) == 0 {
		l.end()
		return fmt.Errorf("%w: input devices not readable", ErrPermissionDenied)
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.d.Reset()
	go l.pump(ctx, done, fds)
	return nil
}

func (l *linuxAdapter) pump(ctx context.Context, done chan struct{}, fds []int) {
	defer close(done)
	defer l.end()

	pollFds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pollFds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	// Revoked devices are closed inline as poll flags them and drop out of
	// pollFds; the exit path must close only the survivors, or a since-reused
	// fd number would be closed out from under another part of the process.
	defer func() {
		for _, pfd := range pollFds {
			unix.Close(int(pfd.Fd))
		}
	}()

	buf := make([]byte, 64*eventSize)
	lastCleanup := time.Now()
	timeoutMs := int(l.opts.PumpInterval / time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.Poll(pollFds, timeoutMs)
		if err != nil && err != unix.EINTR {
			return
		}
		if n > 0 {
			alive := pollFds[:0]
			for _, pfd := range pollFds {
				if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
					unix.Close(int(pfd.Fd))
					continue
				}
				if pfd.Revents&unix.POLLIN != 0 {
					l.drain(int(pfd.Fd), buf)
				}
				pfd.Revents = 0
				alive = append(alive, pfd)
			}
			pollFds = alive
			if len(pollFds) == 0 {
				// All devices vanished (unplug, session change); the host's
				// watchdog sees Done close and reconciles.
				return
			}
		}

		if now := time.Now(); now.Sub(lastCleanup) > l.opts.CleanupInterval {
			l.d.Cleanup()
			lastCleanup = now
		}
	}
}

// drain reads and dispatches every event currently queued on fd.
func (l *linuxAdapter) drain(fd int, buf []byte) {
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n < eventSize {
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			ev := (*inputEvent)(unsafe.Pointer(&buf[off]))
			switch ev.Type {
			case evKey:
				if ev.Code >= btnMisc {
					// Mouse/touchpad button.
					if ev.Value == keyPress {
						l.d.HandleMouse()
					}
					continue
				}
				// Autorepeat arrives as value 2; fed as a key-down so the
				// tracker's timeout window suppresses it, matching the
				// duplicate-key-down shape on the other platforms.
				l.d.HandleKey(uint32(ev.Code), ev.Value == keyPress || ev.Value == keyRepeat)
			case evRel, evAbs:
				l.d.HandleMouse()
			}
		}
	}
}

// Stop signals the pump and waits one grace period for it to observe the
// cancellation on its next poll timeout. The pump owns the device fds and
// closes them on exit.
func (l *linuxAdapter) Stop() error {
	if !l.Running() {
		return nil
	}
	done := l.Done()
	if l.cancel != nil {
		l.cancel()
	}
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
	}
	l.d.Reset()
	return nil
}
