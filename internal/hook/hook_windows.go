//go:build windows

package hook

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Low-level hook API constants.
const (
	whKeyboardLL = 13
	whMouseLL    = 14
	hcAction     = 0

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	pmRemove = 0x0001
)

// kbdllHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")

	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandleW = kernel32.NewProc("GetModuleHandleW")
)

// Hook procedures are package-level because syscall.NewCallback trampolines
// can never be released; they are created once and route to the single
// active adapter. The engine guarantees at most one hook session of each
// kind at a time, so a single slot suffices.
var (
	activeAdapter atomic.Pointer[windowsAdapter]

	keyboardCallback uintptr
	mouseCallback    uintptr
	callbackInit     atomic.Bool
)

func initCallbacks() {
	if callbackInit.CompareAndSwap(false, true) {
		keyboardCallback = syscall.NewCallback(lowLevelKeyboardProc)
		mouseCallback = syscall.NewCallback(lowLevelMouseProc)
	}
}

func lowLevelKeyboardProc(nCode int32, wParam, lParam uintptr) uintptr {
	if nCode == hcAction && lParam != 0 {
		if a := activeAdapter.Load(); a != nil {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			down := wParam == wmKeyDown || wParam == wmSysKeyDown
			a.d.HandleKey(kb.VkCode, down)
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func lowLevelMouseProc(nCode int32, wParam, lParam uintptr) uintptr {
	if nCode == hcAction {
		if a := activeAdapter.Load(); a != nil {
			a.d.HandleMouse()
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

// windowsAdapter installs WH_KEYBOARD_LL and WH_MOUSE_LL hooks and pumps
// messages on a dedicated OS-locked thread. Low-level hook procedures are
// invoked during message retrieval on the installing thread, so the pump
// must keep polling even though no window receives the messages.
type windowsAdapter struct {
	base
	d    *Dispatcher
	opts Options

	cancel context.CancelFunc

	keyboardHook atomic.Uintptr
	mouseHook    atomic.Uintptr
}

func newPlatformAdapter(d *Dispatcher, opts Options) Adapter {
	return &windowsAdapter{d: d, opts: opts}
}

// Available reports hook availability. Low-level hooks need no special
// privilege on Windows.
func (w *windowsAdapter) Available() (bool, string) {
	return true, "Windows low-level input hooks available"
}

// Start installs both hooks and begins the pump. It blocks until the pump
// thread reports installation success or failure.
func (w *windowsAdapter) Start(ctx context.Context) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.d.Reset()
	initCallbacks()

	installed := make(chan error, 1)
	go w.pump(ctx, done, installed)

	if err := <-installed; err != nil {
		w.end()
		return err
	}
	return nil
}

func (w *windowsAdapter) pump(ctx context.Context, done chan struct{}, installed chan<- error) {
	// Hooks must be installed and pumped from the same thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)
	defer w.end()

	hModule, _, _ := procGetModuleHandleW.Call(0)

	kb, _, kbErr := procSetWindowsHookExW.Call(whKeyboardLL, keyboardCallback, hModule, 0)
	if kb == 0 {
		installed <- fmt.Errorf("%w: SetWindowsHookExW(WH_KEYBOARD_LL): %v", ErrPermissionDenied, kbErr)
		return
	}
	ms, _, msErr := procSetWindowsHookExW.Call(whMouseLL, mouseCallback, hModule, 0)
	if ms == 0 {
		procUnhookWindowsHookEx.Call(kb)
		installed <- fmt.Errorf("%w: SetWindowsHookExW(WH_MOUSE_LL): %v", ErrPermissionDenied, msErr)
		return
	}

	w.keyboardHook.Store(kb)
	w.mouseHook.Store(ms)
	activeAdapter.Store(w)
	installed <- nil

	defer w.uninstall()

	lastCleanup := time.Now()
	var msg winMsg
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Drain the queue; retrieving messages is what lets the OS call the
		// low-level hook procedures on this thread.
		for {
			got, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0, pmRemove)
			if got == 0 {
				break
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
			procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
		}

		time.Sleep(w.opts.PumpInterval)

		if now := time.Now(); now.Sub(lastCleanup) > w.opts.CleanupInterval {
			w.d.Cleanup()
			lastCleanup = now
		}
	}
}

// uninstall removes whichever hooks are still registered. Idempotent; also
// used as the forced fallback from Stop.
func (w *windowsAdapter) uninstall() {
	if activeAdapter.Load() == w {
		activeAdapter.CompareAndSwap(w, nil)
	}
	if h := w.keyboardHook.Swap(0); h != 0 {
		procUnhookWindowsHookEx.Call(h)
	}
	if h := w.mouseHook.Swap(0); h != 0 {
		procUnhookWindowsHookEx.Call(h)
	}
}

// Stop signals the pump, waits one grace period for it to observe the
// cancellation on its next iteration, then force-uninstalls the hooks.
func (w *windowsAdapter) Stop() error {
	if !w.Running() {
		return nil
	}
	done := w.Done()
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		w.uninstall()
	}
	w.d.Reset()
	return nil
}
