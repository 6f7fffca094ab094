//go:build darwin

package hook

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation

#include <ApplicationServices/ApplicationServices.h>
#include <Foundation/Foundation.h>
#include <pthread.h>
#include <unistd.h>

// The tap callback runs on a dedicated run-loop thread. Decoded events are
// pushed into a single-producer single-consumer ring buffer that the Go poll
// loop drains; only the key code and direction cross the boundary, never any
// typed content.

#define RING_CAP 1024

typedef struct {
    uint16_t code;
    uint8_t  kind; // 0 = key down, 1 = key up, 2 = mouse
} rawEvent;

static rawEvent ring[RING_CAP];
static volatile int64_t ringHead = 0; // producer
static volatile int64_t ringTail = 0; // consumer
static volatile int64_t ringDropped = 0;

static void ringPush(uint16_t code, uint8_t kind) {
    if (ringHead - ringTail >= RING_CAP) {
        ringDropped++;
        return;
    }
    ring[ringHead % RING_CAP].code = code;
    ring[ringHead % RING_CAP].kind = kind;
    ringHead++;
}

// popEvent returns 1 and fills out when an event was available.
static int popEvent(uint16_t *code, uint8_t *kind) {
    if (ringTail >= ringHead) {
        return 0;
    }
    *code = ring[ringTail % RING_CAP].code;
    *kind = ring[ringTail % RING_CAP].kind;
    ringTail++;
    return 1;
}

static int64_t droppedEvents(void) {
    return ringDropped;
}

// Run loop state
static CFMachPortRef eventTap = NULL;
static CFRunLoopSourceRef runLoopSource = NULL;
static CFRunLoopRef tapRunLoop = NULL;
static volatile int tapEnabled = 0;
static volatile int tapDisabledBySystem = 0;

static void stopEventTap(void);

static CGEventRef eventCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
    (void)proxy;
    (void)refcon;

    // The system disables a tap whose callback is too slow; re-enable.
    if (type == kCGEventTapDisabledByUserInput || type == kCGEventTapDisabledByTimeout) {
        tapDisabledBySystem = 1;
        if (eventTap != NULL) {
            CGEventTapEnable(eventTap, true);
        }
        return event;
    }

    switch (type) {
    case kCGEventKeyDown:
        ringPush((uint16_t)CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode), 0);
        break;
    case kCGEventKeyUp:
        ringPush((uint16_t)CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode), 1);
        break;
    case kCGEventLeftMouseDown:
    case kCGEventLeftMouseUp:
    case kCGEventRightMouseDown:
    case kCGEventRightMouseUp:
    case kCGEventMouseMoved:
    case kCGEventLeftMouseDragged:
    case kCGEventRightMouseDragged:
    case kCGEventScrollWheel:
        ringPush(0, 2);
        break;
    default:
        break;
    }
    return event;
}

static void* runLoopThread(void* arg) {
    (void)arg;
    tapRunLoop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(tapRunLoop, runLoopSource, kCFRunLoopCommonModes);
    CGEventTapEnable(eventTap, true);
    tapEnabled = 1;
    CFRunLoopRun();
    tapEnabled = 0;
    tapRunLoop = NULL;
    return NULL;
}

static pthread_t runLoopThreadHandle;
static volatile int threadRunning = 0;

static int startEventTap(void) {
    if (eventTap != NULL) {
        return 1; // Already running
    }

    ringHead = 0;
    ringTail = 0;
    ringDropped = 0;
    tapDisabledBySystem = 0;

    CGEventMask eventMask =
        CGEventMaskBit(kCGEventKeyDown) |
        CGEventMaskBit(kCGEventKeyUp) |
        CGEventMaskBit(kCGEventLeftMouseDown) |
        CGEventMaskBit(kCGEventLeftMouseUp) |
        CGEventMaskBit(kCGEventRightMouseDown) |
        CGEventMaskBit(kCGEventRightMouseUp) |
        CGEventMaskBit(kCGEventMouseMoved) |
        CGEventMaskBit(kCGEventLeftMouseDragged) |
        CGEventMaskBit(kCGEventRightMouseDragged) |
        CGEventMaskBit(kCGEventScrollWheel);

    eventTap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionListenOnly,
        eventMask,
        eventCallback,
        NULL
    );
    if (eventTap == NULL) {
        return -1; // Permission denied or not available
    }

    runLoopSource = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, eventTap, 0);
    if (runLoopSource == NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
        return -2;
    }

    threadRunning = 1;
    if (pthread_create(&runLoopThreadHandle, NULL, runLoopThread, NULL) != 0) {
        CFRelease(runLoopSource);
        CFRelease(eventTap);
        runLoopSource = NULL;
        eventTap = NULL;
        threadRunning = 0;
        return -3;
    }

    for (int i = 0; i < 100 && !tapEnabled; i++) {
        usleep(10000); // 10ms
    }
    if (!tapEnabled) {
        stopEventTap();
        return -4;
    }
    return 0;
}

static void stopEventTap(void) {
    if (eventTap == NULL) {
        return;
    }

    CGEventTapEnable(eventTap, false);
    tapEnabled = 0;

    if (tapRunLoop != NULL) {
        CFRunLoopStop(tapRunLoop);
    }
    if (threadRunning) {
        pthread_join(runLoopThreadHandle, NULL);
        threadRunning = 0;
    }
    if (runLoopSource != NULL) {
        CFRelease(runLoopSource);
        runLoopSource = NULL;
    }
    if (eventTap != NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
    }
    tapRunLoop = NULL;
}

static int isTapEnabled(void) {
    return tapEnabled;
}

static int checkAccessibility(void) {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// darwinAdapter taps session input via CGEventTap. The C shim owns the tap
// and its run-loop thread; the Go pump drains the decoded-event ring and
// runs the stale-key cleanup.
type darwinAdapter struct {
	base
	d    *Dispatcher
	opts Options

	cancel context.CancelFunc
}

func newPlatformAdapter(d *Dispatcher, opts Options) Adapter {
	return &darwinAdapter{d: d, opts: opts}
}

// Available checks Accessibility permission.
func (a *darwinAdapter) Available() (bool, string) {
	if C.checkAccessibility() == 1 {
		return true, "CGEventTap available"
	}
	return false, "Accessibility permission required: System Settings > Privacy & Security > Accessibility"
}

// Start creates the event tap and begins draining events. The tap is fully
// enabled before Start returns.
func (a *darwinAdapter) Start(ctx context.Context) error {
	done, err := a.begin()
	if err != nil {
		return err
	}

	result := C.startEventTap()
	switch result {
	case 0:
		// Tap enabled.
	case 1:
		a.end()
		return ErrAlreadyRunning
	case -1:
		a.end()
		return fmt.Errorf("%w: CGEventTapCreate failed (Accessibility permission?)", ErrPermissionDenied)
	case -2:
		a.end()
		return errors.New("failed to create run loop source")
	case -3:
		a.end()
		return errors.New("failed to create run loop thread")
	default:
		a.end()
		return errors.New("timeout waiting for event tap to enable")
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.d.Reset()
	go a.pump(ctx, done)
	return nil
}

func (a *darwinAdapter) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer a.end()

	ticker := time.NewTicker(a.opts.PumpInterval)
	defer ticker.Stop()
	healthTicker := time.NewTicker(time.Second)
	defer healthTicker.Stop()

	lastCleanup := time.Now()
	for {
		select {
		case <-ctx.Done():
			return

		case <-healthTicker.C:
			if C.isTapEnabled() != 1 {
				// Permission revoked or tap torn down underneath us; exit so
				// the host's watchdog reconciles the monitoring flag.
				return
			}

		case <-ticker.C:
			var code C.uint16_t
			var kind C.uint8_t
			for C.popEvent(&code, &kind) == 1 {
				switch kind {
				case 0:
					a.d.HandleKey(uint32(code), true)
				case 1:
					a.d.HandleKey(uint32(code), false)
				default:
					a.d.HandleMouse()
				}
			}
			if now := time.Now(); now.Sub(lastCleanup) > a.opts.CleanupInterval {
				a.d.Cleanup()
				lastCleanup = now
			}
		}
	}
}

// Stop signals the pump, waits one grace period, then tears the tap down.
// The teardown is idempotent so a pump that already exited is harmless.
func (a *darwinAdapter) Stop() error {
	if !a.Running() {
		C.stopEventTap()
		return nil
	}
	done := a.Done()
	if a.cancel != nil {
		a.cancel()
	}
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
	}
	C.stopEventTap()
	a.d.Reset()
	return nil
}

// DroppedEvents reports events lost to ring-buffer overflow, for
// diagnostics.
func (a *darwinAdapter) DroppedEvents() int64 {
	return int64(C.droppedEvents())
}
