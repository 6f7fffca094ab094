package tracker

import (
	"testing"
	"time"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestFirstPressIsCountable(t *testing.T) {
	tr := New(2 * time.Second)

	countable, genuine := tr.Classify(30, true, t0)
	if !countable || !genuine {
		t.Errorf("first key-down = (%v, %v), want (true, true)", countable, genuine)
	}
}

func TestAutoRepeatSuppressed(t *testing.T) {
	tr := New(2 * time.Second)

	tr.Classify(30, true, t0)

	// Auto-repeat arrives as duplicate key-downs well inside the window.
	for i := 1; i <= 40; i++ {
		now := t0.Add(time.Duration(i) * 50 * time.Millisecond)
		countable, genuine := tr.Classify(30, true, now)
		if countable || genuine {
			t.Fatalf("repeat %d = (%v, %v), want (false, false)", i, countable, genuine)
		}
	}
}

func TestKeyUpClearsSuppression(t *testing.T) {
	tr := New(2 * time.Second)

	// down, up, down in quick succession counts as two genuine presses.
	if c, _ := tr.Classify(30, true, t0); !c {
		t.Fatal("first down should count")
	}
	c, g := tr.Classify(30, false, t0.Add(30*time.Millisecond))
	if c || g {
		t.Errorf("key-up = (%v, %v), want (false, false)", c, g)
	}
	if c, g := tr.Classify(30, true, t0.Add(60*time.Millisecond)); !c || !g {
		t.Errorf("down after up = (%v, %v), want (true, true)", c, g)
	}
}

func TestKeyUpNeverCountsWithoutPriorDown(t *testing.T) {
	tr := New(2 * time.Second)

	c, g := tr.Classify(30, false, t0)
	if c || g {
		t.Errorf("orphan key-up = (%v, %v), want (false, false)", c, g)
	}
}

func TestTimeoutExceedingGapCountsAgain(t *testing.T) {
	tr := New(2 * time.Second)

	tr.Classify(30, true, t0)

	// Still inside the window: suppressed.
	if c, _ := tr.Classify(30, true, t0.Add(2*time.Second)); c {
		t.Error("down at exactly the timeout should still be suppressed")
	}
	// Past the window: a held key that timed out counts as new activity.
	if c, g := tr.Classify(30, true, t0.Add(2*time.Second+time.Millisecond)); !c || !g {
		t.Errorf("down past timeout = (%v, %v), want (true, true)", c, g)
	}
}

func TestIndependentKeys(t *testing.T) {
	tr := New(2 * time.Second)

	if c, _ := tr.Classify(30, true, t0); !c {
		t.Error("key 30 should count")
	}
	if c, _ := tr.Classify(31, true, t0.Add(10*time.Millisecond)); !c {
		t.Error("key 31 should count independently of key 30")
	}
	if c, _ := tr.Classify(30, true, t0.Add(20*time.Millisecond)); c {
		t.Error("key 30 repeat should be suppressed")
	}
}

func TestCleanupStaleEvictsStuckKeys(t *testing.T) {
	tr := New(2 * time.Second)

	tr.Classify(30, true, t0) // key-up never delivered
	tr.Classify(31, true, t0.Add(1500*time.Millisecond))

	evicted := tr.CleanupStale(t0.Add(3 * time.Second))
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if tr.TrackedKeys() != 1 {
		t.Errorf("tracked keys = %d, want 1", tr.TrackedKeys())
	}

	// The evicted key is re-armed: its next down is a new genuine press.
	if c, g := tr.Classify(30, true, t0.Add(3*time.Second)); !c || !g {
		t.Errorf("down after eviction = (%v, %v), want (true, true)", c, g)
	}
}

func TestCleanupEvictsAtExactTimeout(t *testing.T) {
	tr := New(2 * time.Second)

	tr.Classify(30, true, t0)

	// Just inside the window nothing is stale yet.
	if evicted := tr.CleanupStale(t0.Add(2*time.Second - time.Millisecond)); evicted != 0 {
		t.Errorf("evicted = %d, want 0", evicted)
	}
	// At exactly the timeout the repeat window still suppresses, but the
	// entry is already old enough for cleanup to evict it.
	if c, _ := tr.Classify(30, true, t0.Add(2*time.Second)); c {
		t.Error("down at exactly the timeout should still be suppressed")
	}
	if evicted := tr.CleanupStale(t0.Add(2 * time.Second)); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if tr.TrackedKeys() != 0 {
		t.Errorf("tracked keys = %d, want 0", tr.TrackedKeys())
	}
}

func TestReset(t *testing.T) {
	tr := New(2 * time.Second)

	tr.Classify(30, true, t0)
	tr.Classify(31, true, t0)
	tr.Reset()

	if tr.TrackedKeys() != 0 {
		t.Errorf("tracked keys after reset = %d, want 0", tr.TrackedKeys())
	}
	if c, _ := tr.Classify(30, true, t0.Add(time.Millisecond)); !c {
		t.Error("down after reset should count as a fresh press")
	}
}

func TestSetTimeout(t *testing.T) {
	tr := New(2 * time.Second)

	tr.SetTimeout(500 * time.Millisecond)
	tr.Classify(30, true, t0)
	if c, _ := tr.Classify(30, true, t0.Add(600*time.Millisecond)); !c {
		t.Error("shortened timeout should re-arm the key sooner")
	}

	tr.SetTimeout(0)
	if tr.Timeout() != DefaultKeyTimeout {
		t.Errorf("timeout = %v, want default %v", tr.Timeout(), DefaultKeyTimeout)
	}
}

func TestDefaultTimeoutFallback(t *testing.T) {
	tr := New(0)
	if tr.Timeout() != DefaultKeyTimeout {
		t.Errorf("timeout = %v, want %v", tr.Timeout(), DefaultKeyTimeout)
	}
}
