package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityd/internal/actlog"
	"activityd/internal/hook"
)

// testEngine builds an engine on the simulated adapter with a controllable
// clock.
func testEngine(t *testing.T) (*Engine, *hook.Simulated, func(time.Duration)) {
	t.Helper()

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	var sim *hook.Simulated
	e := NewWithAdapter(Options{
		KeyTimeout: 2 * time.Second,
		Clock:      clock,
		Logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}, func(d *hook.Dispatcher) hook.Adapter {
		sim = hook.NewSimulated(d)
		return sim
	})
	t.Cleanup(func() { e.StopMonitoring() })
	return e, sim, advance
}

func TestStartStopIdempotence(t *testing.T) {
	e, _, _ := testEngine(t)

	assert.True(t, e.StartMonitoring(), "first start")
	assert.False(t, e.StartMonitoring(), "second start is a no-op")
	assert.True(t, e.Monitoring())

	assert.True(t, e.StopMonitoring(), "first stop")
	assert.False(t, e.StopMonitoring(), "second stop is a no-op")
	assert.False(t, e.Monitoring())
}

func TestStartReflectsHookFailure(t *testing.T) {
	e, sim, _ := testEngine(t)
	sim.StartErr = hook.ErrPermissionDenied

	assert.False(t, e.StartMonitoring(), "start must report hook installation failure")
	assert.False(t, e.Monitoring(), "monitoring flag must reflect actual hook state")
}

func TestWatchdogRevertsMonitoringFlag(t *testing.T) {
	e, sim, _ := testEngine(t)

	require.True(t, e.StartMonitoring())
	sim.Abort() // pump dies as if the OS revoked the hook

	assert.Eventually(t, func() bool { return !e.Monitoring() },
		time.Second, 5*time.Millisecond,
		"monitoring flag should revert when the pump exits")

	// A dead session can be restarted.
	assert.True(t, e.StartMonitoring())
}

func TestKeyboardCountingAndIdleClock(t *testing.T) {
	e, sim, advance := testEngine(t)
	require.True(t, e.StartMonitoring())

	assert.EqualValues(t, 0, e.IdleTime(), "idle is 0 right after start (reset pretends activity)")

	sim.SimulateKey(30, true)
	for i := 0; i < 20; i++ {
		advance(50 * time.Millisecond)
		sim.SimulateKey(30, true) // auto-repeat inside the window
	}
	assert.EqualValues(t, 1, e.KeyboardCount(), "held key counts once")
	assert.EqualValues(t, 0, e.IdleTime())

	sim.SimulateKey(30, false)
	sim.SimulateKey(30, true)
	assert.EqualValues(t, 2, e.KeyboardCount(), "release re-arms the key")

	advance(9 * time.Second)
	assert.EqualValues(t, 9, e.IdleTime())
}

func TestMouseScenario(t *testing.T) {
	e, sim, advance := testEngine(t)
	require.True(t, e.StartMonitoring())

	for i := 1; i <= 5; i++ {
		advance(30 * time.Second)
		sim.SimulateMouse()
		assert.EqualValues(t, i, e.MouseCount())
		assert.EqualValues(t, 0, e.IdleTime(), "every mouse event resets the idle clock")
	}
}

func TestStuckKeyCleanup(t *testing.T) {
	e, sim, advance := testEngine(t)
	require.True(t, e.StartMonitoring())

	sim.SimulateKey(44, true) // key-up never delivered
	assert.EqualValues(t, 1, e.KeyboardCount())

	advance(3 * time.Second)
	assert.Equal(t, 1, sim.SimulateCleanup(), "stale key is evicted")

	sim.SimulateKey(44, true)
	assert.EqualValues(t, 2, e.KeyboardCount(), "evicted key counts again")
}

func TestResetCounters(t *testing.T) {
	e, sim, advance := testEngine(t)
	require.True(t, e.StartMonitoring())

	sim.SimulateKey(30, true)
	sim.SimulateMouse()
	advance(time.Minute)

	e.ResetCounters()
	assert.EqualValues(t, 0, e.KeyboardCount())
	assert.EqualValues(t, 0, e.MouseCount())
	assert.EqualValues(t, 0, e.IdleTime(), "idle is 0 immediately after reset")
}

func TestSaveActivityLog(t *testing.T) {
	e, sim, advance := testEngine(t)
	require.True(t, e.StartMonitoring())

	sim.SimulateKey(30, true)
	sim.SimulateKey(31, true)
	sim.SimulateMouse()
	advance(4 * time.Second)

	path := filepath.Join(t.TempDir(), "activity.csv")
	require.NoError(t, e.SaveActivityLog(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, actlog.Header, lines[0])
	assert.Equal(t, "1700000004,2,1,4", lines[1])

	// Logging is destructive on success: a new accounting window begins.
	assert.EqualValues(t, 0, e.KeyboardCount())
	assert.EqualValues(t, 0, e.MouseCount())

	// Second flush with no activity in between appends a zero record.
	advance(2 * time.Second)
	require.NoError(t, e.SaveActivityLog(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1700000006,0,0,2", lines[2])
}

func TestSaveActivityLogFailureKeepsCounters(t *testing.T) {
	e, sim, _ := testEngine(t)
	require.True(t, e.StartMonitoring())

	sim.SimulateKey(30, true)
	sim.SimulateMouse()

	err := e.SaveActivityLog("")
	require.ErrorIs(t, err, actlog.ErrInvalidPath)

	// Counters are reset only on confirmed successful write.
	assert.EqualValues(t, 1, e.KeyboardCount())
	assert.EqualValues(t, 1, e.MouseCount())
}

func TestSetKeyTimeoutHotReload(t *testing.T) {
	e, sim, advance := testEngine(t)
	require.True(t, e.StartMonitoring())

	sim.SimulateKey(30, true)
	e.SetKeyTimeout(100 * time.Millisecond)

	advance(200 * time.Millisecond)
	sim.SimulateKey(30, true)
	assert.EqualValues(t, 2, e.KeyboardCount(), "shortened window re-arms the held key")
}

func TestStartResetsPreviousSessionCounts(t *testing.T) {
	e, sim, _ := testEngine(t)

	require.True(t, e.StartMonitoring())
	sim.SimulateKey(30, true)
	require.True(t, e.StopMonitoring())

	require.True(t, e.StartMonitoring())
	assert.EqualValues(t, 0, e.KeyboardCount(), "a new session starts a fresh accounting window")
}
