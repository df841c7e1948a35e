package core

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// TestSingleThreadTaskRunner_WaitIdle tests WaitIdle
// Given: a runner with queued tasks and a registered observer
// When: WaitIdle returns
// Then: every task ran and the observer saw every completion
func TestSingleThreadTaskRunner_WaitIdle(t *testing.T) {
	// Arrange
	runner := newTestRunner("idle", nil)
	defer runner.Stop()
	obs := &recordingObserver{}
	runner.AddTaskObserver(obs)

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	}

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := runner.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	// Assert - 20 tasks plus the barrier, each seen twice
	if got := ran.Load(); got != 20 {
		t.Errorf("tasks run: got = %d, want = 20", got)
	}
	calls, _ := obs.snapshot()
	if len(calls) != 42 {
		t.Errorf("observer calls: got = %d, want = 42", len(calls))
	}
}

// TestSingleThreadTaskRunner_WaitIdle_Timeout tests WaitIdle with a blocked runner
// Given: a runner busy with a long task
// When: WaitIdle is called with a short timeout
// Then: it returns context.DeadlineExceeded
func TestSingleThreadTaskRunner_WaitIdle_Timeout(t *testing.T) {
	// Arrange
	runner := newTestRunner("busy", nil)
	defer runner.Stop()
	release := make(chan struct{})
	defer close(release)
	runner.PostTask(func(ctx context.Context) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := runner.WaitIdle(ctx)

	// Assert
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitIdle error: got = %v, want = %v", err, context.DeadlineExceeded)
	}
}

// TestSingleThreadTaskRunner_WaitIdle_AfterShutdown tests WaitIdle on a closed runner
// Given: a runner that has been shut down
// When: WaitIdle is called
// Then: it fails immediately
func TestSingleThreadTaskRunner_WaitIdle_AfterShutdown(t *testing.T) {
	runner := newTestRunner("closed", nil)
	runner.Shutdown()
	defer runner.Stop()

	if err := runner.WaitIdle(context.Background()); err == nil {
		t.Error("WaitIdle on closed runner: got = nil, want error")
	}
}

// TestSingleThreadTaskRunner_WaitShutdown_Internal tests shutdown from inside a task
// Given: a runner with heartbeat tasks
// When: a task shuts its own runner down at the 10th heartbeat
// Then: WaitShutdown unblocks and the runner is closed
func TestSingleThreadTaskRunner_WaitShutdown_Internal(t *testing.T) {
	// Arrange
	runner := newTestRunner("heartbeat", nil)
	defer runner.Stop()

	var heartbeatCount atomic.Int32

	// Act
	for i := 0; i < 15; i++ {
		runner.PostTask(func(ctx context.Context) {
			if heartbeatCount.Add(1) >= 10 {
				if me, ok := GetCurrentTaskRunner(ctx).(*SingleThreadTaskRunner); ok {
					me.Shutdown()
				}
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := runner.WaitShutdown(ctx)

	// Assert
	if err != nil {
		t.Fatalf("WaitShutdown failed: %v", err)
	}
	if !runner.IsClosed() {
		t.Error("runner closed: got = false, want = true")
	}
}

// TestSingleThreadTaskRunner_MultipleShutdownCalls tests Shutdown idempotency
// Given: a runner
// When: Shutdown and Stop are called several times
// Then: nothing panics and IsClosed returns true
func TestSingleThreadTaskRunner_MultipleShutdownCalls(t *testing.T) {
	runner := newTestRunner("twice", nil)

	runner.Shutdown()
	runner.Shutdown()
	runner.Stop()
	runner.Stop()

	if !runner.IsClosed() {
		t.Error("runner closed: got = false, want = true")
	}
}

// TestSingleThreadTaskRunner_RepeatingTaskStop tests stopping a repeating task
// Given: a repeating task with a short interval
// When: the handle is stopped after a few runs
// Then: the task stops running
func TestSingleThreadTaskRunner_RepeatingTaskStop(t *testing.T) {
	// Arrange
	runner := newTestRunner("repeat", nil)
	defer runner.Stop()
	var runs atomic.Int32

	// Act
	handle := runner.PostRepeatingTask(func(ctx context.Context) { runs.Add(1) }, 5*time.Millisecond)
	waitForCondition(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
	handle.Stop()
	stoppedAt := runs.Load()
	time.Sleep(50 * time.Millisecond)

	// Assert - at most one run already in flight
	if !handle.IsStopped() {
		t.Error("handle stopped: got = false, want = true")
	}
	if got := runs.Load(); got > stoppedAt+1 {
		t.Errorf("runs after Stop: got = %d, want <= %d", got, stoppedAt+1)
	}
}

type gcProbe struct {
	data []byte
}

// TestSingleThreadTaskRunner_GC_ReleasesTasks tests that finished tasks are not retained
// Given: an object captured only by a task closure
// When: the task has run and the runner is idle
// Then: the object is garbage collected
func TestSingleThreadTaskRunner_GC_ReleasesTasks(t *testing.T) {
	// Arrange
	runner := newTestRunner("gc", nil)
	defer runner.Stop()
	var finalized atomic.Bool

	// Act
	func() {
		probe := &gcProbe{data: make([]byte, 1<<20)}
		runtime.SetFinalizer(probe, func(*gcProbe) { finalized.Store(true) })
		runner.PostTask(func(ctx context.Context) { _ = len(probe.data) })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := runner.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	// Assert
	waitForCondition(t, 2*time.Second, func() bool {
		runtime.GC()
		return finalized.Load()
	})
}
