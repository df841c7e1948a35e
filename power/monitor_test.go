package power

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Swind/go-responsiveness/core"
)

type fakeClocks struct {
	mu   sync.Mutex
	boot time.Duration
	mono time.Duration
	err  error
}

func (c *fakeClocks) Read() (time.Duration, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boot, c.mono, c.err
}

func (c *fakeClocks) advance(awake, asleep time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boot += awake + asleep
	c.mono += awake
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) OnSuspend() { o.record("suspend") }
func (o *recordingObserver) OnResume()  { o.record("resume") }

func (o *recordingObserver) record(call string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call)
}

func (o *recordingObserver) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

func newTestMonitor(observer PowerObserver, clocks ClockSource) *SuspendMonitor {
	return NewSuspendMonitor(observer, &MonitorConfig{
		PollInterval: 5 * time.Millisecond,
		Threshold:    time.Second,
		Clocks:       clocks,
		Logger:       core.NewNoOpLogger(),
	})
}

func TestSuspendMonitor_Poll(t *testing.T) {
	clocks := &fakeClocks{boot: time.Hour, mono: time.Hour}
	observer := &recordingObserver{}
	m := newTestMonitor(observer, clocks)

	if slept, err := m.Poll(); err != nil || slept {
		t.Fatalf("first Poll = (%v, %v), want baseline only", slept, err)
	}

	clocks.advance(time.Second, 0)
	if slept, _ := m.Poll(); slept {
		t.Fatal("awake interval reported as sleep")
	}

	clocks.advance(time.Second, 500*time.Millisecond)
	if slept, _ := m.Poll(); slept {
		t.Fatal("drift under threshold reported as sleep")
	}

	clocks.advance(time.Second, 10*time.Minute)
	if slept, _ := m.Poll(); !slept {
		t.Fatal("sleep not detected")
	}

	calls := observer.Calls()
	if len(calls) != 2 || calls[0] != "suspend" || calls[1] != "resume" {
		t.Fatalf("calls = %v, want [suspend resume]", calls)
	}
}

func TestSuspendMonitor_StartUnsupported(t *testing.T) {
	clocks := &fakeClocks{err: ErrUnsupported}
	m := newTestMonitor(&recordingObserver{}, clocks)

	if err := m.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Start error = %v, want ErrUnsupported", err)
	}
	m.Stop()
}

func TestSuspendMonitor_StartStop(t *testing.T) {
	clocks := &fakeClocks{boot: time.Hour, mono: time.Hour}
	observer := &recordingObserver{}
	m := newTestMonitor(observer, clocks)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	clocks.advance(0, time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for len(observer.Calls()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if calls := observer.Calls(); len(calls) != 2 {
		t.Fatalf("calls = %v, want one suspend/resume pair", calls)
	}
}

func TestSuspendMonitor_FeedsWatcher(t *testing.T) {
	calc, err := core.NewCalculator(&core.CalculatorConfig{Logger: core.NewNoOpLogger()})
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	w := core.NewWatcher(calc, &core.WatcherConfig{Logger: core.NewNoOpLogger()})

	clocks := &fakeClocks{}
	m := newTestMonitor(w, clocks)
	m.Poll()
	clocks.advance(0, time.Hour)
	m.Poll()

	stats := calc.Stats()
	if stats.ProcessSuspended || !stats.WasProcessSuspended {
		t.Fatalf("stats after sleep = %+v, want resumed with sticky flag", stats)
	}
}
