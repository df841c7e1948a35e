package core

import (
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is shared between the test goroutine and runner goroutines.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type emitted struct {
	JankType    JankType
	JankySlices int
	Suspended   bool
}

type recordingSink struct {
	mu      sync.Mutex
	samples []emitted
}

func (s *recordingSink) EmitResponsiveness(jankType JankType, jankySlices int, wasProcessSuspended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, emitted{jankType, jankySlices, wasProcessSuspended})
}

func (s *recordingSink) Samples() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]emitted, len(s.samples))
	copy(out, s.samples)
	return out
}

type tracedJank struct {
	Source Source
	ID     uint64
	Start  time.Time
	End    time.Time
}

type recordingTracer struct {
	mu    sync.Mutex
	spans []tracedJank
}

func (r *recordingTracer) TraceJank(source Source, id uint64, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, tracedJank{source, id, start, end})
}

func at(d time.Duration) time.Time {
	return t0.Add(d)
}

func newTestCalculator(t *testing.T, sink Sink, mutate func(*CalculatorConfig)) *Calculator {
	t.Helper()
	cfg := &CalculatorConfig{
		Now:    func() time.Time { return t0 },
		Sink:   sink,
		Logger: NewNoOpLogger(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewCalculator(cfg)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	return c
}

// finishUI reports a UI completion that queued and started at start.
func finishUI(c *Calculator, start, finish time.Duration) {
	c.TaskOrEventFinishedOnUIThread(at(start), at(start), at(finish))
}

func finishIO(c *Calculator, start, finish time.Duration) {
	c.TaskOrEventFinishedOnIOThread(at(start), at(start), at(finish))
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
