package sentrytrace

import (
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Swind/go-responsiveness/core"
)

type transportMock struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *transportMock) Configure(options sentry.ClientOptions) {}

func (t *transportMock) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *transportMock) Flush(timeout time.Duration) bool { return true }

func (t *transportMock) Close() {}

func (t *transportMock) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newTestHub(t *testing.T) (*sentry.Hub, *transportMock) {
	t.Helper()
	transport := &transportMock{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Transport:        transport,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return sentry.NewHub(client, sentry.NewScope()), transport
}

func TestTracer_TraceJank(t *testing.T) {
	hub, transport := newTestHub(t)
	tracer := NewTracer(hub, 0)

	start := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	tracer.TraceJank(core.SourceUI, 4, start, start.Add(350*time.Millisecond))

	events := transport.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	event := events[0]
	if event.Type != "transaction" {
		t.Fatalf("event type = %q, want transaction", event.Type)
	}
	if !event.StartTime.Equal(start) {
		t.Fatalf("StartTime = %v, want %v", event.StartTime, start)
	}
	if event.Transaction != "Large UI Jank" {
		t.Fatalf("Transaction = %q, want %q", event.Transaction, "Large UI Jank")
	}
}

func TestTracer_SkipsShortJanks(t *testing.T) {
	hub, transport := newTestHub(t)
	tracer := NewTracer(hub, time.Second)

	start := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	tracer.TraceJank(core.SourceIO, 0, start, start.Add(200*time.Millisecond))

	if n := len(transport.Events()); n != 0 {
		t.Fatalf("events = %d, want 0", n)
	}
}
