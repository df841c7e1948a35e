package replay

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Swind/go-responsiveness/core"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type sample struct {
	JankType    core.JankType
	JankySlices int
	Suspended   bool
}

type recordingSink struct {
	mu      sync.Mutex
	samples []sample
}

func (s *recordingSink) EmitResponsiveness(jankType core.JankType, jankySlices int, wasProcessSuspended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample{jankType, jankySlices, wasProcessSuspended})
}

func newCalculator(t *testing.T, sink core.Sink) *core.Calculator {
	t.Helper()
	calc, err := core.NewCalculator(&core.CalculatorConfig{
		Now:    func() time.Time { return epoch },
		Sink:   sink,
		Logger: core.NewNoOpLogger(),
	})
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	return calc
}

func TestDecode(t *testing.T) {
	in := `{"thread":"ui","queue_ms":0,"start_ms":5,"finish_ms":250}
{"thread":"io","kind":"task","queue_ms":100,"start_ms":100,"finish_ms":400}
{"kind":"event","start_ms":500,"finish_ms":520}
{"kind":"suspend","finish_ms":1000}
`
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := []Record{
		{Thread: "ui", QueueMS: 0, StartMS: 5, FinishMS: 250},
		{Thread: "io", Kind: KindTask, QueueMS: 100, StartMS: 100, FinishMS: 400},
		{Kind: KindEvent, StartMS: 500, FinishMS: 520},
		{Kind: KindSuspend, FinishMS: 1000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"malformed json", `{"thread":`},
		{"unknown thread", `{"thread":"gpu","finish_ms":1}`},
		{"unknown kind", `{"kind":"nap","finish_ms":1}`},
		{"out of order", `{"thread":"ui","queue_ms":10,"start_ms":5,"finish_ms":20}`},
		{"io event", `{"thread":"io","kind":"event","start_ms":5,"finish_ms":20}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.in)); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("Decode error = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestRun(t *testing.T) {
	sink := &recordingSink{}
	calc := newCalculator(t, sink)

	// The closing UI task is listed first; Run orders by finish time.
	records := []Record{
		{Thread: "ui", QueueMS: 30100, StartMS: 30100, FinishMS: 30100},
		{Thread: "ui", QueueMS: 0, StartMS: 0, FinishMS: 350},
		{Thread: "io", QueueMS: 1000, StartMS: 1200, FinishMS: 1250},
		{Kind: KindSuspend, FinishMS: 2000},
		{Kind: KindResume, FinishMS: 2001},
	}
	Run(calc, epoch, records)

	want := []sample{
		{core.JankTypeExecution, 3, true},
		{core.JankTypeQueueAndExecution, 5, true},
	}
	if diff := cmp.Diff(want, sink.samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}
