// Package chrometrace records jank spans in the Chrome Trace Event Format,
// loadable in chrome://tracing and Perfetto.
package chrometrace

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Swind/go-responsiveness/core"
)

type (
	// traceID is a process-local async id, as emitted for TRACE_ID_LOCAL.
	traceID struct {
		Local string `json:"local"`
	}

	event struct {
		Name      string    `json:"name"`
		Category  string    `json:"cat"`
		Phase     phase     `json:"ph"`
		TimeStamp int64     `json:"ts"`
		ProcessID int       `json:"pid"`
		ThreadID  int       `json:"tid"`
		ID2       traceID   `json:"id2"`
		Args      eventArgs `json:"args"`
	}

	eventArgs struct {
		Source     string  `json:"source,omitempty"`
		DurationMS float64 `json:"duration_ms,omitempty"`
	}

	output struct {
		TraceEvents     []event           `json:"traceEvents"`
		DisplayTimeUnit string            `json:"displayTimeUnit"`
		OtherData       map[string]string `json:"otherData,omitempty"`
	}

	phase string
)

const (
	phaseNestableStart phase = "b"
	phaseNestableEnd   phase = "e"
)

// DefaultMaxEvents bounds the in-memory buffer of a Writer.
const DefaultMaxEvents = 100000

// Options configures a Writer.
type Options struct {
	// Epoch is subtracted from every timestamp. Defaults to the first span's
	// start time.
	Epoch time.Time

	// MaxEvents caps buffered events; spans past the cap are dropped.
	MaxEvents int

	// ProcessID is reported as pid on every event.
	ProcessID int

	// Metadata is written as otherData.
	Metadata map[string]string
}

// Writer buffers jank spans as nestable async begin/end pairs and serializes
// them on demand. It implements core.Tracer and is safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	epoch     time.Time
	events    []event
	maxEvents int
	pid       int
	metadata  map[string]string
	dropped   int
}

var _ core.Tracer = (*Writer)(nil)

// NewWriter creates an empty Writer.
func NewWriter(opts Options) *Writer {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	if opts.ProcessID == 0 {
		opts.ProcessID = os.Getpid()
	}
	return &Writer{
		epoch:     opts.Epoch,
		maxEvents: opts.MaxEvents,
		pid:       opts.ProcessID,
		metadata:  opts.Metadata,
	}
}

// TraceJank records a begin event at start and an end event at end.
func (w *Writer) TraceJank(source core.Source, id uint64, start, end time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.events)+2 > w.maxEvents {
		w.dropped++
		return
	}
	if w.epoch.IsZero() {
		w.epoch = start
	}

	base := event{
		Name:      source.TraceName(),
		Category:  core.TraceCategory,
		ProcessID: w.pid,
		ThreadID:  int(source) + 1,
		ID2:       traceID{Local: fmt.Sprintf("0x%x", id)},
	}

	begin := base
	begin.Phase = phaseNestableStart
	begin.TimeStamp = w.micros(start)
	begin.Args = eventArgs{
		Source:     source.String(),
		DurationMS: float64(end.Sub(start)) / float64(time.Millisecond),
	}

	finish := base
	finish.Phase = phaseNestableEnd
	finish.TimeStamp = w.micros(end)

	w.events = append(w.events, begin, finish)
}

func (w *Writer) micros(t time.Time) int64 {
	return t.Sub(w.epoch).Microseconds()
}

// Len returns the number of buffered events.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

// Dropped returns the number of spans dropped because the buffer was full.
func (w *Writer) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// WriteTo serializes every buffered event as a JSON trace object.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	w.mu.Lock()
	o := output{
		TraceEvents:     make([]event, len(w.events)),
		DisplayTimeUnit: "ms",
		OtherData:       w.metadata,
	}
	copy(o.TraceEvents, w.events)
	w.mu.Unlock()

	b, err := json.Marshal(o)
	if err != nil {
		return 0, fmt.Errorf("chrometrace: marshal trace: %w", err)
	}
	n, err := dst.Write(b)
	return int64(n), err
}

// WriteFile writes the trace to path, replacing any existing file.
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chrometrace: %w", err)
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
