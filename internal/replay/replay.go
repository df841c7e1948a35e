// Package replay feeds recorded task completions to a Calculator.
//
// A log is a stream of JSON objects, one per line:
//
//	{"thread":"ui","queue_ms":0,"start_ms":5,"finish_ms":250}
//	{"thread":"io","kind":"task","queue_ms":100,"start_ms":100,"finish_ms":400}
//	{"kind":"suspend","finish_ms":1000}
//
// Times are milliseconds since the calculator was created.
package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/Swind/go-responsiveness/core"
)

// Kind of record.
const (
	KindTask    = "task"
	KindEvent   = "event"
	KindSuspend = "suspend"
	KindResume  = "resume"
)

// ErrInvalidRecord is wrapped by every decoding and validation error.
var ErrInvalidRecord = errors.New("invalid replay record")

// Record is one line of a replay log.
type Record struct {
	Thread   string  `json:"thread,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	QueueMS  float64 `json:"queue_ms"`
	StartMS  float64 `json:"start_ms"`
	FinishMS float64 `json:"finish_ms"`
}

func (r Record) kind() string {
	if r.Kind == "" {
		return KindTask
	}
	return r.Kind
}

func (r Record) source() (core.Source, error) {
	switch r.Thread {
	case "ui", "":
		return core.SourceUI, nil
	case "io":
		return core.SourceIO, nil
	default:
		return 0, fmt.Errorf("%w: unknown thread %q", ErrInvalidRecord, r.Thread)
	}
}

func (r Record) validate() error {
	switch r.kind() {
	case KindTask:
		if _, err := r.source(); err != nil {
			return err
		}
		if r.StartMS < r.QueueMS || r.FinishMS < r.StartMS {
			return fmt.Errorf("%w: timestamps out of order: queue=%v start=%v finish=%v",
				ErrInvalidRecord, r.QueueMS, r.StartMS, r.FinishMS)
		}
	case KindEvent:
		if r.Thread != "" && r.Thread != "ui" {
			return fmt.Errorf("%w: events only run on the ui thread", ErrInvalidRecord)
		}
		if r.FinishMS < r.StartMS {
			return fmt.Errorf("%w: event finishes before it starts", ErrInvalidRecord)
		}
	case KindSuspend, KindResume:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	return nil
}

// Decode reads every record from r. Blank lines are skipped.
func Decode(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []Record
	for line := 1; scanner.Scan(); line++ {
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, line, err)
		}
		if err := rec.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: read log: %w", err)
	}
	return records, nil
}

// Run feeds records to calc in completion order. epoch must be the time the
// calculator considers its creation time.
func Run(calc *core.Calculator, epoch time.Time, records []Record) {
	ordered := make([]Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FinishMS < ordered[j].FinishMS
	})

	at := func(ms float64) time.Time {
		return epoch.Add(time.Duration(ms * float64(time.Millisecond)))
	}

	for _, r := range ordered {
		switch r.kind() {
		case KindTask:
			source, _ := r.source()
			calc.RecordCompletion(source, at(r.QueueMS), at(r.StartMS), at(r.FinishMS))
		case KindEvent:
			calc.TaskOrEventFinishedOnUIThread(at(r.StartMS), at(r.StartMS), at(r.FinishMS))
		case KindSuspend:
			calc.SetProcessSuspended(true)
		case KindResume:
			calc.SetProcessSuspended(false)
		}
	}
}
