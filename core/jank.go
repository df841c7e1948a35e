package core

import (
	"fmt"
	"time"
)

// Source is the logical thread that reported a completion.
type Source int

const (
	SourceUI Source = iota
	SourceIO
)

func (s Source) String() string {
	switch s {
	case SourceUI:
		return "ui"
	case SourceIO:
		return "io"
	default:
		return "unknown"
	}
}

// TraceCategory is the trace category of jank spans.
const TraceCategory = "latency"

// TraceName is the span name used when tracing a jank from s.
func (s Source) TraceName() string {
	switch s {
	case SourceUI:
		return "Large UI Jank"
	case SourceIO:
		return "Large IO Jank"
	default:
		return "Large Jank"
	}
}

// JankType selects which latency a jank measures.
type JankType int

const (
	// JankTypeExecution covers execution time only.
	JankTypeExecution JankType = iota

	// JankTypeQueueAndExecution covers the time from posting to completion.
	JankTypeQueueAndExecution
)

func (t JankType) String() string {
	switch t {
	case JankTypeExecution:
		return "execution"
	case JankTypeQueueAndExecution:
		return "queue_and_execution"
	default:
		return "unknown"
	}
}

// Jank is an interval of task latency that reached the jank threshold.
type Jank struct {
	StartTime time.Time
	EndTime   time.Time
}

// NewJank panics if end precedes start; callers guarantee ordering.
func NewJank(start, end time.Time) Jank {
	if end.Before(start) {
		panic(fmt.Sprintf("jank ends before it starts: start=%v end=%v", start, end))
	}
	return Jank{StartTime: start, EndTime: end}
}

// Duration returns EndTime - StartTime.
func (j Jank) Duration() time.Duration {
	return j.EndTime.Sub(j.StartTime)
}

// JankList is ordered by StartTime, as appended by a single source.
type JankList []Jank

// takeJanksOlderThan returns every jank that starts before end. Janks that
// also finish before end are removed from the list; janks straddling end are
// returned and kept, since they still touch the next window.
func takeJanksOlderThan(janks *JankList, end time.Time) JankList {
	var taken JankList
	for _, j := range *janks {
		if j.StartTime.Before(end) {
			taken = append(taken, j)
		}
	}

	// EndTime >= StartTime, so nothing needs removing.
	if len(taken) == 0 {
		return nil
	}

	kept := (*janks)[:0]
	for _, j := range *janks {
		if !j.EndTime.Before(end) {
			kept = append(kept, j)
		}
	}
	clear((*janks)[len(kept):])
	*janks = kept
	return taken
}

// addJankySlices marks every slice of [windowStart, windowEnd) covered by
// jank, skipping the first threshold of the jank itself: that part of the
// task had not become janky yet.
func addJankySlices(slices map[int64]struct{}, jank Jank, windowStart, windowEnd time.Time, threshold time.Duration) {
	jankStart := jank.StartTime.Add(threshold)
	if jankStart.Before(windowStart) {
		jankStart = windowStart
	}
	jankEnd := jank.EndTime
	if windowEnd.Before(jankEnd) {
		jankEnd = windowEnd
	}

	for jankStart.Before(jankEnd) {
		label := int64(jankStart.Sub(windowStart) / threshold)
		slices[label] = struct{}{}
		jankStart = jankStart.Add(threshold)
	}
}
