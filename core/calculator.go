package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Calculator turns task and event completion times reported by the UI and IO
// threads into one janky-slice count per measurement window.
//
// A measurement window is divided into JankThreshold-wide slices. A slice is
// janky if any jank covers it past the jank's own first threshold. Windows
// are aligned to the calculator's construction time.
//
// Threading:
//   - TaskOrEventFinishedOnUIThread must be called from the UI thread.
//     Calculation runs inline on that thread.
//   - SetProcessSuspended is safe from any goroutine.
//   - TaskOrEventFinishedOnIOThread must be called from the IO thread.
//   - Stats, LastCalculationTime and RecentSamples are safe from any goroutine.
type Calculator struct {
	measurementInterval time.Duration
	jankThreshold       time.Duration
	suspendInterval     time.Duration
	maxJankySlices      int

	sink       Sink
	tracer     Tracer
	visibility VisibilityProvider
	logger     Logger

	// UI thread state. Never touched from another goroutine.
	lastCalculationTime        time.Time
	mostRecentActivityTime     time.Time
	executionJanksOnUI         JankList
	queueAndExecutionJanksOnUI JankList

	// Power notifications may arrive from a monitor goroutine.
	suspendMu           sync.Mutex
	isProcessSuspended  bool
	wasProcessSuspended bool

	// IO thread state, drained by the UI thread during a calculation.
	ioMu                       sync.Mutex
	executionJanksOnIO         JankList
	queueAndExecutionJanksOnIO JankList

	// Trace span ids, one sequence per source.
	uiJankIDs atomic.Uint64
	ioJankIDs atomic.Uint64

	windowsEmitted   atomic.Int64
	suspendDiscards  atomic.Int64
	clockRegressions atomic.Int64
	contractFailures atomic.Int64

	history *sampleHistory

	// Snapshot of UI thread state for Stats.
	statsMu sync.Mutex
	uiStats CalculatorStats
}

// NewCalculator creates a calculator whose first window starts now.
func NewCalculator(config *CalculatorConfig) (*Calculator, error) {
	cfg := config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := cfg.Now()
	c := &Calculator{
		measurementInterval:    cfg.MeasurementInterval,
		jankThreshold:          cfg.JankThreshold,
		suspendInterval:        cfg.SuspendInterval,
		maxJankySlices:         cfg.MaxJankySlices(),
		sink:                   cfg.Sink,
		tracer:                 cfg.Tracer,
		visibility:             cfg.Visibility,
		logger:                 cfg.Logger,
		lastCalculationTime:    now,
		mostRecentActivityTime: now,
		history:                newSampleHistory(cfg.HistorySize),
	}
	c.publishStats()
	return c, nil
}

// =============================================================================
// Ingestion
// =============================================================================

// RecordCompletion dispatches to the thread-specific entry point.
func (c *Calculator) RecordCompletion(source Source, queueTime, executionStartTime, executionFinishTime time.Time) {
	switch source {
	case SourceUI:
		c.TaskOrEventFinishedOnUIThread(queueTime, executionStartTime, executionFinishTime)
	case SourceIO:
		c.TaskOrEventFinishedOnIOThread(queueTime, executionStartTime, executionFinishTime)
	default:
		c.logger.Error("completion from unknown source", F("source", int(source)))
	}
}

// TaskOrEventFinishedOnUIThread records a UI completion and, since
// executionFinishTime is taken to be the current time, runs a calculation
// if a window boundary has passed.
func (c *Calculator) TaskOrEventFinishedOnUIThread(queueTime, executionStartTime, executionFinishTime time.Time) {
	if !c.checkOrdering(SourceUI, queueTime, executionStartTime, executionFinishTime) {
		return
	}

	if executionFinishTime.Sub(queueTime) >= c.jankThreshold {
		c.queueAndExecutionJanksOnUI = append(c.queueAndExecutionJanksOnUI, NewJank(queueTime, executionFinishTime))
		c.tracer.TraceJank(SourceUI, c.uiJankIDs.Add(1)-1, queueTime, executionFinishTime)

		if executionFinishTime.Sub(executionStartTime) >= c.jankThreshold {
			c.executionJanksOnUI = append(c.executionJanksOnUI, NewJank(executionStartTime, executionFinishTime))
		}
	}

	c.calculateResponsivenessIfNecessary(executionFinishTime)
	c.publishStats()
}

// TaskOrEventFinishedOnIOThread records an IO completion. It never triggers a
// calculation; the UI thread drains IO janks when a window closes.
func (c *Calculator) TaskOrEventFinishedOnIOThread(queueTime, executionStartTime, executionFinishTime time.Time) {
	if !c.checkOrdering(SourceIO, queueTime, executionStartTime, executionFinishTime) {
		return
	}

	if executionFinishTime.Sub(queueTime) < c.jankThreshold {
		return
	}

	c.ioMu.Lock()
	c.queueAndExecutionJanksOnIO = append(c.queueAndExecutionJanksOnIO, NewJank(queueTime, executionFinishTime))
	if executionFinishTime.Sub(executionStartTime) >= c.jankThreshold {
		c.executionJanksOnIO = append(c.executionJanksOnIO, NewJank(executionStartTime, executionFinishTime))
	}
	c.ioMu.Unlock()

	c.tracer.TraceJank(SourceIO, c.ioJankIDs.Add(1)-1, queueTime, executionFinishTime)
}

// SetProcessSuspended records a suspend or resume. Either direction marks
// the current window as having contained a suspension.
func (c *Calculator) SetProcessSuspended(suspended bool) {
	c.suspendMu.Lock()
	c.isProcessSuspended = suspended
	c.wasProcessSuspended = true
	c.suspendMu.Unlock()
}

// checkOrdering rejects completions whose timestamps go backwards.
func (c *Calculator) checkOrdering(source Source, queueTime, executionStartTime, executionFinishTime time.Time) bool {
	if executionStartTime.Before(queueTime) || executionFinishTime.Before(executionStartTime) {
		c.contractFailures.Add(1)
		c.logger.Error("completion timestamps out of order",
			F("source", source.String()),
			F("queue_time", queueTime),
			F("execution_start_time", executionStartTime),
			F("execution_finish_time", executionFinishTime))
		return false
	}
	return true
}

// =============================================================================
// Calculation
// =============================================================================

func (c *Calculator) calculateResponsivenessIfNecessary(currentTime time.Time) {
	if currentTime.Before(c.mostRecentActivityTime) {
		// The host clock went backwards. Keep the newer activity time and
		// wait for the stream to catch up instead of rewinding the grid.
		c.clockRegressions.Add(1)
		c.logger.Debug("ignoring completion older than most recent activity",
			F("current_time", currentTime),
			F("most_recent_activity_time", c.mostRecentActivityTime))
		return
	}

	lastActivityTime := c.mostRecentActivityTime
	c.mostRecentActivityTime = currentTime

	// A long UI silence means the process was not running.
	isSuspended := currentTime.Sub(lastActivityTime) > c.suspendInterval
	isSuspended = isSuspended || !c.visibility.IsApplicationVisible()
	if isSuspended {
		c.lastCalculationTime = currentTime
		c.executionJanksOnUI = nil
		c.queueAndExecutionJanksOnUI = nil

		c.ioMu.Lock()
		c.executionJanksOnIO = nil
		c.queueAndExecutionJanksOnIO = nil
		c.ioMu.Unlock()

		c.suspendDiscards.Add(1)
		c.logger.Debug("discarding janks across suspected suspension",
			F("silence", currentTime.Sub(lastActivityTime)))
		return
	}

	sinceLastCalculation := currentTime.Sub(c.lastCalculationTime)
	if sinceLastCalculation <= c.measurementInterval {
		return
	}

	// Move forward by whole windows only, so the grid keeps its phase.
	newCalculationTime := currentTime.Add(-(sinceLastCalculation % c.measurementInterval))

	executionJanks := make([]JankList, 0, 2)
	queueAndExecutionJanks := make([]JankList, 0, 2)
	executionJanks = append(executionJanks, takeJanksOlderThan(&c.executionJanksOnUI, newCalculationTime))
	queueAndExecutionJanks = append(queueAndExecutionJanks, takeJanksOlderThan(&c.queueAndExecutionJanksOnUI, newCalculationTime))

	c.ioMu.Lock()
	executionJanks = append(executionJanks, takeJanksOlderThan(&c.executionJanksOnIO, newCalculationTime))
	queueAndExecutionJanks = append(queueAndExecutionJanks, takeJanksOlderThan(&c.queueAndExecutionJanksOnIO, newCalculationTime))
	c.ioMu.Unlock()

	// A notification arriving during emission belongs to the next window.
	c.suspendMu.Lock()
	wasSuspended := c.wasProcessSuspended
	c.wasProcessSuspended = c.isProcessSuspended
	c.suspendMu.Unlock()

	c.calculateResponsiveness(JankTypeExecution, executionJanks, c.lastCalculationTime, newCalculationTime, wasSuspended)
	c.calculateResponsiveness(JankTypeQueueAndExecution, queueAndExecutionJanks, c.lastCalculationTime, newCalculationTime, wasSuspended)

	c.lastCalculationTime = newCalculationTime
}

// calculateResponsiveness emits one sample per window in [startTime, endTime).
// Janks from different threads are merged at the slice level only.
func (c *Calculator) calculateResponsiveness(jankType JankType, janksFromThreads []JankList, startTime, endTime time.Time, wasSuspended bool) {
	for startTime.Before(endTime) {
		windowEnd := startTime.Add(c.measurementInterval)

		// Slice labels run from 0 at startTime to maxJankySlices-1.
		jankySlices := make(map[int64]struct{})
		for _, janks := range janksFromThreads {
			for _, jank := range janks {
				addJankySlices(jankySlices, jank, startTime, windowEnd, c.jankThreshold)
			}
		}

		c.emitResponsiveness(jankType, len(jankySlices), startTime, windowEnd, wasSuspended)
		startTime = windowEnd
	}
}

func (c *Calculator) emitResponsiveness(jankType JankType, jankySlices int, windowStart, windowEnd time.Time, wasSuspended bool) {
	if jankySlices > c.maxJankySlices {
		c.contractFailures.Add(1)
		c.logger.Error("janky slice count exceeds window size",
			F("jank_type", jankType.String()),
			F("janky_slices", jankySlices),
			F("max_janky_slices", c.maxJankySlices))
	}

	c.sink.EmitResponsiveness(jankType, jankySlices, wasSuspended)
	c.windowsEmitted.Add(1)
	c.history.Add(WindowSample{
		JankType:    jankType,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		JankySlices: jankySlices,
		Suspended:   wasSuspended,
	})
}

// =============================================================================
// Observability
// =============================================================================

func (c *Calculator) publishStats() {
	c.statsMu.Lock()
	c.uiStats = CalculatorStats{
		PendingUIExecution:         len(c.executionJanksOnUI),
		PendingUIQueueAndExecution: len(c.queueAndExecutionJanksOnUI),
		LastCalculationTime:        c.lastCalculationTime,
		MostRecentActivityTime:     c.mostRecentActivityTime,
	}
	c.statsMu.Unlock()
}

// LastCalculationTime returns the end of the last processed window.
func (c *Calculator) LastCalculationTime() time.Time {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.uiStats.LastCalculationTime
}

// Stats returns a snapshot of the calculator state.
func (c *Calculator) Stats() CalculatorStats {
	c.statsMu.Lock()
	stats := c.uiStats
	c.statsMu.Unlock()

	c.suspendMu.Lock()
	stats.ProcessSuspended = c.isProcessSuspended
	stats.WasProcessSuspended = c.wasProcessSuspended
	c.suspendMu.Unlock()

	c.ioMu.Lock()
	stats.PendingIOExecution = len(c.executionJanksOnIO)
	stats.PendingIOQueueAndExecution = len(c.queueAndExecutionJanksOnIO)
	c.ioMu.Unlock()

	stats.WindowsEmitted = c.windowsEmitted.Load()
	stats.SuspendDiscards = c.suspendDiscards.Load()
	stats.ClockRegressions = c.clockRegressions.Load()
	stats.UIJanks = c.uiJankIDs.Load()
	stats.IOJanks = c.ioJankIDs.Load()
	return stats
}

// RecentSamples returns up to limit emitted samples, newest first.
func (c *Calculator) RecentSamples(limit int) []WindowSample {
	return c.history.Recent(limit)
}

// LastSample returns the most recently emitted sample.
func (c *Calculator) LastSample() (WindowSample, bool) {
	return c.history.Last()
}

// ContractViolations counts completions rejected for out-of-order timestamps
// and impossible slice counts.
func (c *Calculator) ContractViolations() int64 {
	return c.contractFailures.Load()
}

func (c *Calculator) String() string {
	return fmt.Sprintf("Calculator{interval=%v threshold=%v suspend=%v}",
		c.measurementInterval, c.jankThreshold, c.suspendInterval)
}
