package core

import "time"

// WindowSample captures one emitted responsiveness aggregate.
type WindowSample struct {
	JankType    JankType
	WindowStart time.Time
	WindowEnd   time.Time
	JankySlices int
	Suspended   bool
}

// CalculatorStats represents runtime observability state for a Calculator.
type CalculatorStats struct {
	// Pending janks per list, not yet consumed by a calculation.
	PendingUIExecution         int
	PendingUIQueueAndExecution int
	PendingIOExecution         int
	PendingIOQueueAndExecution int

	LastCalculationTime    time.Time
	MostRecentActivityTime time.Time

	ProcessSuspended    bool
	WasProcessSuspended bool

	// WindowsEmitted counts measurement windows reported to the sink.
	WindowsEmitted int64
	// SuspendDiscards counts calculations that dropped data as suspended.
	SuspendDiscards int64
	// ClockRegressions counts UI completions older than the latest activity.
	ClockRegressions int64

	UIJanks uint64
	IOJanks uint64
}

// RunnerStats represents runtime observability state for a task runner.
type RunnerStats struct {
	Name         string
	Pending      int
	Running      bool
	Executed     int64
	Observers    int
	Closed       bool
	LastTaskName string
	LastTaskAt   time.Time
}
