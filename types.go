package responsiveness

import "github.com/Swind/go-responsiveness/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the responsiveness package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskTraits defines task attributes (priority, blocking behavior, etc.)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// SingleThreadTaskRunner ensures all tasks execute on the same dedicated goroutine
type SingleThreadTaskRunner = core.SingleThreadTaskRunner

// RepeatingTaskHandle controls the lifecycle of a repeating task
type RepeatingTaskHandle = core.RepeatingTaskHandle

// Calculator aggregates janks into per-window samples
type Calculator = core.Calculator

// CalculatorConfig configures a Calculator
type CalculatorConfig = core.CalculatorConfig

// Watcher feeds task completions from the UI and IO threads to a Calculator
type Watcher = core.Watcher

// Sink receives one sample per window per jank type
type Sink = core.Sink

// LogSink logs every sample
type LogSink = core.LogSink

// MultiSink fans samples out to several sinks
type MultiSink = core.MultiSink

// Tracer receives jank spans
type Tracer = core.Tracer

// MultiTracer fans spans out to several tracers
type MultiTracer = core.MultiTracer

// JankType selects execution or queue-and-execution latency
type JankType = core.JankType

// WindowSample is one emitted sample
type WindowSample = core.WindowSample

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Jank type constants
const (
	JankTypeExecution         JankType = core.JankTypeExecution
	JankTypeQueueAndExecution JankType = core.JankTypeQueueAndExecution
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsBestEffort   = core.TraitsBestEffort
	TraitsUserVisible  = core.TraitsUserVisible
)

// NewSingleThreadTaskRunner creates a new SingleThreadTaskRunner with a dedicated goroutine.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	return core.NewSingleThreadTaskRunner()
}

// NewCalculator creates a Calculator whose first window starts now.
func NewCalculator(config *CalculatorConfig) (*Calculator, error) {
	return core.NewCalculator(config)
}

// GetCurrentTaskRunner retrieves the current TaskRunner from context
var GetCurrentTaskRunner = core.GetCurrentTaskRunner
