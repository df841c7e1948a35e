package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskTraits: Define task attributes (priority, blocking behavior, etc.)
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority.
	// Tasks at this priority are treated as low priority by the Watcher, so
	// only their execution time counts towards jank.
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	// `UserBlocking` means the task may block the main thread.
	// If main thread is blocked, the UI will be unresponsive.
	TaskPriorityUserBlocking
)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

type TaskTraits struct {
	Priority TaskPriority
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// =============================================================================
// PendingTask: a posted task together with its queueing metadata
// =============================================================================

// TaskID identifies a posted task for the lifetime of the process.
type TaskID uint64

var lastTaskID atomic.Uint64

// GenerateTaskID returns a process-unique task identifier.
func GenerateTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", uint64(id))
}

// PendingTask is what task observers see. It is immutable once posted.
type PendingTask struct {
	ID     TaskID
	Name   string
	Traits TaskTraits

	// QueueTime is when the task was handed to the runner.
	QueueTime time.Time

	// DelayedRunTime is the earliest time a delayed task may run.
	// Zero for tasks posted without delay.
	DelayedRunTime time.Time

	task Task

	// done is closed once observers have seen the task finish.
	done chan struct{}
}

// IsDelayed reports whether the task was posted with a delay.
func (p *PendingTask) IsDelayed() bool {
	return !p.DelayedRunTime.IsZero()
}

// IsLowPriority reports whether the task ran at best-effort priority.
func (p *PendingTask) IsLowPriority() bool {
	return p.Traits.Priority == TaskPriorityBestEffort
}

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================
type TaskRunner interface {
	PostTask(task Task)
	PostTaskWithTraits(task Task, traits TaskTraits)
	PostDelayedTask(task Task, delay time.Duration)
	PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits)
}

// RepeatingTaskHandle controls the lifecycle of a repeating task.
type RepeatingTaskHandle interface {
	Stop()
	IsStopped() bool
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
