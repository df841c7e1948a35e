package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// TaskObserver is notified around every task a SingleThreadTaskRunner runs.
// Both calls happen on the runner's dedicated goroutine, so an observer
// attached to a single runner needs no locking for per-runner state.
type TaskObserver interface {
	// WillRunTask is called right before task executes.
	// wasBlockedOrLowPriority is true when the task sat behind a delay or
	// ran at best-effort priority, so its queue time says nothing about
	// responsiveness.
	WillRunTask(task *PendingTask, wasBlockedOrLowPriority bool)

	// DidRunTask is called right after task returns or panics.
	DidRunTask(task *PendingTask)
}

// SingleThreadTaskRunner binds a dedicated Goroutine to execute tasks sequentially.
// It guarantees that all tasks submitted to it run on the same Goroutine (Thread Affinity).
//
// It stands in for the browser UI and IO threads: the Watcher observes one
// runner of each kind and feeds their completion times to a Calculator.
type SingleThreadTaskRunner struct {
	// Task queue: Buffered channel for tasks
	workQueue chan *PendingTask

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	observersMu sync.RWMutex
	observers   []TaskObserver

	panicHandler PanicHandler
	logger       Logger
	now          func() time.Time

	running  atomic.Bool
	executed atomic.Int64

	// Metadata
	name         string
	lastTaskName string
	lastTaskAt   time.Time
	mu           sync.Mutex
}

// SingleThreadTaskRunnerConfig holds optional collaborators.
type SingleThreadTaskRunnerConfig struct {
	Name         string
	QueueSize    int
	PanicHandler PanicHandler
	Logger       Logger

	// Now stamps queue and completion times. Defaults to time.Now.
	Now func() time.Time
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// It immediately spawns a dedicated goroutine for task execution.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	return NewSingleThreadTaskRunnerWithConfig(nil)
}

// NewSingleThreadTaskRunnerWithConfig is NewSingleThreadTaskRunner with
// explicit collaborators. A nil config uses defaults.
func NewSingleThreadTaskRunnerWithConfig(config *SingleThreadTaskRunnerConfig) *SingleThreadTaskRunner {
	var cfg SingleThreadTaskRunnerConfig
	if config != nil {
		cfg = *config
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100 // Buffer to avoid blocking senders
	}
	if cfg.Logger == nil {
		cfg.Logger = NewDefaultLogger("task_runner")
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{Logger: cfg.Logger}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		workQueue:    make(chan *PendingTask, cfg.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		panicHandler: cfg.PanicHandler,
		logger:       cfg.Logger,
		now:          cfg.Now,
		name:         cfg.Name,
	}

	// Start the dedicated message loop
	go r.runLoop()

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// SetName sets the name of the task runner
func (r *SingleThreadTaskRunner) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// AddTaskObserver registers an observer for tasks that start after this call.
func (r *SingleThreadTaskRunner) AddTaskObserver(o TaskObserver) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.observers = append(r.observers, o)
}

// RemoveTaskObserver unregisters an observer. Unknown observers are ignored.
func (r *SingleThreadTaskRunner) RemoveTaskObserver(o TaskObserver) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *SingleThreadTaskRunner) snapshotObservers() []TaskObserver {
	r.observersMu.RLock()
	defer r.observersMu.RUnlock()
	if len(r.observers) == 0 {
		return nil
	}
	out := make([]TaskObserver, len(r.observers))
	copy(out, r.observers)
	return out
}

// PostTask submits a task for execution
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	r.PostTaskWithTraits(task, DefaultTaskTraits())
}

// PostTaskNamed submits a task whose name shows up in Stats and logs.
func (r *SingleThreadTaskRunner) PostTaskNamed(name string, task Task) {
	r.post(&PendingTask{ID: GenerateTaskID(), Name: name, Traits: DefaultTaskTraits(), QueueTime: r.now(), task: task})
}

// PostTaskWithTraits submits a task with traits. Traits do not reorder
// tasks on a single thread; best-effort tasks are reported as low priority.
func (r *SingleThreadTaskRunner) PostTaskWithTraits(task Task, traits TaskTraits) {
	r.post(&PendingTask{ID: GenerateTaskID(), Traits: traits, QueueTime: r.now(), task: task})
}

func (r *SingleThreadTaskRunner) post(pending *PendingTask) {
	// Check if runner is closed to avoid panic on closed channel
	if r.closed.Load() {
		return
	}

	select {
	case <-r.ctx.Done():
		// Runner stopped, drop task
		return
	case r.workQueue <- pending:
		// Successfully queued
	}
}

// PostDelayedTask submits a delayed task
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	r.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostDelayedTaskWithTraits submits a delayed task with traits.
// The task keeps its original queue time and carries its delayed run time,
// so observers can tell that the wait was intentional.
func (r *SingleThreadTaskRunner) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	if r.closed.Load() {
		return
	}

	queued := r.now()
	pending := &PendingTask{
		ID:             GenerateTaskID(),
		Traits:         traits,
		QueueTime:      queued,
		DelayedRunTime: queued.Add(delay),
		task:           task,
	}

	select {
	case <-r.ctx.Done():
		return
	default:
		time.AfterFunc(delay, func() {
			r.post(pending)
		})
	}
}

// PostRepeatingTask submits a task that repeats at a fixed interval
func (r *SingleThreadTaskRunner) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return r.PostRepeatingTaskWithTraits(task, interval, DefaultTaskTraits())
}

// PostRepeatingTaskWithTraits submits a repeating task with traits.
// The first run happens immediately.
func (r *SingleThreadTaskRunner) PostRepeatingTaskWithTraits(task Task, interval time.Duration, traits TaskTraits) RepeatingTaskHandle {
	handle := &singleThreadRepeatingHandle{
		runner:   r,
		task:     task,
		interval: interval,
		traits:   traits,
	}
	r.PostTaskWithTraits(handle.createRepeatingTask(), traits)
	return handle
}

// Shutdown marks the runner as closed and signals shutdown waiters.
// Unlike Stop(), this method does NOT wait for the runLoop to exit,
// so it can be called from within a task.
func (r *SingleThreadTaskRunner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		close(r.shutdownChan)
	})
}

// IsClosed returns true if the runner has been stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner and waits for the current task to complete.
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		r.closed.Store(true)
		r.cancel()
		<-r.stopped
	})
	r.shutdownOnce.Do(func() {
		close(r.shutdownChan)
	})
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped) // Signal that Stop() can return

	// Create context with taskRunnerKey for GetCurrentTaskRunner
	runCtx := context.WithValue(r.ctx, taskRunnerKey, r)

	for {
		select {
		case pending := <-r.workQueue:
			r.runTask(runCtx, pending)

		case <-r.ctx.Done():
			return
		}
	}
}

func (r *SingleThreadTaskRunner) runTask(ctx context.Context, pending *PendingTask) {
	observers := r.snapshotObservers()
	blockedOrLowPriority := pending.IsDelayed() || pending.IsLowPriority()

	r.running.Store(true)
	for _, o := range observers {
		o.WillRunTask(pending, blockedOrLowPriority)
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.panicHandler.HandlePanic(ctx, r.Name(), -1, rec, debug.Stack())
			}
		}()
		if pending.task == nil {
			panic(fmt.Sprintf("%s is nil", pending.ID))
		}
		pending.task(ctx)
	}()

	// Observers see completions in reverse registration order, matching
	// nested scopes.
	for i := len(observers) - 1; i >= 0; i-- {
		observers[i].DidRunTask(pending)
	}
	r.running.Store(false)
	r.executed.Add(1)

	r.mu.Lock()
	r.lastTaskName = pending.Name
	r.lastTaskAt = r.now()
	r.mu.Unlock()

	if pending.done != nil {
		close(pending.done)
	}
}

// Stats returns a snapshot of the runner state.
func (r *SingleThreadTaskRunner) Stats() RunnerStats {
	r.mu.Lock()
	name, lastName, lastAt := r.name, r.lastTaskName, r.lastTaskAt
	r.mu.Unlock()

	r.observersMu.RLock()
	observers := len(r.observers)
	r.observersMu.RUnlock()

	return RunnerStats{
		Name:         name,
		Pending:      len(r.workQueue),
		Running:      r.running.Load(),
		Executed:     r.executed.Load(),
		Observers:    observers,
		Closed:       r.closed.Load(),
		LastTaskName: lastName,
		LastTaskAt:   lastAt,
	}
}

// =============================================================================
// Repeating Task Handle for SingleThreadTaskRunner
// =============================================================================

type singleThreadRepeatingHandle struct {
	runner   *SingleThreadTaskRunner
	task     Task
	interval time.Duration
	traits   TaskTraits
	stopped  atomic.Bool
}

func (h *singleThreadRepeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *singleThreadRepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

func (h *singleThreadRepeatingHandle) createRepeatingTask() Task {
	return func(ctx context.Context) {
		if h.runner.IsClosed() || h.IsStopped() {
			return
		}

		h.task(ctx)

		if !h.IsStopped() && !h.runner.IsClosed() {
			h.runner.PostDelayedTaskWithTraits(h.createRepeatingTask(), h.interval, h.traits)
		}
	}
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued tasks have completed execution
// and their observers have been notified. This is implemented by posting a
// barrier task and waiting for it to finish.
//
// Note: Tasks posted after WaitIdle is called are not waited for, and
// delayed tasks that have not fired yet are not waited for either.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("runner %q is closed", r.Name())
	}

	done := make(chan struct{})
	r.post(&PendingTask{
		ID:        GenerateTaskID(),
		Name:      "wait_idle",
		Traits:    DefaultTaskTraits(),
		QueueTime: r.now(),
		task:      func(context.Context) {},
		done:      done,
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitShutdown blocks until Shutdown() or Stop() is called on this runner.
func (r *SingleThreadTaskRunner) WaitShutdown(ctx context.Context) error {
	select {
	case <-r.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
