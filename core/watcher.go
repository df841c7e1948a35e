package core

import (
	"context"
	"sync"
	"time"
)

// Watcher connects the UI and IO task runners to a Calculator. It pairs
// will-run/did-run notifications, turns each pair into a completion record
// and forwards suspend/resume notifications.
//
// All UI state is touched only from the UI runner goroutine and all IO state
// only from the IO runner goroutine.
type Watcher struct {
	calculator *Calculator
	logger     Logger
	now        func() time.Time

	mu        sync.Mutex
	uiRunner  *SingleThreadTaskRunner
	ioRunner  *SingleThreadTaskRunner
	destroyed bool

	ui *threadObserver
	io *threadObserver

	// Event identifiers should be mismatched at most once: the watcher may
	// be registered while an event is already running.
	mismatchedEventIdentifiersUI int
}

// WatcherConfig holds optional collaborators.
type WatcherConfig struct {
	Logger Logger
	Now    func() time.Time
}

// metadata describes a task or event that is currently running.
type metadata struct {
	identifier              any
	wasBlockedOrLowPriority bool
	executionStartTime      time.Time

	// causedReentrancy is set when another task or event started while this
	// one was still running, e.g. a nested run loop.
	causedReentrancy bool
}

// threadObserver holds per-thread bookkeeping and implements TaskObserver.
type threadObserver struct {
	w      *Watcher
	source Source

	currentlyRunning []metadata

	// Task identifiers should only be mismatched once, since the watcher may
	// register itself during a task execution and miss its WillRunTask.
	mismatchedTaskIdentifiers int
}

// NewWatcher creates a watcher feeding calculator.
func NewWatcher(calculator *Calculator, config *WatcherConfig) *Watcher {
	var cfg WatcherConfig
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = NewDefaultLogger("responsiveness_watcher")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	w := &Watcher{
		calculator: calculator,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	w.ui = &threadObserver{w: w, source: SourceUI}
	w.io = &threadObserver{w: w, source: SourceIO}
	return w
}

// Calculator returns the calculator this watcher feeds.
func (w *Watcher) Calculator() *Calculator {
	return w.calculator
}

// SetUp starts observing the given runners. Either may be nil.
func (w *Watcher) SetUp(ui, io *SingleThreadTaskRunner) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.uiRunner = ui
	w.ioRunner = io
	if ui != nil {
		ui.AddTaskObserver(w.ui)
	}
	if io != nil {
		io.AddTaskObserver(w.io)
	}
	w.logger.Debug("responsiveness watcher set up",
		F("ui_runner", runnerName(ui)),
		F("io_runner", runnerName(io)))
}

// Destroy stops observing. Tasks already running are not reported.
func (w *Watcher) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return
	}
	w.destroyed = true
	if w.uiRunner != nil {
		w.uiRunner.RemoveTaskObserver(w.ui)
	}
	if w.ioRunner != nil {
		w.ioRunner.RemoveTaskObserver(w.io)
	}
}

// UIObserver is the observer registered on the UI runner by SetUp.
// Exposed for hosts that drive their own UI loop.
func (w *Watcher) UIObserver() TaskObserver { return w.ui }

// IOObserver is the observer registered on the IO runner by SetUp.
func (w *Watcher) IOObserver() TaskObserver { return w.io }

// =============================================================================
// Native events (UI thread only)
// =============================================================================

// WillRunEventOnUIThread marks the start of a native event. identifier must
// be comparable and unique among events in flight.
func (w *Watcher) WillRunEventOnUIThread(identifier any) {
	w.ui.willRun(identifier, false)
}

// DidRunEventOnUIThread marks the end of a native event. Events have no
// queue time, so only execution time is measured.
func (w *Watcher) DidRunEventOnUIThread(identifier any) {
	o := w.ui
	if len(o.currentlyRunning) == 0 || o.currentlyRunning[len(o.currentlyRunning)-1].identifier != identifier {
		w.mismatchedEventIdentifiersUI++
		if w.mismatchedEventIdentifiersUI > 1 {
			w.logger.Warn("mismatched event identifier", F("count", w.mismatchedEventIdentifiersUI))
		}
		return
	}

	m := o.pop()
	if m.causedReentrancy {
		return
	}
	w.calculator.TaskOrEventFinishedOnUIThread(m.executionStartTime, m.executionStartTime, w.now())
}

// =============================================================================
// Power notifications
// =============================================================================

// OnSuspend is called when the host is about to sleep.
func (w *Watcher) OnSuspend() {
	w.setProcessSuspended(true)
}

// OnResume is called when the host woke up.
func (w *Watcher) OnResume() {
	w.setProcessSuspended(false)
}

// setProcessSuspended hops to the UI runner so the notification is ordered
// with UI task completions. Without a live UI runner the calculator is told
// directly; its suspend flags are safe from any goroutine.
//
// A runner that closes between the check and the post drops the
// notification. A closed UI runner reports no further completions, so no
// window can carry the lost flag.
func (w *Watcher) setProcessSuspended(suspended bool) {
	w.mu.Lock()
	ui := w.uiRunner
	w.mu.Unlock()

	if ui == nil || ui.IsClosed() {
		w.calculator.SetProcessSuspended(suspended)
		return
	}
	ui.PostTaskWithTraits(func(ctx context.Context) {
		w.calculator.SetProcessSuspended(suspended)
	}, TraitsUserBlocking())
	if ui.IsClosed() {
		w.logger.Debug("ui runner closed, power notification may be dropped",
			F("suspended", suspended))
	}
}

// =============================================================================
// TaskObserver implementation
// =============================================================================

func (o *threadObserver) WillRunTask(task *PendingTask, wasBlockedOrLowPriority bool) {
	o.willRun(task, wasBlockedOrLowPriority)
}

func (o *threadObserver) DidRunTask(task *PendingTask) {
	if len(o.currentlyRunning) == 0 || o.currentlyRunning[len(o.currentlyRunning)-1].identifier != any(task) {
		o.mismatchedTaskIdentifiers++
		if o.mismatchedTaskIdentifiers > 1 {
			o.w.logger.Warn("mismatched task identifier",
				F("thread", o.source.String()),
				F("task", task.ID.String()),
				F("count", o.mismatchedTaskIdentifiers))
		}
		return
	}

	m := o.pop()

	// A task that hosted a nested loop has a huge latency even though the
	// thread kept running other work.
	if m.causedReentrancy {
		return
	}

	// Delayed and blocked/low priority tasks waited on purpose; only their
	// execution time is interesting.
	queueTime := task.QueueTime
	if task.IsDelayed() || m.wasBlockedOrLowPriority {
		queueTime = m.executionStartTime
	}

	finish := o.w.now()
	switch o.source {
	case SourceUI:
		o.w.calculator.TaskOrEventFinishedOnUIThread(queueTime, m.executionStartTime, finish)
	case SourceIO:
		o.w.calculator.TaskOrEventFinishedOnIOThread(queueTime, m.executionStartTime, finish)
	}
}

func (o *threadObserver) willRun(identifier any, wasBlockedOrLowPriority bool) {
	// Reentrancy should be rare.
	if n := len(o.currentlyRunning); n > 0 {
		o.currentlyRunning[n-1].causedReentrancy = true
	}
	o.currentlyRunning = append(o.currentlyRunning, metadata{
		identifier:              identifier,
		wasBlockedOrLowPriority: wasBlockedOrLowPriority,
		executionStartTime:      o.w.now(),
	})
}

func (o *threadObserver) pop() metadata {
	n := len(o.currentlyRunning)
	m := o.currentlyRunning[n-1]
	o.currentlyRunning = o.currentlyRunning[:n-1]
	return m
}

func runnerName(r *SingleThreadTaskRunner) string {
	if r == nil {
		return ""
	}
	return r.Name()
}
