// Package responsiveness measures how responsive an application's UI and IO
// threads are, reporting the janky_intervals_per_thirty_seconds histograms.
//
// Work is posted to two SingleThreadTaskRunners standing in for the UI and
// IO threads. A Watcher observes every task they run and reports its queue,
// start and finish times to a Calculator. Any task whose latency reaches the
// jank threshold (100ms) is a jank. Every measurement interval (30s) the
// Calculator splits the interval into threshold-wide slices and reports how
// many slices were covered by janks, once counting execution time only and
// once counting queueing plus execution time.
//
// # Quick Start
//
// Initialize the global watcher at application startup:
//
//	responsiveness.InitGlobalWatcher(&responsiveness.CalculatorConfig{
//		Sink: &responsiveness.LogSink{Logger: core.NewDefaultLogger("jank")},
//	})
//	defer responsiveness.ShutdownGlobalWatcher()
//
// Post UI work to the UI thread:
//
//	responsiveness.UIThread().PostTask(func(ctx context.Context) {
//		// Tasks taking 100ms or more count as janks
//	})
//
// # Key Concepts
//
// Jank: the interval of a task's latency past the threshold. A 250ms task
// covers two slices: the first threshold of a jank is not counted.
//
// Slice: a threshold-wide part of a measurement interval. Overlapping janks,
// including janks on different threads, count each slice once.
//
// Suspension: a gap in UI activity longer than the suspend interval, or a
// hidden application, discards all pending janks. An explicit suspend or
// resume marks the window's sample as suspended.
//
// Sink: receives one sample per window per jank type. Prometheus, Kafka and
// log sinks are provided.
//
// Tracer: receives every queue-and-execution jank as a span. Chrome trace and
// Sentry tracers are provided.
//
// # Thread Safety
//
// The Calculator's UI entry points must run on the UI thread and its IO entry
// point on the IO thread. The Watcher guarantees this when it is set up on a
// pair of SingleThreadTaskRunners.
package responsiveness
