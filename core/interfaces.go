package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (may contain task runner info)
	// - runnerName: The name of the task runner where the panic occurred
	// - workerID: The ID of the worker, -1 for single-threaded runners
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic value and stack.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger("task_runner")
	}
	logger.Error("task panicked",
		F("runner", runnerName),
		F("worker", workerID),
		F("panic", fmt.Sprint(panicInfo)),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Sink: receives one aggregate per measurement window per jank type
// =============================================================================

// Sink consumes responsiveness samples. The calculator calls it from the UI
// thread, once per completed measurement window per JankType.
//
// Implementations should be fast; they run inline with UI task completion.
type Sink interface {
	// EmitResponsiveness reports the number of distinct janky slices in a
	// window, and whether the process was suspended at any point during it.
	EmitResponsiveness(jankType JankType, jankySlices int, wasProcessSuspended bool)
}

// NilSink drops every sample. This is the default when no sink is provided.
type NilSink struct{}

// EmitResponsiveness is a no-op.
func (NilSink) EmitResponsiveness(jankType JankType, jankySlices int, wasProcessSuspended bool) {}

// LogSink writes every sample to a Logger at info level.
type LogSink struct {
	Logger Logger
}

// EmitResponsiveness logs the sample.
func (s *LogSink) EmitResponsiveness(jankType JankType, jankySlices int, wasProcessSuspended bool) {
	s.Logger.Info("responsiveness sample",
		F("jank_type", jankType.String()),
		F("janky_slices", jankySlices),
		F("suspended", wasProcessSuspended))
}

// MultiSink fans a sample out to several sinks in order.
type MultiSink []Sink

// EmitResponsiveness forwards the sample to every sink.
func (m MultiSink) EmitResponsiveness(jankType JankType, jankySlices int, wasProcessSuspended bool) {
	for _, s := range m {
		s.EmitResponsiveness(jankType, jankySlices, wasProcessSuspended)
	}
}

// =============================================================================
// Tracer: receives a begin/end span for every queue+execution jank
// =============================================================================

// Tracer highlights large janks in an external trace viewer. It is purely
// informational; the calculator never reads anything back.
type Tracer interface {
	// TraceJank is called with a per-source id that is unique and
	// monotonically increasing for the calculator instance.
	TraceJank(source Source, id uint64, start, end time.Time)
}

// NilTracer discards all spans.
type NilTracer struct{}

// TraceJank is a no-op.
func (NilTracer) TraceJank(source Source, id uint64, start, end time.Time) {}

// MultiTracer fans a span out to several tracers in order.
type MultiTracer []Tracer

// TraceJank forwards the span to every tracer.
func (m MultiTracer) TraceJank(source Source, id uint64, start, end time.Time) {
	for _, t := range m {
		t.TraceJank(source, id, start, end)
	}
}

// =============================================================================
// VisibilityProvider: platform signal that the application is backgrounded
// =============================================================================

// VisibilityProvider is polled on every calculation. A hidden application is
// treated the same as a suspended process.
type VisibilityProvider interface {
	IsApplicationVisible() bool
}

// AlwaysVisible is used on platforms without a visibility concept.
type AlwaysVisible struct{}

// IsApplicationVisible always returns true.
func (AlwaysVisible) IsApplicationVisible() bool { return true }

// VisibilityFunc adapts a function to VisibilityProvider.
type VisibilityFunc func() bool

// IsApplicationVisible calls f.
func (f VisibilityFunc) IsApplicationVisible() bool { return f() }

// =============================================================================
// CalculatorConfig: Configuration for Calculator
// =============================================================================

const (
	// DefaultMeasurementInterval is the reporting cadence.
	DefaultMeasurementInterval = 30 * time.Second

	// DefaultJankThreshold is the latency at or above which a task is janky.
	// It is also the width of a slice.
	DefaultJankThreshold = 100 * time.Millisecond

	// DefaultSuspendInterval is the longest UI-thread silence that is not
	// treated as a suspended process.
	DefaultSuspendInterval = 30 * time.Second

	// DefaultHistorySize is how many emitted samples RecentSamples keeps.
	DefaultHistorySize = 64
)

// ErrInvalidConfig is wrapped by every CalculatorConfig validation error.
var ErrInvalidConfig = errors.New("invalid calculator config")

// CalculatorConfig holds configuration options for Calculator.
// Zero-valued fields are replaced with defaults by NewCalculator.
type CalculatorConfig struct {
	MeasurementInterval time.Duration
	JankThreshold       time.Duration
	SuspendInterval     time.Duration

	// HistorySize bounds the ring buffer behind RecentSamples.
	HistorySize int

	// Now is the clock used once, at construction, to seed the first window.
	// After that the calculator only uses timestamps handed to it.
	Now func() time.Time

	Sink       Sink
	Tracer     Tracer
	Visibility VisibilityProvider
	Logger     Logger
}

// DefaultCalculatorConfig returns a config with default constants and handlers.
func DefaultCalculatorConfig() *CalculatorConfig {
	return &CalculatorConfig{
		MeasurementInterval: DefaultMeasurementInterval,
		JankThreshold:       DefaultJankThreshold,
		SuspendInterval:     DefaultSuspendInterval,
		HistorySize:         DefaultHistorySize,
		Now:                 time.Now,
		Sink:                NilSink{},
		Tracer:              NilTracer{},
		Visibility:          AlwaysVisible{},
		Logger:              NewDefaultLogger("responsiveness"),
	}
}

// withDefaults returns a copy with every unset field filled in.
func (c *CalculatorConfig) withDefaults() CalculatorConfig {
	def := DefaultCalculatorConfig()
	if c == nil {
		return *def
	}
	out := *c
	if out.MeasurementInterval == 0 {
		out.MeasurementInterval = def.MeasurementInterval
	}
	if out.JankThreshold == 0 {
		out.JankThreshold = def.JankThreshold
	}
	if out.SuspendInterval == 0 {
		out.SuspendInterval = def.SuspendInterval
	}
	if out.HistorySize == 0 {
		out.HistorySize = def.HistorySize
	}
	if out.Now == nil {
		out.Now = def.Now
	}
	if out.Sink == nil {
		out.Sink = def.Sink
	}
	if out.Tracer == nil {
		out.Tracer = def.Tracer
	}
	if out.Visibility == nil {
		out.Visibility = def.Visibility
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	return out
}

// Validate checks that the constants keep their relative relationships.
func (c *CalculatorConfig) Validate() error {
	if c.JankThreshold <= 0 {
		return fmt.Errorf("%w: jank threshold must be positive, got %v", ErrInvalidConfig, c.JankThreshold)
	}
	if c.MeasurementInterval < c.JankThreshold {
		return fmt.Errorf("%w: measurement interval %v is shorter than jank threshold %v",
			ErrInvalidConfig, c.MeasurementInterval, c.JankThreshold)
	}
	if c.MeasurementInterval%c.JankThreshold != 0 {
		return fmt.Errorf("%w: measurement interval %v is not a multiple of jank threshold %v",
			ErrInvalidConfig, c.MeasurementInterval, c.JankThreshold)
	}
	if c.SuspendInterval <= 0 {
		return fmt.Errorf("%w: suspend interval must be positive, got %v", ErrInvalidConfig, c.SuspendInterval)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("%w: history size must not be negative, got %d", ErrInvalidConfig, c.HistorySize)
	}
	return nil
}

// MaxJankySlices is the number of slices in one measurement window.
func (c *CalculatorConfig) MaxJankySlices() int {
	return int(c.MeasurementInterval / c.JankThreshold)
}
