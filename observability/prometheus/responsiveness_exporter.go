package prometheus

import (
	"errors"
	"fmt"

	"github.com/Swind/go-responsiveness/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// ExecutionBuckets defaults to 50 exponential buckets in [1, 1000].
	ExecutionBuckets []float64

	// QueueAndExecutionBuckets defaults to 50 exponential buckets in
	// [1, MaxJankySlices].
	QueueAndExecutionBuckets []float64

	// MaxJankySlices is the number of slices in one measurement window.
	// Defaults to 300.
	MaxJankySlices int
}

// ResponsivenessExporter records window samples as Prometheus histograms.
//
// Execution samples go to janky_intervals_per_thirty_seconds and, when the
// window saw no suspension, to janky_intervals_per_thirty_seconds_no_suspend.
// Queue-and-execution samples go to janky_intervals_per_thirty_seconds2.
type ResponsivenessExporter struct {
	jankyIntervals          prom.Histogram
	jankyIntervalsNoSuspend prom.Histogram
	jankyIntervals2         prom.Histogram
	windowsTotal            *prom.CounterVec
}

var _ core.Sink = (*ResponsivenessExporter)(nil)

// NewResponsivenessExporter creates and registers the responsiveness collectors.
func NewResponsivenessExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*ResponsivenessExporter, error) {
	if namespace == "" {
		namespace = "browser_responsiveness"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	maxSlices := opts.MaxJankySlices
	if maxSlices <= 0 {
		maxSlices = int(core.DefaultMeasurementInterval / core.DefaultJankThreshold)
	}
	executionBuckets := opts.ExecutionBuckets
	if len(executionBuckets) == 0 {
		executionBuckets = prom.ExponentialBucketsRange(1, 1000, 50)
	}
	queueBuckets := opts.QueueAndExecutionBuckets
	if len(queueBuckets) == 0 {
		queueBuckets = prom.ExponentialBucketsRange(1, float64(maxSlices), 50)
	}

	jankyIntervals := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "janky_intervals_per_thirty_seconds",
		Help:      "Janky slices per measurement window, execution time only.",
		Buckets:   executionBuckets,
	})
	noSuspend := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "janky_intervals_per_thirty_seconds_no_suspend",
		Help:      "Janky slices per measurement window without a suspension, execution time only.",
		Buckets:   executionBuckets,
	})
	jankyIntervals2 := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "janky_intervals_per_thirty_seconds2",
		Help:      "Janky slices per measurement window, queueing plus execution time.",
		Buckets:   queueBuckets,
	})
	windowsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "windows_total",
		Help:      "Total number of emitted measurement windows.",
	}, []string{"jank_type", "suspended"})

	var err error
	if jankyIntervals, err = registerCollector(reg, jankyIntervals); err != nil {
		return nil, err
	}
	if noSuspend, err = registerCollector(reg, noSuspend); err != nil {
		return nil, err
	}
	if jankyIntervals2, err = registerCollector(reg, jankyIntervals2); err != nil {
		return nil, err
	}
	if windowsVec, err = registerCollector(reg, windowsVec); err != nil {
		return nil, err
	}

	return &ResponsivenessExporter{
		jankyIntervals:          jankyIntervals,
		jankyIntervalsNoSuspend: noSuspend,
		jankyIntervals2:         jankyIntervals2,
		windowsTotal:            windowsVec,
	}, nil
}

// EmitResponsiveness records one window sample.
func (e *ResponsivenessExporter) EmitResponsiveness(jankType core.JankType, jankySlices int, wasProcessSuspended bool) {
	if e == nil {
		return
	}

	switch jankType {
	case core.JankTypeExecution:
		e.jankyIntervals.Observe(float64(jankySlices))
		if !wasProcessSuspended {
			e.jankyIntervalsNoSuspend.Observe(float64(jankySlices))
		}
	case core.JankTypeQueueAndExecution:
		e.jankyIntervals2.Observe(float64(jankySlices))
	default:
		return
	}
	e.windowsTotal.WithLabelValues(jankType.String(), boolLabel(wasProcessSuspended)).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
