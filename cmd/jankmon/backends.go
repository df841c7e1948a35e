package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/Swind/go-responsiveness/config"
	"github.com/Swind/go-responsiveness/core"
	"github.com/Swind/go-responsiveness/observability/chrometrace"
	"github.com/Swind/go-responsiveness/observability/kafka"
	"github.com/Swind/go-responsiveness/observability/prometheus"
	"github.com/Swind/go-responsiveness/observability/sentrytrace"
	"github.com/Swind/go-responsiveness/observability/wsstream"
)

// backends holds every sink and tracer enabled by the configuration.
type backends struct {
	sinks   core.MultiSink
	tracers core.MultiTracer

	registry *prom.Registry
	exporter *prometheus.ResponsivenessExporter
	trace    *chrometrace.Writer
	kafka    *kafka.Sink
	stream   *wsstream.Client

	tracePath string
}

func newBackends(cfg config.Config, sentryEnabled bool, epoch time.Time) (*backends, error) {
	b := &backends{registry: prom.NewRegistry()}

	exporter, err := prometheus.NewResponsivenessExporter(cfg.Metrics.Namespace, b.registry, prometheus.ExporterOptions{
		MaxJankySlices: cfg.CalculatorConfig().MaxJankySlices(),
	})
	if err != nil {
		return nil, err
	}
	b.exporter = exporter
	b.sinks = append(b.sinks, exporter)

	if cfg.KafkaEnabled() {
		b.kafka = kafka.NewSink(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), kafka.SinkOptions{
			Logger: core.NewDefaultLogger("kafka_sink"),
		})
		b.sinks = append(b.sinks, b.kafka)
	}

	if cfg.StreamEnabled() {
		b.stream = wsstream.NewClient(cfg.Stream.URL, wsstream.ClientOptions{
			AgentID: cfg.Stream.AgentID,
			Logger:  core.NewDefaultLogger("wsstream"),
		})
		if err := b.stream.Connect(); err != nil {
			b.close()
			return nil, fmt.Errorf("connect to %s: %w", cfg.Stream.URL, err)
		}
		b.sinks = append(b.sinks, b.stream)
	}

	if cfg.Trace.Path != "" {
		b.trace = chrometrace.NewWriter(chrometrace.Options{
			Epoch:     epoch,
			MaxEvents: cfg.Trace.MaxEvents,
			Metadata:  map[string]string{"environment": cfg.Environment, "release": release},
		})
		b.tracePath = cfg.Trace.Path
		b.tracers = append(b.tracers, b.trace)
	}

	if sentryEnabled {
		b.tracers = append(b.tracers, sentrytrace.NewTracer(nil, cfg.Sentry.MinJankDuration))
	}
	return b, nil
}

// calculatorConfig returns the calculator settings wired to every backend
// plus extra sinks.
func (b *backends) calculatorConfig(cfg config.Config, extra ...core.Sink) *core.CalculatorConfig {
	calc := cfg.CalculatorConfig()
	sinks := append(core.MultiSink{}, b.sinks...)
	calc.Sink = append(sinks, extra...)
	calc.Tracer = b.tracers
	calc.Logger = core.NewDefaultLogger("responsiveness")
	return calc
}

func (b *backends) close() {
	if b.trace != nil {
		if err := b.trace.WriteFile(b.tracePath); err != nil {
			log.Err(err).Str("path", b.tracePath).Msg("cannot write trace")
		} else {
			log.Info().Str("path", b.tracePath).Int("events", b.trace.Len()).Msg("trace written")
		}
	}
	if b.kafka != nil {
		if err := b.kafka.Close(); err != nil {
			log.Err(err).Msg("cannot close kafka writer")
		}
	}
	if b.stream != nil {
		if !b.stream.Drain(time.Second) {
			n := b.stream.Pending()
			log.Warn().Int("samples", n).Msg("unsent samples dropped")
		}
		b.stream.Disconnect()
	}
}

// sampleWriter prints each sample as a JSON line.
type sampleWriter struct {
	mu      sync.Mutex
	out     io.Writer
	windows map[core.JankType]int
}

type printedSample struct {
	Window              int    `json:"window"`
	JankType            string `json:"jank_type"`
	JankySlices         int    `json:"janky_slices"`
	WasProcessSuspended bool   `json:"was_process_suspended"`
}

func newSampleWriter(out io.Writer) *sampleWriter {
	return &sampleWriter{out: out, windows: make(map[core.JankType]int)}
}

func (w *sampleWriter) EmitResponsiveness(jankType core.JankType, jankySlices int, wasProcessSuspended bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := json.Marshal(printedSample{
		Window:              w.windows[jankType],
		JankType:            jankType.String(),
		JankySlices:         jankySlices,
		WasProcessSuspended: wasProcessSuspended,
	})
	w.windows[jankType]++
	if err != nil {
		log.Err(err).Msg("cannot encode sample")
		return
	}
	b = append(b, '\n')
	if _, err := w.out.Write(b); err != nil {
		log.Err(err).Msg("cannot print sample")
	}
}
