// Package kafka publishes responsiveness samples to a Kafka topic.
package kafka

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/Swind/go-responsiveness/core"
)

type (
	// MessageWriter is the subset of *kafka.Writer used by Sink.
	MessageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// Sample is the JSON payload of one message.
	Sample struct {
		Calculator          string `json:"calculator"`
		JankType            string `json:"jank_type"`
		JankySlices         int    `json:"janky_slices"`
		WasProcessSuspended bool   `json:"was_process_suspended"`
		Timestamp           int64  `json:"timestamp"`
	}

	// SinkOptions configures a Sink.
	SinkOptions struct {
		// Calculator names the producing calculator; it is used as the
		// message key so one calculator's samples stay ordered.
		Calculator   string
		WriteTimeout time.Duration
		Logger       core.Logger
		Now          func() time.Time
	}

	// Sink implements core.Sink on top of a MessageWriter.
	Sink struct {
		writer       MessageWriter
		calculator   string
		writeTimeout time.Duration
		logger       core.Logger
		now          func() time.Time
	}
)

var _ core.Sink = (*Sink)(nil)

// NewWriter returns an asynchronous writer for topic, configured like the
// other producers in this repository.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Async:        true,
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    100,
		ReadTimeout:  3 * time.Second,
		Topic:        topic,
		WriteTimeout: 3 * time.Second,
	}
}

// NewSink wraps writer.
func NewSink(writer MessageWriter, opts SinkOptions) *Sink {
	if opts.Calculator == "" {
		opts.Calculator = "browser"
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger("kafka_sink")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sink{
		writer:       writer,
		calculator:   opts.Calculator,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// GenerateMessage encodes a sample as a keyed message.
func GenerateMessage(s Sample) (kafka.Message, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(s.Calculator),
		Value: b,
	}, nil
}

// EmitResponsiveness publishes one sample. Failures are logged, never
// returned to the calculator.
func (s *Sink) EmitResponsiveness(jankType core.JankType, jankySlices int, wasProcessSuspended bool) {
	msg, err := GenerateMessage(Sample{
		Calculator:          s.calculator,
		JankType:            jankType.String(),
		JankySlices:         jankySlices,
		WasProcessSuspended: wasProcessSuspended,
		Timestamp:           s.now().UnixMilli(),
	})
	if err != nil {
		s.logger.Error("cannot encode responsiveness sample", core.F("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("cannot publish responsiveness sample",
			core.F("error", err),
			core.F("jank_type", jankType.String()))
	}
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
