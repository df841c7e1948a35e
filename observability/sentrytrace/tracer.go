// Package sentrytrace reports janks as Sentry performance transactions.
package sentrytrace

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Swind/go-responsiveness/core"
)

// Tracer sends one transaction per jank, spanning queue time to finish.
type Tracer struct {
	hub         *sentry.Hub
	minDuration time.Duration
}

var _ core.Tracer = (*Tracer)(nil)

// NewTracer reports through hub, or the current hub when nil. Janks shorter
// than minDuration are not reported.
func NewTracer(hub *sentry.Hub, minDuration time.Duration) *Tracer {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Tracer{hub: hub, minDuration: minDuration}
}

// TraceJank starts and immediately finishes a span with the jank's bounds.
func (t *Tracer) TraceJank(source core.Source, id uint64, start, end time.Time) {
	if end.Sub(start) < t.minDuration {
		return
	}

	// Each jank gets its own scope so concurrent UI and IO janks do not
	// overwrite each other's transaction name.
	ctx := sentry.SetHubOnContext(context.Background(), t.hub.Clone())
	span := sentry.StartSpan(ctx, core.TraceCategory, sentry.TransactionName(source.TraceName()))
	span.Description = source.TraceName()
	span.StartTime = start
	span.EndTime = end
	span.SetTag("source", source.String())
	span.SetTag("jank_id", strconv.FormatUint(id, 10))
	span.Finish()
}
