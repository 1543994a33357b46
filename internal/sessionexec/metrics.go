package sessionexec

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}

// meterName identifies this package's instruments in whatever
// MeterProvider the process has configured; with no provider registered
// (the common case outside of an OTel-enabled deployment) otel.Meter
// returns a no-op meter and every instrument call below is a cheap noop.
const meterName = "github.com/haasonsaas/agentcore/internal/sessionexec"

// execMetrics holds the counters and histogram the processor reports to
// on queue growth and turn completion. Construction never fails: errors
// from the no-op meter are always nil, and a real provider's instrument
// errors are not worth failing executor startup over.
type execMetrics struct {
	queueDepth    metric.Int64UpDownCounter
	turnsTotal    metric.Int64Counter
	turnLatencyMS metric.Float64Histogram
}

func newExecMetrics() execMetrics {
	meter := otel.Meter(meterName)

	queueDepth, _ := meter.Int64UpDownCounter(
		"agentcore.sessionexec.queue_depth",
		metric.WithDescription("number of messages queued for processing, per session"),
	)
	turnsTotal, _ := meter.Int64Counter(
		"agentcore.sessionexec.turns_total",
		metric.WithDescription("completed turns, labeled by outcome"),
	)
	turnLatencyMS, _ := meter.Float64Histogram(
		"agentcore.sessionexec.turn_latency_ms",
		metric.WithDescription("wall-clock duration of a turn from dequeue to completion or failure"),
		metric.WithUnit("ms"),
	)

	return execMetrics{
		queueDepth:    queueDepth,
		turnsTotal:    turnsTotal,
		turnLatencyMS: turnLatencyMS,
	}
}

func (m execMetrics) recordQueued(ctx context.Context) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.Add(ctx, 1)
}

func (m execMetrics) recordDequeued(ctx context.Context) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.Add(ctx, -1)
}

func (m execMetrics) recordTurn(ctx context.Context, outcome string, elapsedMS float64) {
	if m.turnsTotal != nil {
		m.turnsTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
	}
	if m.turnLatencyMS != nil {
		m.turnLatencyMS.Record(ctx, elapsedMS, metric.WithAttributes(outcomeAttr(outcome)))
	}
}
