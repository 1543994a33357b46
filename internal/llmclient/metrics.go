package llmclient

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/haasonsaas/agentcore/internal/llmclient"

// managerMetrics counts client-connect failures by reason, so an
// operator can tell a transient resume-retry miss apart from a hard
// connection failure without scraping logs.
type managerMetrics struct {
	connectFailures metric.Int64Counter
}

func newManagerMetrics() managerMetrics {
	meter := otel.Meter(meterName)
	connectFailures, _ := meter.Int64Counter(
		"agentcore.llmclient.connect_failures_total",
		metric.WithDescription("client connect attempts that failed, labeled by reason"),
	)
	return managerMetrics{connectFailures: connectFailures}
}

func (m managerMetrics) recordConnectFailure(ctx context.Context, reason string) {
	if m.connectFailures == nil {
		return
	}
	m.connectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
