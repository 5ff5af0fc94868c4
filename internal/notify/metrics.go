package notify

import (
	"context"
	"time"

	"github.com/nerrad567/foxbridge/internal/dispatch"
	"github.com/nerrad567/foxbridge/internal/session"
)

// MetricsWriter is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteTransition(tenantID, from, to, reason string, at time.Time)
	WriteDelivery(tenantID string, ok bool, bytes int, duration time.Duration, at time.Time)
}

// Metrics writes time-series points for changes and deliveries.
type Metrics struct {
	writer MetricsWriter
}

// NewMetrics returns a metrics sink.
func NewMetrics(w MetricsWriter) *Metrics {
	return &Metrics{writer: w}
}

// SessionChanged implements session.Observer.
func (m *Metrics) SessionChanged(_ context.Context, change session.Change) {
	m.writer.WriteTransition(change.TenantID, string(change.From), string(change.To), change.Reason, change.At)
}

// DeliveryAttempted implements dispatch.DeliveryObserver.
func (m *Metrics) DeliveryAttempted(_ context.Context, d dispatch.Delivery) {
	m.writer.WriteDelivery(d.TenantID, d.Err == nil, d.Bytes, d.Duration, d.At)
}
