package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTransitions = "session_transitions"
	MeasurementDeliveries  = "deliveries"
)

// Delivery outcome tag values.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// TransitionPoint builds the point recorded for a session state change.
func TransitionPoint(tenantID, from, to, reason string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTransitions,
		map[string]string{
			"tenant_id":  tenantID,
			"from_state": from,
			"to_state":   to,
			"reason":     reason,
		},
		map[string]interface{}{
			"count": 1,
		},
		at,
	)
}

// DeliveryPoint builds the point recorded for a media delivery attempt.
func DeliveryPoint(tenantID string, ok bool, bytes int, duration time.Duration, at time.Time) *write.Point {
	outcome := OutcomeSent
	if !ok {
		outcome = OutcomeFailed
	}
	return write.NewPoint(
		MeasurementDeliveries,
		map[string]string{
			"tenant_id": tenantID,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"count":       1,
			"bytes":       bytes,
			"duration_ms": duration.Milliseconds(),
		},
		at,
	)
}

// WriteTransition records a session state change. Non-blocking.
func (c *Client) WriteTransition(tenantID, from, to, reason string, at time.Time) {
	c.writePoint(TransitionPoint(tenantID, from, to, reason, at))
}

// WriteDelivery records a media delivery attempt. Non-blocking.
func (c *Client) WriteDelivery(tenantID string, ok bool, bytes int, duration time.Duration, at time.Time) {
	c.writePoint(DeliveryPoint(tenantID, ok, bytes, duration, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
