package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/foxbridge/internal/dispatch"
	"github.com/nerrad567/foxbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/foxbridge/internal/session"
)

// Publisher is the subset of the MQTT client the publisher sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Topics() mqtt.Topics
	QoS() byte
}

// StatusMessage is the retained payload on a tenant's status topic.
type StatusMessage struct {
	TenantID    string            `json:"tenantId"`
	State       session.State     `json:"state"`
	Status      session.StatusTag `json:"status"`
	Online      bool              `json:"online"`
	PairingCode string            `json:"qr,omitempty"`
	User        string            `json:"user,omitempty"`
	Error       string            `json:"error,omitempty"`
	Reason      string            `json:"reason"`
	Timestamp   time.Time         `json:"timestamp"`
}

// DeliveryMessage is published on a tenant's delivery topic.
type DeliveryMessage struct {
	TenantID   string    `json:"tenantId"`
	Address    string    `json:"address"`
	MediaURL   string    `json:"mediaUrl"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Bytes      int       `json:"bytes,omitempty"`
	DurationMS int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// MQTTPublisher publishes status and delivery messages.
type MQTTPublisher struct {
	client Publisher
	logger Logger
}

// NewMQTTPublisher returns an MQTT sink.
func NewMQTTPublisher(client Publisher, logger Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, logger: orNoop(logger)}
}

// SessionChanged implements session.Observer.
func (p *MQTTPublisher) SessionChanged(_ context.Context, change session.Change) {
	st := statusOf(change)
	msg := StatusMessage{
		TenantID:    change.TenantID,
		State:       change.To,
		Status:      st.Tag,
		Online:      st.Online,
		PairingCode: st.PairingCode,
		User:        st.User,
		Error:       st.Error,
		Reason:      change.Reason,
		Timestamp:   change.At.UTC(),
	}
	p.publish(p.client.Topics().TenantStatus(change.TenantID), msg, true)
}

// DeliveryAttempted implements dispatch.DeliveryObserver.
func (p *MQTTPublisher) DeliveryAttempted(_ context.Context, d dispatch.Delivery) {
	msg := DeliveryMessage{
		TenantID:   d.TenantID,
		Address:    d.Address,
		MediaURL:   d.MediaURL,
		OK:         d.Err == nil,
		Bytes:      d.Bytes,
		DurationMS: d.Duration.Milliseconds(),
		Timestamp:  d.At.UTC(),
	}
	if d.Err != nil {
		msg.Error = d.Err.Error()
	}
	p.publish(p.client.Topics().TenantDelivery(d.TenantID), msg, false)
}

func (p *MQTTPublisher) publish(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("encoding mqtt message failed", "topic", topic, "error", err)
		return
	}
	if err := p.client.Publish(topic, payload, p.client.QoS(), retained); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}
