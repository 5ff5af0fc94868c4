package notify

import (
	"context"

	"github.com/nerrad567/foxbridge/internal/dispatch"
	"github.com/nerrad567/foxbridge/internal/eventlog"
	"github.com/nerrad567/foxbridge/internal/session"
)

// EventLog persists changes and deliveries to the event log.
type EventLog struct {
	repo   eventlog.Repository
	logger Logger
}

// NewEventLog returns an EventLog sink over repo.
func NewEventLog(repo eventlog.Repository, logger Logger) *EventLog {
	return &EventLog{repo: repo, logger: orNoop(logger)}
}

// SessionChanged implements session.Observer.
func (e *EventLog) SessionChanged(ctx context.Context, change session.Change) {
	detail := map[string]any{}
	if change.Detail != "" {
		detail["message"] = change.Detail
	}
	if change.Session.User != "" {
		detail["user"] = change.Session.User
	}
	if change.Session.Generation != "" {
		detail["generation"] = change.Session.Generation
	}

	e.record(ctx, &eventlog.Event{
		TenantID:  change.TenantID,
		Kind:      eventlog.KindTransition,
		Reason:    change.Reason,
		FromState: string(change.From),
		ToState:   string(change.To),
		Detail:    detail,
		CreatedAt: change.At,
	})
}

// DeliveryAttempted implements dispatch.DeliveryObserver.
func (e *EventLog) DeliveryAttempted(ctx context.Context, d dispatch.Delivery) {
	reason := "sent"
	detail := map[string]any{
		"address":    d.Address,
		"mediaUrl":   d.MediaURL,
		"durationMs": d.Duration.Milliseconds(),
	}
	if d.MimeType != "" {
		detail["mimeType"] = d.MimeType
		detail["bytes"] = d.Bytes
	}
	if d.Err != nil {
		reason = "failed"
		detail["error"] = d.Err.Error()
	}

	e.record(ctx, &eventlog.Event{
		TenantID:  d.TenantID,
		Kind:      eventlog.KindDelivery,
		Reason:    reason,
		Detail:    detail,
		CreatedAt: d.At,
	})
}

func (e *EventLog) record(ctx context.Context, ev *eventlog.Event) {
	ctx, cancel := sinkContext(ctx)
	defer cancel()

	if err := e.repo.Record(ctx, ev); err != nil {
		e.logger.Error("recording session event failed",
			"tenant_id", ev.TenantID,
			"kind", ev.Kind,
			"error", err,
		)
	}
}
