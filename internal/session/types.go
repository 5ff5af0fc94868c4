package session

import (
	"context"
	"time"

	"github.com/nerrad567/foxbridge/internal/engine"
)

// State is the lifecycle state of a session.
type State string

// Session states.
const (
	StateUninitialized   State = "uninitialized"
	StateCreating        State = "creating"
	StatePairingRequired State = "pairing_required"
	StateAuthenticated   State = "authenticated"
	StateReady           State = "ready"
	StateDisconnected    State = "disconnected"
	StateError           State = "error"
)

// Active reports whether a session in this state counts as existing. A
// disconnected record is kept only so its last error can be inspected.
func (s State) Active() bool {
	switch s {
	case StateCreating, StatePairingRequired, StateAuthenticated, StateReady, StateError:
		return true
	default:
		return false
	}
}

// Session is a snapshot of one tenant's session record.
type Session struct {
	TenantID string
	State    State

	// PairingCode is non-empty only in StatePairingRequired.
	PairingCode string

	// LastError is the most recent failure message, cleared on a successful
	// Initialize or on reaching StateReady.
	LastError string

	// User is the display name of the paired account once ready.
	User string

	// Generation identifies the engine connection; it changes on every
	// Initialize so late events from a replaced connection can be ignored.
	Generation string

	// Handle is the live engine connection. It is nil in StateError and
	// StateDisconnected.
	Handle engine.Handle

	CreatedAt time.Time
	UpdatedAt time.Time

	events *mailbox
}

// StatusTag is the outward classification of a session.
type StatusTag string

// Status tags.
const (
	StatusConnected    StatusTag = "connected"
	StatusNeedsScan    StatusTag = "needs_scan"
	StatusError        StatusTag = "error"
	StatusInitializing StatusTag = "initializing"
	StatusDisconnected StatusTag = "disconnected"
)

// Status is the derived, outward view of a tenant's session.
type Status struct {
	Tag         StatusTag `json:"status"`
	Online      bool      `json:"online"`
	PairingCode string    `json:"pairingCode,omitempty"`
	User        string    `json:"user,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Change describes one state transition of a tenant's session.
type Change struct {
	TenantID string
	From     State
	To       State

	// Reason names what caused the transition: "initialize", "reset",
	// "pairing_timeout", or the engine event name.
	Reason string

	// Detail carries the event message or error text, if any.
	Detail string

	// Session is the record after the transition. For a reset it is the
	// zero value with only TenantID set.
	Session Session
	At      time.Time
}

// Observer receives session changes in the order they were applied for each
// tenant. Implementations must not block for long; they run on the goroutine
// that caused the change, with the tenant's lock held, so they must not call
// Initialize or Reset.
type Observer interface {
	SessionChanged(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, change Change)

// SessionChanged calls f.
func (f ObserverFunc) SessionChanged(ctx context.Context, change Change) {
	f(ctx, change)
}

// Logger is the logging interface used by the session package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
