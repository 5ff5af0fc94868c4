package engine

import (
	"context"
	"errors"
)

// ErrProbeUnsupported is returned by Handle.LiveState when the engine cannot
// report an independent live state. Callers fall back to handle presence.
var ErrProbeUnsupported = errors.New("engine: live-state probe not supported")

// EventType tags a lifecycle event emitted by an engine connection.
type EventType int

// Lifecycle events, in the order a healthy session usually sees them.
const (
	// EventPairingCodeIssued carries a code a human must scan to pair.
	EventPairingCodeIssued EventType = iota + 1

	// EventAuthenticated reports that pairing (or a restored login) succeeded.
	EventAuthenticated

	// EventReady reports that the connection can send messages.
	EventReady

	// EventPairingFailed reports that the network rejected authentication.
	EventPairingFailed

	// EventDisconnected reports that the connection was lost or logged out.
	EventDisconnected

	// EventFailed reports an asynchronous engine failure after Create returned.
	EventFailed
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventPairingCodeIssued:
		return "qr"
	case EventAuthenticated:
		return "authenticated"
	case EventReady:
		return "ready"
	case EventPairingFailed:
		return "auth_failure"
	case EventDisconnected:
		return "disconnected"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle notification from an engine connection.
type Event struct {
	Type EventType

	// Code is the pairing code (EventPairingCodeIssued only).
	Code string

	// User is the display name of the paired account (EventReady only).
	User string

	// Message is the failure message or disconnect reason.
	Message string
}

// LiveState is the engine's own view of a connection, independent of the
// events it has emitted so far.
type LiveState string

// Live states reported by engines. Engines may report other values; only
// LiveConnected counts as connected.
const (
	LiveConnected LiveState = "CONNECTED"
	LiveOpening   LiveState = "OPENING"
	LivePairing   LiveState = "PAIRING"
	LiveUnpaired  LiveState = "UNPAIRED"
	LiveConflict  LiveState = "CONFLICT"
	LiveTimeout   LiveState = "TIMEOUT"
)

// Connected reports whether the state confirms a usable connection.
func (s LiveState) Connected() bool {
	return s == LiveConnected
}

// Media is a fetched media resource ready to be handed to an engine.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// CreateRequest describes the connection an Engine should create.
type CreateRequest struct {
	// TenantID identifies the tenant that owns the connection.
	TenantID string

	// CredentialPath is the tenant's persisted credential directory. It may
	// not exist yet; the engine creates it once pairing succeeds.
	CredentialPath string

	// Events receives every lifecycle event of the connection.
	Events func(Event)
}

// Engine creates tenant connections.
//
// Create must return promptly: slow work (launching a browser, waiting for
// the network) happens in the background and is reported through events.
// The ctx bounds creation only; the connection's lifetime is owned by the
// engine and ends with Handle.Destroy.
type Engine interface {
	Create(ctx context.Context, req CreateRequest) (Handle, error)
}

// Handle is a live engine connection for one tenant.
type Handle interface {
	// Destroy tears the connection down. It is called at most once per
	// handle and must honour ctx.
	Destroy(ctx context.Context) error

	// SendMedia delivers one media message to a chat address.
	SendMedia(ctx context.Context, address string, media Media, caption string) error

	// LiveState probes the connection state. Engines without a probe return
	// ErrProbeUnsupported.
	LiveState(ctx context.Context) (LiveState, error)
}
