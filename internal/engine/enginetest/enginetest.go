// Package enginetest provides a synthetic engine for exercising the session
// lifecycle without a real chat network.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/foxbridge/internal/engine"
)

// Sent records one SendMedia call.
type Sent struct {
	Address string
	Media   engine.Media
	Caption string
}

// Engine is an in-memory engine.Engine. The zero value is not usable; call New.
type Engine struct {
	mu        sync.Mutex
	handles   map[string][]*Handle
	createErr error
	onCreate  func(*Handle)
}

// New returns an empty synthetic engine.
func New() *Engine {
	return &Engine{handles: make(map[string][]*Handle)}
}

// FailNextCreate makes the next Create call return err.
func (e *Engine) FailNextCreate(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createErr = err
}

// OnCreate registers fn to run for every handle Create returns. It runs
// synchronously inside Create, so it may emit events immediately.
func (e *Engine) OnCreate(fn func(*Handle)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCreate = fn
}

// Create implements engine.Engine.
func (e *Engine) Create(_ context.Context, req engine.CreateRequest) (engine.Handle, error) {
	e.mu.Lock()
	if err := e.createErr; err != nil {
		e.createErr = nil
		e.mu.Unlock()
		return nil, err
	}
	h := &Handle{
		TenantID:       req.TenantID,
		CredentialPath: req.CredentialPath,
		events:         req.Events,
		destroyed:      make(chan struct{}),
	}
	e.handles[req.TenantID] = append(e.handles[req.TenantID], h)
	hook := e.onCreate
	e.mu.Unlock()

	if hook != nil {
		hook(h)
	}
	return h, nil
}

// Creates returns how many handles were created for a tenant.
func (e *Engine) Creates(tenantID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles[tenantID])
}

// Handles returns every handle created for a tenant, oldest first.
func (e *Engine) Handles(tenantID string) []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Handle, len(e.handles[tenantID]))
	copy(out, e.handles[tenantID])
	return out
}

// Last returns the most recent handle for a tenant, or nil.
func (e *Engine) Last(tenantID string) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.handles[tenantID]
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}

// Live returns the handles for a tenant that have not been destroyed.
func (e *Engine) Live(tenantID string) []*Handle {
	var live []*Handle
	for _, h := range e.Handles(tenantID) {
		if !h.Destroyed() {
			live = append(live, h)
		}
	}
	return live
}

// Handle is a synthetic engine.Handle. Tests drive it with the Emit helpers.
type Handle struct {
	TenantID       string
	CredentialPath string

	events func(engine.Event)

	mu          sync.Mutex
	destroyed   chan struct{}
	destroyOnce sync.Once
	destroyErr  error
	destroyWait time.Duration
	sendErr     error
	sent        []Sent
	live        engine.LiveState
	liveErr     error
	probeSet    bool
}

// Emit delivers an arbitrary event to the consumer.
func (h *Handle) Emit(ev engine.Event) {
	h.events(ev)
}

// EmitPairingCode emits a pairing-code event.
func (h *Handle) EmitPairingCode(code string) {
	h.Emit(engine.Event{Type: engine.EventPairingCodeIssued, Code: code})
}

// EmitAuthenticated emits an authenticated event.
func (h *Handle) EmitAuthenticated() {
	h.Emit(engine.Event{Type: engine.EventAuthenticated})
}

// EmitReady emits a ready event for the given account name.
func (h *Handle) EmitReady(user string) {
	h.Emit(engine.Event{Type: engine.EventReady, User: user})
}

// EmitPairingFailed emits an auth-failure event.
func (h *Handle) EmitPairingFailed(msg string) {
	h.Emit(engine.Event{Type: engine.EventPairingFailed, Message: msg})
}

// EmitDisconnected emits a disconnect event.
func (h *Handle) EmitDisconnected(reason string) {
	h.Emit(engine.Event{Type: engine.EventDisconnected, Message: reason})
}

// EmitFailed emits an asynchronous failure event.
func (h *Handle) EmitFailed(msg string) {
	h.Emit(engine.Event{Type: engine.EventFailed, Message: msg})
}

// FailDestroy makes Destroy return err.
func (h *Handle) FailDestroy(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyErr = err
}

// SlowDestroy makes Destroy block for d (or until its context ends).
func (h *Handle) SlowDestroy(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyWait = d
}

// FailSend makes SendMedia return err.
func (h *Handle) FailSend(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErr = err
}

// SetLiveState makes LiveState return the given values. Until it is called
// LiveState returns engine.ErrProbeUnsupported.
func (h *Handle) SetLiveState(state engine.LiveState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live, h.liveErr, h.probeSet = state, err, true
}

// Destroyed reports whether Destroy has been called.
func (h *Handle) Destroyed() bool {
	select {
	case <-h.destroyed:
		return true
	default:
		return false
	}
}

// WaitDestroyed blocks until Destroy is called or the timeout elapses.
func (h *Handle) WaitDestroyed(timeout time.Duration) bool {
	select {
	case <-h.destroyed:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Sent returns the media sent through this handle.
func (h *Handle) Sent() []Sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sent, len(h.sent))
	copy(out, h.sent)
	return out
}

// Destroy implements engine.Handle.
func (h *Handle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	wait, err := h.destroyWait, h.destroyErr
	h.mu.Unlock()

	h.destroyOnce.Do(func() { close(h.destroyed) })

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SendMedia implements engine.Handle.
func (h *Handle) SendMedia(ctx context.Context, address string, media engine.Media, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Destroyed() {
		return errors.New("enginetest: handle destroyed")
	}
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, Sent{Address: address, Media: media, Caption: caption})
	return nil
}

// LiveState implements engine.Handle.
func (h *Handle) LiveState(ctx context.Context) (engine.LiveState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.probeSet {
		return "", engine.ErrProbeUnsupported
	}
	return h.live, h.liveErr
}
