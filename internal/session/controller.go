package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/foxbridge/internal/credentials"
	"github.com/nerrad567/foxbridge/internal/engine"
)

// Default timeouts applied when Options leaves them zero.
const (
	DefaultTeardownTimeout = 10 * time.Second
	DefaultProbeTimeout    = 3 * time.Second
)

// CredentialStore resolves and removes tenant credential directories.
type CredentialStore interface {
	Path(tenantID string) string
	Remove(tenantID string) error
}

// Options configures a Controller.
type Options struct {
	// PairingTimeout bounds how long a session may wait for a pairing code
	// to be scanned before it is restarted.
	PairingTimeout time.Duration

	// TeardownTimeout bounds each engine Destroy call.
	TeardownTimeout time.Duration

	// ProbeTimeout bounds the live-state probe made by Status.
	ProbeTimeout time.Duration

	Logger Logger
}

// Controller owns every tenant session and performs all transitions.
//
// Thread Safety: All methods are safe for concurrent use. Calls for the same
// tenant are serialised; calls for different tenants run in parallel.
type Controller struct {
	engine   engine.Engine
	creds    CredentialStore
	registry *Registry
	watchdog *Watchdog
	opts     Options
	logger   Logger

	obsMu     sync.RWMutex
	observers []Observer

	// ctx outlives individual requests; watchdog restarts create under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewController creates a controller that creates connections with eng and
// resolves credential directories through creds.
func NewController(eng engine.Engine, creds CredentialStore, opts Options) *Controller {
	if opts.PairingTimeout <= 0 {
		opts.PairingTimeout = DefaultPairingTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		engine:   eng,
		creds:    creds,
		registry: NewRegistry(),
		watchdog: NewWatchdog(),
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddObserver registers o to receive every subsequent change.
func (c *Controller) AddObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// Initialize creates a fresh session for a tenant, replacing any existing
// one. The previous connection is destroyed in the background.
//
// A creation failure is recorded on the session (StateError) and returned
// wrapped in ErrCreationFailed.
func (c *Controller) Initialize(ctx context.Context, tenantID string) error {
	if err := validateTenantID(tenantID); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}

	unlock := c.registry.Lock(tenantID)
	defer unlock()

	change, err := c.start(ctx, tenantID, "initialize")
	c.notify(change)
	return err
}

// Reset destroys a tenant's session, waits up to TeardownTimeout for the
// teardown, then erases its credential directory so the next Initialize
// requires pairing. Cancelling ctx does not shorten the wait. Reset does not
// start a new session.
func (c *Controller) Reset(ctx context.Context, tenantID string) error {
	if err := validateTenantID(tenantID); err != nil {
		return err
	}

	unlock := c.registry.Lock(tenantID)
	defer unlock()

	cur, existed := c.registry.Get(tenantID)
	c.watchdog.Disarm(tenantID)
	if existed {
		cur.events.close()
		if cur.Handle != nil {
			done := c.teardown(tenantID, cur.Handle, "reset")
			waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.TeardownTimeout)
			select {
			case <-done:
			case <-waitCtx.Done():
				c.logger.Warn("reset teardown still running, removing credentials", "tenant_id", tenantID)
			}
			cancel()
		}
		c.registry.Delete(tenantID)
	}
	err := c.creds.Remove(tenantID)

	c.logger.Info("session reset", "tenant_id", tenantID, "had_session", existed)
	if existed {
		c.notify(&Change{
			TenantID: tenantID,
			From:     cur.State,
			To:       StateUninitialized,
			Reason:   "reset",
			Session:  Session{TenantID: tenantID, State: StateUninitialized},
			At:       time.Now(),
		})
	}
	if err != nil {
		return fmt.Errorf("resetting %s: %w", tenantID, err)
	}
	return nil
}

// Status derives the outward status of a tenant. For a ready session the
// engine's live state is probed, bounded by ProbeTimeout.
func (c *Controller) Status(ctx context.Context, tenantID string) Status {
	s, ok := c.registry.Get(tenantID)
	var probe Probe
	if ok && s.State == StateReady && s.Handle != nil {
		probe = c.probe(ctx, tenantID, s.Handle)
	}
	return Project(s, ok, probe)
}

// Session returns a snapshot of a tenant's record.
func (c *Controller) Session(tenantID string) (Session, bool) {
	return c.registry.Get(tenantID)
}

// Sessions returns snapshots of every record, including disconnected ones.
func (c *Controller) Sessions() []Session {
	return c.registry.List()
}

// PairingArmed reports whether a pairing watchdog is pending for a tenant.
func (c *Controller) PairingArmed(tenantID string) bool {
	return c.watchdog.Armed(tenantID)
}

// Close stops all watchdogs, destroys every live connection, and waits for
// teardowns to finish or ctx to end. Subsequent Initialize calls fail with
// ErrClosed.
func (c *Controller) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.watchdog.Stop()

	for _, id := range c.registry.tenants() {
		unlock := c.registry.Lock(id)
		if cur, ok := c.registry.Get(id); ok {
			cur.events.close()
			if cur.Handle != nil {
				c.teardown(id, cur.Handle, "shutdown")
			}
			c.registry.Update(id, func(s *Session) {
				if s.Handle != nil {
					s.State = StateDisconnected
				}
				s.Handle = nil
				s.PairingCode = ""
				s.events = nil
				s.UpdatedAt = time.Now()
			})
		}
		unlock()
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start replaces the tenant's session with a new connection. The tenant lock
// must be held.
func (c *Controller) start(ctx context.Context, tenantID, reason string) (*Change, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	now := time.Now()
	prev, existed := c.registry.Get(tenantID)
	c.watchdog.Disarm(tenantID)

	from := StateUninitialized
	created := now
	if existed {
		from = prev.State
		prev.events.close()
		if prev.Handle != nil {
			c.teardown(tenantID, prev.Handle, "superseded")
		}
		if prev.State.Active() {
			created = prev.CreatedAt
		}
	}

	s := Session{
		TenantID:   tenantID,
		State:      StateCreating,
		Generation: uuid.NewString(),
		CreatedAt:  created,
		UpdatedAt:  now,
		events:     newMailbox(),
	}
	c.registry.Put(s)

	handle, err := c.engine.Create(ctx, engine.CreateRequest{
		TenantID:       tenantID,
		CredentialPath: c.creds.Path(tenantID),
		Events:         s.events.push,
	})
	if err != nil {
		s.events.close()
		msg := err.Error()
		after, _ := c.registry.Update(tenantID, func(rec *Session) {
			rec.State = StateError
			rec.LastError = msg
			rec.events = nil
			rec.UpdatedAt = time.Now()
		})
		c.logger.Error("session creation failed", "tenant_id", tenantID, "reason", reason, "error", err)
		return &Change{
			TenantID: tenantID,
			From:     from,
			To:       StateError,
			Reason:   reason,
			Detail:   msg,
			Session:  after,
			At:       after.UpdatedAt,
		}, fmt.Errorf("%w: %w", ErrCreationFailed, err)
	}

	after, _ := c.registry.Update(tenantID, func(rec *Session) {
		rec.Handle = handle
	})

	c.wg.Add(1)
	go c.pump(tenantID, s.Generation, s.events)

	c.logger.Info("session created", "tenant_id", tenantID, "reason", reason, "generation", s.Generation)
	return &Change{
		TenantID: tenantID,
		From:     from,
		To:       StateCreating,
		Reason:   reason,
		Session:  after,
		At:       now,
	}, nil
}

// pump applies a connection's events in order until its mailbox closes.
func (c *Controller) pump(tenantID, generation string, box *mailbox) {
	defer c.wg.Done()
	for {
		ev, ok := box.next()
		if !ok {
			return
		}
		unlock := c.registry.Lock(tenantID)
		c.notify(c.apply(tenantID, generation, ev))
		unlock()
	}
}

// apply performs the transition for one engine event. The tenant lock must
// be held. It returns nil when the event changes nothing.
func (c *Controller) apply(tenantID, generation string, ev engine.Event) *Change {
	cur, ok := c.registry.Get(tenantID)
	if !ok || cur.Generation != generation || cur.Handle == nil {
		c.logger.Debug("dropping stale engine event", "tenant_id", tenantID, "event", ev.Type.String())
		return nil
	}

	from := cur.State
	next := cur
	release := false
	detail := ev.Message

	switch ev.Type {
	case engine.EventPairingCodeIssued:
		if ev.Code == "" {
			return nil
		}
		next.State = StatePairingRequired
		next.PairingCode = ev.Code
		// Code refreshes keep the original deadline.
		if from != StatePairingRequired {
			c.watchdog.Arm(tenantID, c.opts.PairingTimeout, func() {
				c.pairingTimedOut(tenantID, generation)
			})
		}

	case engine.EventAuthenticated:
		if from != StateCreating && from != StatePairingRequired {
			return nil
		}
		c.watchdog.Disarm(tenantID)
		next.State = StateAuthenticated
		next.PairingCode = ""

	case engine.EventReady:
		if from == StateReady {
			return nil
		}
		c.watchdog.Disarm(tenantID)
		next.State = StateReady
		next.PairingCode = ""
		next.LastError = ""
		next.User = ev.User
		detail = ev.User

	case engine.EventPairingFailed:
		c.watchdog.Disarm(tenantID)
		next.State = StateError
		next.PairingCode = ""
		next.LastError = "Auth failure: " + ev.Message
		detail = next.LastError
		release = true

	case engine.EventFailed:
		c.watchdog.Disarm(tenantID)
		msg := ev.Message
		if msg == "" {
			msg = "engine failure"
		}
		next.State = StateError
		next.PairingCode = ""
		next.LastError = msg
		detail = msg
		release = true

	case engine.EventDisconnected:
		c.watchdog.Disarm(tenantID)
		next.State = StateDisconnected
		next.PairingCode = ""
		release = true

	default:
		c.logger.Warn("ignoring unknown engine event", "tenant_id", tenantID, "event", int(ev.Type))
		return nil
	}

	if release {
		handle := next.Handle
		next.Handle = nil
		next.events.close()
		next.events = nil
		c.teardown(tenantID, handle, ev.Type.String())
	}
	next.UpdatedAt = time.Now()
	c.registry.Put(next)

	c.logger.Info("session transition",
		"tenant_id", tenantID,
		"from", string(from),
		"to", string(next.State),
		"event", ev.Type.String(),
	)
	return &Change{
		TenantID: tenantID,
		From:     from,
		To:       next.State,
		Reason:   ev.Type.String(),
		Detail:   detail,
		Session:  next,
		At:       next.UpdatedAt,
	}
}

// pairingTimedOut restarts a session still waiting for pairing. It does
// nothing if the session moved on or was replaced since the timer was armed.
func (c *Controller) pairingTimedOut(tenantID, generation string) {
	unlock := c.registry.Lock(tenantID)
	cur, ok := c.registry.Get(tenantID)
	if !ok || cur.Generation != generation || cur.State != StatePairingRequired {
		unlock()
		c.logger.Debug("pairing watchdog no longer applies", "tenant_id", tenantID)
		return
	}

	c.logger.Warn("pairing timed out, restarting session",
		"tenant_id", tenantID,
		"timeout", c.opts.PairingTimeout.String(),
	)
	change, _ := c.start(c.ctx, tenantID, "pairing_timeout")
	c.notify(change)
	unlock()
}

// teardown destroys h in the background, bounded by TeardownTimeout. Errors
// are logged, never returned. The returned channel closes when Destroy ends.
func (c *Controller) teardown(tenantID string, h engine.Handle, reason string) <-chan struct{} {
	done := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.TeardownTimeout)
		defer cancel()

		if err := h.Destroy(ctx); err != nil {
			c.logger.Warn("engine teardown failed",
				"tenant_id", tenantID,
				"error", &TeardownError{TenantID: tenantID, Reason: reason, Err: err},
			)
		}
	}()
	return done
}

func (c *Controller) probe(ctx context.Context, tenantID string, h engine.Handle) Probe {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	state, err := h.LiveState(ctx)
	switch {
	case err == nil:
		return Probe{Known: true, State: state}
	case errors.Is(err, engine.ErrProbeUnsupported):
	default:
		c.logger.Debug("live-state probe failed", "tenant_id", tenantID, "error", err)
	}
	return Probe{}
}

// notify delivers change to every observer. The tenant lock must be held so
// a tenant's changes reach observers in the order they were applied.
func (c *Controller) notify(change *Change) {
	if change == nil {
		return
	}
	c.obsMu.RLock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.RUnlock()

	for _, o := range observers {
		c.deliver(o, *change)
	}
}

func (c *Controller) deliver(o Observer, change Change) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session observer panicked", "tenant_id", change.TenantID, "panic", r)
		}
	}()
	o.SessionChanged(c.ctx, change)
}

func validateTenantID(id string) error {
	if err := credentials.ValidateTenantID(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return nil
}
