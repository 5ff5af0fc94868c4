package session

import (
	"sync"
	"time"
)

// DefaultPairingTimeout is how long a session may wait in PairingRequired
// before it is torn down and re-created with a fresh pairing code.
const DefaultPairingTimeout = 120 * time.Second

// Watchdog keeps at most one pending timer per tenant.
//
// Every Arm returns a token. A timer only fires its callback if its token is
// still the tenant's current one, so a timer that was replaced or disarmed
// while its goroutine was already scheduled does nothing.
//
// Thread Safety: All methods are safe for concurrent use.
type Watchdog struct {
	mu     sync.Mutex
	timers map[string]*watchdogTimer
	seq    uint64
}

type watchdogTimer struct {
	timer *time.Timer
	token uint64
}

// NewWatchdog creates an empty watchdog.
func NewWatchdog() *Watchdog {
	return &Watchdog{timers: make(map[string]*watchdogTimer)}
}

// Arm schedules fire to run after d, replacing any timer already pending for
// the tenant. It returns the token of the new timer.
func (w *Watchdog) Arm(tenantID string, d time.Duration, fire func()) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.timers[tenantID]; ok {
		old.timer.Stop()
	}

	w.seq++
	token := w.seq
	w.timers[tenantID] = &watchdogTimer{
		token: token,
		timer: time.AfterFunc(d, func() {
			if w.claim(tenantID, token) {
				fire()
			}
		}),
	}
	return token
}

// Disarm cancels the tenant's pending timer. It reports whether one existed.
func (w *Watchdog) Disarm(tenantID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.timers[tenantID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(w.timers, tenantID)
	return true
}

// Armed reports whether the tenant has a pending timer.
func (w *Watchdog) Armed(tenantID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[tenantID]
	return ok
}

// Stop disarms every timer.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.timer.Stop()
		delete(w.timers, id)
	}
}

// claim removes the tenant's timer if token is still current.
func (w *Watchdog) claim(tenantID string, token uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.timers[tenantID]
	if !ok || t.token != token {
		return false
	}
	delete(w.timers, tenantID)
	return true
}
