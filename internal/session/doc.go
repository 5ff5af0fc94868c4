// Package session manages the lifecycle of per-tenant chat-network sessions.
//
// Each tenant has at most one session. A session wraps one engine connection
// and moves through a small state machine:
//
//	Uninitialized -> Creating -> PairingRequired -> Authenticated -> Ready
//	                     |              |                 |            |
//	                     +--------------+--> Error        +--> Disconnected
//
// # Components
//
//   - Registry: concurrency-safe map from tenant ID to session record, plus
//     the per-tenant lock that serialises every transition
//   - Watchdog: per-tenant pairing timers that restart stuck sessions
//   - Controller: performs Initialize, Reset, and event-driven transitions
//   - Project: pure function deriving the outward status of a session
//   - Recover: boot-time scan that re-initializes tenants with credentials
//
// # Concurrency
//
// All transitions for a tenant run under that tenant's lock, including the
// engine Create call. Engine events are queued per connection and applied in
// order by a dedicated goroutine; events from a connection that has been
// superseded are dropped by comparing its generation ID. Teardown of old
// connections happens in the background and never blocks callers beyond the
// configured teardown timeout.
//
// Observers are notified after the tenant lock is released.
package session
