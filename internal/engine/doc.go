// Package engine defines the boundary between Fox Bridge and the automation
// engine that actually holds a chat-network session.
//
// The lifecycle manager never talks to the network itself. It asks an Engine
// to create a connection for a tenant, consumes the lifecycle events the
// connection reports, and calls back into the Handle to send media, probe the
// live state, or tear the connection down.
//
// # Implementations
//
//   - helper: one supervised helper process per tenant speaking JSON lines
//   - browser: a headless Chrome per tenant driven through chromedp
//   - enginetest: a synthetic engine for tests
//
// # Events
//
// Events are delivered through CreateRequest.Events. Implementations may call
// it from any goroutine, including synchronously from Create; the consumer
// must not block the caller.
package engine
