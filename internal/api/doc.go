// Package api implements the HTTP API and WebSocket server of Fox Bridge.
//
// This package provides:
//   - The point-of-sale contract: status, initialize, reset and send-bill
//     routes at the root, with their original response shapes
//   - Versioned routes under /api/v1 for health, metrics, tenant listings
//     and the per-tenant event log
//   - A WebSocket hub pushing tenant status and delivery events
//   - Optional JWT bearer authentication with tenant-scoped tokens
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// Authentication is off unless security.jwt.secret is set. When on, every
// route except the liveness routes needs a bearer token; a token carrying a
// tenant claim can only act on that tenant. WebSocket connections use
// single-use tickets so tokens never appear in URLs.
package api
