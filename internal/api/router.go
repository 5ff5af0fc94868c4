package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe of /api/v1/health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	// Point-of-sale routes
	r.Get("/", s.handleRoot)
	r.Get("/status", s.handleBridgeStatus)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(true))

		r.Get("/status/{tenantID}", s.handleTenantStatus)
		r.Post("/initialize/{tenantID}", s.handleInitialize)
		r.Post("/reset/{tenantID}", s.handleReset)
		r.Post("/send-bill", s.handleSendBill)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(false))

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", s.handleListTenants)
				r.Get("/{tenantID}", s.handleGetTenant)
				r.Get("/{tenantID}/events", s.handleTenantEvents)
			})
		})
	})

	return r
}

// handleHealth reports server health and the reachability of each
// registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.health))
	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
