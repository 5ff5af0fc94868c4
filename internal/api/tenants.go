package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/foxbridge/internal/credentials"
	"github.com/nerrad567/foxbridge/internal/eventlog"
	"github.com/nerrad567/foxbridge/internal/session"
)

// TenantView is the v1 representation of a tenant session.
type TenantView struct {
	TenantID       string `json:"tenantId"`
	State          string `json:"state"`
	Generation     string `json:"generation,omitempty"`
	PairingCode    string `json:"pairingCode,omitempty"`
	User           string `json:"user,omitempty"`
	LastError      string `json:"lastError,omitempty"`
	EngineAttached bool   `json:"engineAttached"`
}

func tenantView(s session.Session) TenantView {
	return TenantView{
		TenantID:       s.TenantID,
		State:          string(s.State),
		Generation:     s.Generation,
		PairingCode:    s.PairingCode,
		User:           s.User,
		LastError:      s.LastError,
		EngineAttached: s.Handle != nil,
	}
}

// handleListTenants lists every known session, restricted to the caller's
// tenant when the token is scoped.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	scope := tenantScope(r)

	views := []TenantView{}
	for _, sess := range s.sessions.Sessions() {
		if scope != "" && sess.TenantID != scope {
			continue
		}
		views = append(views, tenantView(sess))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].TenantID < views[j].TenantID })

	writeJSON(w, http.StatusOK, map[string]any{
		"tenants": views,
		"count":   len(views),
	})
}

// v1TenantParam is tenantParam with the structured error body.
func (s *Server) v1TenantParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		writeBadRequest(w, "invalid tenant id")
		return "", false
	}
	if !s.allowTenant(r, tenantID) {
		writeForbidden(w, msgForbiddenTenant)
		return "", false
	}
	return tenantID, true
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.v1TenantParam(w, r)
	if !ok {
		return
	}

	sess, ok := s.sessions.Session(tenantID)
	if !ok {
		writeNotFound(w, "tenant has no session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": tenantView(sess),
		"status":  s.sessions.Status(r.Context(), tenantID),
	})
}

// handleTenantEvents pages through a tenant's transition and delivery
// history. Query: kind, limit, offset.
func (s *Server) handleTenantEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.v1TenantParam(w, r)
	if !ok {
		return
	}
	if s.events == nil {
		writeUnavailable(w, "event log is not configured")
		return
	}

	q := r.URL.Query()
	filter := eventlog.Filter{TenantID: tenantID, Kind: q.Get("kind")}
	if filter.Kind != "" && filter.Kind != eventlog.KindTransition && filter.Kind != eventlog.KindDelivery {
		writeBadRequest(w, "kind must be transition or delivery")
		return
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing session events", "tenant_id", tenantID, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
