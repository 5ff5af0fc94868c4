package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/foxbridge/internal/credentials"
	"github.com/nerrad567/foxbridge/internal/dispatch"
	"github.com/nerrad567/foxbridge/internal/session"
)

// Messages of the point-of-sale contract.
const (
	msgBridgeActive       = "Fox WhatsApp Bridge is active"
	msgInitStarted        = "Initialization started"
	msgResetDone          = "Session reset"
	msgNotConnected       = "WhatsApp not connected for this restaurant"
	msgRouteNotFound      = "Route not found"
	msgForbiddenTenant    = "token is not valid for this restaurant"
	msgControllerShutdown = "bridge is shutting down"
)

// legacyStatus is the GET /status/{tenantID} body. Absent values are null.
type legacyStatus struct {
	BridgeOnline bool    `json:"bridgeOnline"`
	Online       bool    `json:"online"`
	WhatsApp     string  `json:"whatsapp"`
	QR           *string `json:"qr"`
	User         *string `json:"user"`
	Error        *string `json:"error"`
}

// sendBillRequest is the POST /send-bill body.
type sendBillRequest struct {
	RestaurantID string `json:"restaurantId"`
	Phone        string `json:"phone"`
	ImageURL     string `json:"imageUrl"`
	Message      string `json:"message"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  true,
		"message": msgBridgeActive,
	})
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  true,
		"version": s.version,
	})
}

// tenantParam validates the {tenantID} path parameter and the caller's
// right to it, writing the error response itself.
func (s *Server) tenantParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		writeLegacyError(w, http.StatusBadRequest, "invalid restaurant id")
		return "", false
	}
	if !s.allowTenant(r, tenantID) {
		writeLegacyError(w, http.StatusForbidden, msgForbiddenTenant)
		return "", false
	}
	return tenantID, true
}

func (s *Server) handleTenantStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenantParam(w, r)
	if !ok {
		return
	}

	st := s.sessions.Status(r.Context(), tenantID)
	writeJSON(w, http.StatusOK, legacyStatus{
		BridgeOnline: true,
		Online:       st.Online,
		WhatsApp:     string(st.Tag),
		QR:           optional(st.PairingCode),
		User:         optional(st.User),
		Error:        optional(st.Error),
	})
}

// handleInitialize starts (or restarts) a tenant session. An engine
// creation failure still answers success; the failure surfaces through
// the status route.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenantParam(w, r)
	if !ok {
		return
	}

	s.logger.Info("init request", "tenant_id", tenantID)
	err := s.sessions.Initialize(r.Context(), tenantID)
	switch {
	case err == nil, errors.Is(err, session.ErrCreationFailed):
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": msgInitStarted,
		})
	case errors.Is(err, session.ErrInvalidTenantID):
		writeLegacyError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeLegacyError(w, http.StatusServiceUnavailable, msgControllerShutdown)
	default:
		writeLegacyError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenantParam(w, r)
	if !ok {
		return
	}

	s.logger.Info("reset request", "tenant_id", tenantID)
	if err := s.sessions.Reset(r.Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrInvalidTenantID) {
			writeLegacyError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeLegacyError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgResetDone,
	})
}

// handleSendBill delivers a bill image. Engine and fetch failures answer
// 500 with the underlying message.
func (s *Server) handleSendBill(w http.ResponseWriter, r *http.Request) {
	var req sendBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLegacyError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RestaurantID != "" && !s.allowTenant(r, req.RestaurantID) {
		writeLegacyError(w, http.StatusForbidden, msgForbiddenTenant)
		return
	}

	_, err := s.dispatcher.SendBill(r.Context(), dispatch.Request{
		TenantID: req.RestaurantID,
		Phone:    req.Phone,
		MediaURL: req.ImageURL,
		Caption:  req.Message,
	})

	var delivery *dispatch.DeliveryError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, dispatch.ErrNotConnected):
		writeLegacyError(w, http.StatusBadRequest, msgNotConnected)
	case errors.Is(err, dispatch.ErrInvalidAddress), errors.Is(err, dispatch.ErrInvalidRequest):
		writeLegacyError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &delivery):
		writeLegacyError(w, http.StatusInternalServerError, delivery.Err.Error())
	default:
		writeLegacyError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("no route", "method", r.Method, "path", r.URL.Path)
	writeLegacyError(w, http.StatusNotFound, msgRouteNotFound)
}
