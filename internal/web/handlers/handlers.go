package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/apperr"
	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/departments"
	"github.com/saltyorg/opsboard/internal/extern"
	"github.com/saltyorg/opsboard/internal/maintenance"
	"github.com/saltyorg/opsboard/internal/web/middleware"
	"github.com/saltyorg/opsboard/internal/web/sse"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains all HTTP handlers
type Handlers struct {
	db             *database.DB
	authService    *auth.AuthService
	departments    *departments.Service
	extern         *extern.Service
	sseBroker      *sse.Broker
	maintenanceMgr *maintenance.Manager
	version        string
	isDev          bool
}

// New creates a new Handlers instance
func New(db *database.DB, authService *auth.AuthService, deps *departments.Service, ext *extern.Service, broker *sse.Broker, isDev bool) *Handlers {
	return &Handlers{
		db:          db,
		authService: authService,
		departments: deps,
		extern:      ext,
		sseBroker:   broker,
		isDev:       isDev,
	}
}

// SetMaintenanceManager sets the maintenance manager
func (h *Handlers) SetMaintenanceManager(mgr *maintenance.Manager) {
	h.maintenanceMgr = mgr
}

// SetVersion sets the version reported by the health endpoint
func (h *Handlers) SetVersion(version string) {
	h.version = version
}

// writeJSON sends v as a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// jsonMessage sends a JSON message response
func (h *Handlers) jsonMessage(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// handleError maps err onto its status and logs unexpected failures.
func (h *Handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("kind", apperr.KindOf(err).String()).
			Str("path", r.URL.Path).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("Request failed")
	}
	h.jsonError(w, apperr.PublicMessage(err), status)
}

// decode reads a JSON body into v.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		h.jsonError(w, msg, http.StatusBadRequest)
		return false
	}
	return true
}

// idParam parses the numeric {id} URL parameter.
func (h *Handlers) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// caller returns the identity of the authenticated user.
func caller(r *http.Request) departments.Caller {
	user := middleware.GetUser(r.Context())
	if user == nil {
		return departments.Caller{}
	}
	return departments.Caller{UserID: user.ID, CompanyID: user.CompanyID, Role: user.Role}
}

// applyCookieSecurity sets Secure/SameSite defaults based on environment.
func (h *Handlers) applyCookieSecurity(c *http.Cookie) {
	if h.isDev {
		if c.SameSite == 0 {
			c.SameSite = http.SameSiteLaxMode
		}
		return
	}
	c.Secure = true
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteStrictMode
	}
}

// publish announces a change to the caller's company.
func (h *Handlers) publish(r *http.Request, eventType sse.EventType, data any) {
	if h.sseBroker != nil {
		h.sseBroker.Publish(caller(r).CompanyID, eventType, data)
	}
}

// Health reports liveness and store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// Events streams change events of the caller's company.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	h.sseBroker.Serve(w, r, caller(r).CompanyID)
}
