package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/web/middleware"
)

type managerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ManagersList lists the users of the caller's company
func (h *Handlers) ManagersList(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"managers": users})
}

// ManagerCreate adds a user to the caller's company
func (h *Handlers) ManagerCreate(w http.ResponseWriter, r *http.Request) {
	var req managerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = database.RoleManager
	}
	if !database.ValidRole(req.Role) {
		h.jsonError(w, "Role must be admin or manager", http.StatusBadRequest)
		return
	}

	user, err := h.authService.CreateUser(req.Username, req.Password, req.Role, caller(r).CompanyID)
	switch {
	case auth.IsUniqueViolation(err):
		h.jsonError(w, "Username is already taken", http.StatusConflict)
		return
	case err != nil:
		h.handleError(w, r, err)
		return
	}

	log.Info().Str("username", user.Username).Str("role", user.Role).Msg("Manager created")
	h.writeJSON(w, http.StatusCreated, user)
}

// ManagerDelete removes a user of the caller's company
func (h *Handlers) ManagerDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if user := middleware.GetUser(r.Context()); user != nil && user.ID == id {
		h.jsonError(w, "You cannot delete your own account", http.StatusBadRequest)
		return
	}

	deleted, err := h.authService.DeleteUser(id, caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !deleted {
		h.jsonError(w, "Manager not found", http.StatusNotFound)
		return
	}
	h.jsonMessage(w, "Manager deleted successfully")
}
