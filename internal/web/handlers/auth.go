package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/web/middleware"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type setupRequest struct {
	Company  string `json:"company"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *auth.User `json:"user"`
}

func (h *Handlers) startSession(w http.ResponseWriter, user *auth.User, status int) {
	session, err := h.authService.CreateSession(user.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	cookie := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)

	h.writeJSON(w, status, loginResponse{Token: session.ID, ExpiresAt: session.ExpiresAt, User: user})
}

// Setup creates the first company and admin account
func (h *Handlers) Setup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.authService.Setup(req.Company, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrSetupComplete):
		h.jsonError(w, "Setup already completed", http.StatusConflict)
		return
	case err != nil:
		h.handleError(w, r, err)
		return
	}

	log.Info().Str("username", user.Username).Msg("Setup completed, admin created")
	h.startSession(w, user, http.StatusCreated)
}

// Login authenticates a user and issues a session token
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.jsonError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Authenticate(req.Username, req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Authentication error")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		log.Warn().Str("username", req.Username).Str("remote", r.RemoteAddr).Msg("Failed login attempt")
		h.jsonError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	log.Info().Str("username", user.Username).Msg("User logged in")
	h.startSession(w, user, http.StatusOK)
}

// Logout ends the current session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.authService.DeleteSession(token); err != nil {
			log.Error().Err(err).Msg("Failed to delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	h.jsonMessage(w, "Logged out")
}

// Me returns the authenticated user
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// ChangePassword updates the caller's own password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		h.jsonError(w, "All password fields are required", http.StatusBadRequest)
		return
	}

	ok, err := h.authService.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err != nil:
		h.handleError(w, r, err)
		return
	case !ok:
		h.jsonError(w, "Current password is incorrect", http.StatusBadRequest)
		return
	}

	log.Info().Str("username", user.Username).Msg("Password updated")
	h.jsonMessage(w, "Password updated successfully")
}
