package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/authz"
	"github.com/saltyorg/opsboard/internal/database"
)

type contextKey string

const (
	// UserContextKey is the context key for the authenticated user
	UserContextKey contextKey = "user"
	// TokenContextKey is the context key for the session token
	TokenContextKey contextKey = "token"

	// SessionCookie names the cookie carrying the session token
	SessionCookie = "session"
)

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Logger is a middleware that logs requests
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// TokenFromRequest returns the bearer token, falling back to the session
// cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Auth rejects requests without a valid session token with 401.
func Auth(authService *auth.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// ValidateToken also extends the session
			user, err := authService.ValidateToken(token)
			if err != nil {
				log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Failed to validate session")
				writeError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if user == nil {
				if _, err := r.Cookie(SessionCookie); err == nil {
					http.SetCookie(w, &http.Cookie{
						Name:     SessionCookie,
						Value:    "",
						Path:     "/",
						MaxAge:   -1,
						HttpOnly: true,
					})
				}
				writeError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects callers whose role may not perform act on obj.
// It must run after Auth.
func RequirePermission(a *authz.Authorizer, obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			allowed, err := a.Authorize(user.Role, obj, act)
			if err != nil {
				log.Error().Err(err).Str("object", obj).Str("action", act).Msg("Authorization check failed")
				writeError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				log.Debug().Str("role", user.Role).Str("object", obj).Str("action", act).Msg("Permission denied")
				writeError(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ReadWrite picks the read permission for safe methods and write otherwise.
func ReadWrite(a *authz.Authorizer, obj string) func(http.Handler) http.Handler {
	read := RequirePermission(a, obj, authz.ActRead)
	write := RequirePermission(a, obj, authz.ActWrite)
	return func(next http.Handler) http.Handler {
		readNext, writeNext := read(next), write(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				readNext.ServeHTTP(w, r)
			default:
				writeNext.ServeHTTP(w, r)
			}
		})
	}
}

// RequireSetup rejects requests with 409 until the first user exists.
func RequireSetup(db *database.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			firstRun, err := db.IsFirstRun()
			if err != nil {
				log.Error().Err(err).Msg("Failed to check first run")
				writeError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if firstRun {
				writeError(w, "Setup has not been completed", http.StatusConflict)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser retrieves the user from context
func GetUser(ctx context.Context) *auth.User {
	user, ok := ctx.Value(UserContextKey).(*auth.User)
	if !ok {
		return nil
	}
	return user
}

// GetToken retrieves the session token from context
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// AllowSubnet is a middleware that restricts access to connections from within the allowed subnet.
// This checks the actual connection source (RemoteAddr), useful for whitelisting reverse proxies.
func AllowSubnet(allowedNet *net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedNet == nil {
				next.ServeHTTP(w, r)
				return
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				// Maybe it's just an IP without port
				host = r.RemoteAddr
			}

			ip := net.ParseIP(host)
			if ip == nil {
				log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Could not parse remote address")
				writeError(w, "Forbidden", http.StatusForbidden)
				return
			}

			if !allowedNet.Contains(ip) {
				log.Warn().
					Str("remote_addr", r.RemoteAddr).
					Str("allowed_subnet", allowedNet.String()).
					Msg("Connection rejected: source IP not in allowed subnet")
				writeError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
