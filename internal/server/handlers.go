package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/CrisRain/Lumina/internal/auth"
	"github.com/CrisRain/Lumina/internal/config"
	"github.com/CrisRain/Lumina/internal/metrics"
	"github.com/CrisRain/Lumina/internal/node"
)

const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("⚠️  Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// bearerToken pulls the session token from the Authorization header, falling
// back to the token query parameter for the WebSocket stream where browsers
// cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// writeAuthError maps gateway failures onto HTTP statuses. Retry-After on a
// throttled login lets clients back off without guessing.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "panel is not initialized")
	case errors.Is(err, auth.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, "panel is already initialized")
	case errors.Is(err, auth.ErrAuthDisabled):
		writeError(w, http.StatusBadRequest, "authentication is disabled")
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(auth.DefaultAttemptWindow.Seconds())))
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
	case errors.Is(err, auth.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeNodeError maps node registry failures.
func writeNodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, node.ErrNotFound):
		writeError(w, http.StatusNotFound, "node not found")
	case errors.Is(err, node.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// protected wraps a handler with the bearer-token check.
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.Auth.Authorize(bearerToken(r)); err != nil {
			writeAuthError(w, err)
			return
		}
		next(w, r)
	}
}

// --- Setup ---

func (s *Server) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"initialized": s.Config.Initialized(),
	})
}

func (s *Server) handleSetupInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password   string `json:"password"`
		Socks5Port int    `json:"socks5_port"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := s.Auth.Setup(req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if req.Socks5Port > 0 && req.Socks5Port < 65536 {
		if err := s.Config.Set(config.KeySocks5Port, req.Socks5Port); err != nil {
			log.Printf("⚠️  Failed to persist SOCKS5 port during setup: %v", err)
		} else {
			s.Warp.UpdateSocks5Port(req.Socks5Port)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"initialized":   true,
		"auth_required": req.Password != "",
		"token":         token,
	})
}

// --- Auth ---

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"initialized":   s.Config.Initialized(),
		"auth_required": s.Auth.AuthRequired(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.Config.Initialized() {
		// Logging in against a fresh install is a caller error, not an outage.
		writeError(w, http.StatusBadRequest, "panel is not initialized")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := s.Auth.Login(req.Password, GetClientIP(r))
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(loginOutcome(err)).Inc()
		writeAuthError(w, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      token,
		"token_type": "bearer",
	})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid"
	default:
		return "error"
	}
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"principal":     auth.Principal,
		"sessions":      s.Auth.ActiveSessions(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.Logout(bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new password must not be empty")
		return
	}

	err := s.Auth.ChangePassword(bearerToken(r), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrNotInitialized),
		errors.Is(err, auth.ErrAuthDisabled):
		writeAuthError(w, err)
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
