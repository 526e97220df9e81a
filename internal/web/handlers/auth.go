package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/web/middleware"
)

// AuthHandler handles reviewer login and logout.
type AuthHandler struct {
	cfg      *config.Config
	sessions *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(cfg *config.Config, sessions *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, sessions: sessions}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login validates credentials and issues a session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.cfg.Web.AdminUser == "" || h.cfg.Web.AdminPass == "" {
		respondError(w, http.StatusServiceUnavailable, "authentication not configured")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.Web.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Web.AdminPass)) == 1
	if !userOK || !passOK {
		log.Printf("failed login attempt for user %q", sanitizeForLog(req.Username))
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	session, err := h.sessions.CreateSession(req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessions.SetSessionCookie(w, session)

	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"username":   session.Username,
	})
}

// Logout destroys the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetSessionFromRequest(r); session != nil {
		h.sessions.DeleteSession(session.ID)
	}
	h.sessions.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Status reports whether the request carries a valid session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      session.Username,
	})
}
