package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/videovault/backend/internal/adminauth"
	"github.com/videovault/backend/internal/logging"
)

// AdminHandler implements the shared-secret administrator login.
type AdminHandler struct {
	PasswordHash string
	Sessions     AdminSessions
	Limiter      RateLimiter
}

// Login handles POST /api/v1/admin/login requests.
func (h AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "admin-login") {
		logger.Warn("admin login rate limited")
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts"})
		return
	}

	if h.PasswordHash == "" || h.Sessions == nil {
		logger.Error("admin authentication not configured")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "administrator login unavailable"})
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid admin login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("admin password mismatch")
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid password"})
		return
	}

	token, err := h.Sessions.Issue()
	if err != nil {
		logger.Error("failed to issue admin session", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     adminauth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

// Logout handles POST /api/v1/admin/logout requests.
func (h AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     adminauth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(r.Context(), w, http.StatusOK, map[string]bool{"ok": true})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}
