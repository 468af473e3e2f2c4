package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/videovault/backend/internal/adminauth"
	"github.com/videovault/backend/internal/logging"
)

// AdminVerifier checks a presented admin session token.
type AdminVerifier interface {
	Verify(value string) error
}

// RequireAdmin rejects requests that do not carry a valid admin session cookie.
func RequireAdmin(verifier AdminVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(adminauth.CookieName)
			if err != nil || verifier.Verify(cookie.Value) != nil {
				logging.FromContext(r.Context()).Warn("admin request rejected", "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "administrator authentication required"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
