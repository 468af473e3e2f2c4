package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/videovault/backend/internal/logging"
	"github.com/videovault/backend/internal/viewer"
)

// SessionCookieName is the long-lived viewer session cookie.
const SessionCookieName = "vv_session"

// ViewerHandler implements the public link endpoints: resolving a share link
// into playable video metadata and the gated byte stream behind it.
type ViewerHandler struct {
	Resolver  LinkResolver
	Gate      StreamGate
	CookieTTL time.Duration
	Limiter   RateLimiter
}

// Resolve handles GET /api/v1/view/resolve requests, locking the link to the
// caller's session and issuing the session cookie on first visit.
func (h ViewerHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "resolve") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts"})
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "missing token"})
		return
	}

	resolution, err := h.Resolver.Resolve(ctx, token, sessionCookie(r))
	if err != nil {
		h.respondAccessError(w, r, err)
		return
	}

	if resolution.IssuedSession {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    resolution.SessionID,
			Path:     "/",
			MaxAge:   int(h.cookieTTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	logger.Info("link resolved", "result", resolution.Result.String())

	respondJSON(ctx, w, http.StatusOK, resolveResponse{Video: resolvedVideo{
		ID:    resolution.Video.ID,
		Title: resolution.Video.Title,
	}})
}

// Stream handles GET /api/v1/view/stream/{token} requests, re-validating the
// token and proxying the upstream byte stream with range passthrough.
func (h ViewerHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	token := r.PathValue("token")
	if token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "missing token"})
		return
	}

	object, err := h.Gate.Stream(ctx, token, sessionCookie(r), r.Header.Get("Range"))
	if err != nil {
		h.respondAccessError(w, r, err)
		return
	}
	defer object.Body.Close()

	for name, values := range object.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(object.Status)

	if _, err := io.Copy(w, object.Body); err != nil {
		// The viewer disconnecting mid-stream is routine; the deferred close
		// cancels the upstream fetch and no token state changes.
		logger.Info("stream interrupted", "error", err)
	}
}

func (h ViewerHandler) respondAccessError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, viewer.ErrInvalidLink):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Invalid or expired link."})
	case errors.Is(err, viewer.ErrSessionLocked):
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "This link is locked to another session."})
	case errors.Is(err, viewer.ErrUpstreamUnavailable):
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "Video is temporarily unavailable."})
	default:
		logging.FromContext(ctx).Error("viewer request failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "Something went wrong."})
	}
}

func (h ViewerHandler) cookieTTL() time.Duration {
	if h.CookieTTL > 0 {
		return h.CookieTTL
	}
	return 30 * 24 * time.Hour
}

func sessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

type resolveResponse struct {
	Video resolvedVideo `json:"video"`
}

type resolvedVideo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
