package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/videovault/backend/internal/logging"
	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/tokens"
)

// LinkHandler provides the administrator link-token endpoints.
type LinkHandler struct {
	Tokens TokenAdmin
}

// Create handles POST /api/v1/admin/links requests.
func (h LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid link payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "videoId is required"})
		return
	}

	var expiresAt time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "expiresAt must be an RFC 3339 timestamp"})
			return
		}
		expiresAt = parsed
	}

	record, err := h.Tokens.Create(ctx, req.VideoID, expiresAt, req.MaxSessions)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidInput) {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		logger.Error("failed to create link token", "videoId", req.VideoID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create token"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]tokenRow{"token": newTokenRow(record)})
}

// Reset handles POST /api/v1/admin/links/reset requests, releasing the
// current session lock without refunding quota.
func (h LinkHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "reset", h.Tokens.Reset)
}

// Revoke handles POST /api/v1/admin/links/revoke requests. Idempotent.
func (h LinkHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "revoke", h.Tokens.Revoke)
}

func (h LinkHandler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, token string) error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req linkTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid link payload", "op", op, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	if err := fn(ctx, req.Token); err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "token not found"})
			return
		}
		logger.Error("link operation failed", "op", op, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to " + op + " token"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

type linkTokenRequest struct {
	Token string `json:"token"`
}

type createLinkRequest struct {
	VideoID     string `json:"videoId"`
	ExpiresAt   string `json:"expiresAt"`
	MaxSessions int    `json:"maxSessions"`
}

type tokenRow struct {
	Token        string     `json:"token"`
	VideoID      string     `json:"videoId"`
	SessionID    *string    `json:"sessionId"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	RevokedAt    *time.Time `json:"revokedAt"`
	MaxSessions  int        `json:"maxSessions"`
	SessionCount int        `json:"sessionCount"`
}

func newTokenRow(record models.VideoToken) tokenRow {
	return tokenRow{
		Token:        record.Token,
		VideoID:      record.VideoID,
		SessionID:    record.SessionID,
		CreatedAt:    record.CreatedAt,
		ExpiresAt:    record.ExpiresAt,
		RevokedAt:    record.RevokedAt,
		MaxSessions:  record.MaxSessions,
		SessionCount: record.SessionCount,
	}
}
