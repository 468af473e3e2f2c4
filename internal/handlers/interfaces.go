package handlers

import (
	"context"
	"io"
	"time"

	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/upstream"
	"github.com/videovault/backend/internal/viewer"
)

// VideoStore captures persistence for the video catalog.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	GetByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context) ([]models.Video, error)
}

// TokenAdmin captures the administrator-facing link-token operations.
type TokenAdmin interface {
	Create(ctx context.Context, videoID string, expiresAt time.Time, maxSessions int) (models.VideoToken, error)
	Reset(ctx context.Context, token string) error
	Revoke(ctx context.Context, token string) error
	ListByVideo(ctx context.Context, videoID string) ([]models.VideoToken, error)
}

// LinkResolver maps a viewer request to an authorization decision.
type LinkResolver interface {
	Resolve(ctx context.Context, token, existingSession string) (viewer.Resolution, error)
}

// StreamGate authorizes and opens gated upstream byte streams.
type StreamGate interface {
	Stream(ctx context.Context, token, sessionID, byteRange string) (*upstream.Object, error)
}

// AssetStorage uploads new video assets into the private store.
type AssetStorage interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// AdminSessions issues admin session cookie values after a password check.
type AdminSessions interface {
	Issue() (string, error)
	TTL() time.Duration
}
