package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/videovault/backend/internal/logging"
	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/repositories"
	"github.com/videovault/backend/internal/tokens"
)

// VideoFinder resolves the video a token points at.
type VideoFinder interface {
	GetByID(ctx context.Context, id string) (models.Video, error)
}

// Resolution is a successful authorization decision for a viewer session.
type Resolution struct {
	Video models.Video
	// SessionID is the session the token is now locked to. When IssuedSession
	// is true it was freshly minted and must be set as a cookie.
	SessionID     string
	IssuedSession bool
	Result        models.LockResult
}

// Resolver maps an inbound viewer request to an authorization decision,
// running the session-locking protocol on first visit.
type Resolver struct {
	tokens *tokens.Manager
	videos VideoFinder
}

// NewResolver constructs a Resolver over the token manager and video catalog.
func NewResolver(manager *tokens.Manager, videos VideoFinder) *Resolver {
	if manager == nil || videos == nil {
		panic("viewer: resolver dependencies must not be nil")
	}
	return &Resolver{tokens: manager, videos: videos}
}

// Resolve validates the link token, locks it to the presented session cookie
// (minting a fresh session id when none was presented), and loads the owning
// video's metadata. A session that already holds the lock resolves again
// without any write.
func (r *Resolver) Resolve(ctx context.Context, token, existingSession string) (Resolution, error) {
	ctx, span := logging.StartSpan(ctx, "viewer.resolve")
	defer span.End()

	logger := logging.FromContext(ctx)

	record, err := r.tokens.Find(ctx, token)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return Resolution{}, ErrInvalidLink
		}
		logger.Error("token lookup failed", "error", err)
		return Resolution{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	// Expiry and revocation short-circuit before any locking write.
	if !tokens.Usable(record, r.tokens.Now()) {
		return Resolution{}, ErrInvalidLink
	}

	sessionID := existingSession
	issued := false
	if sessionID == "" {
		sessionID = uuid.NewString()
		issued = true
	}

	result, err := r.tokens.TryLock(ctx, token, sessionID)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return Resolution{}, ErrInvalidLink
		}
		logger.Error("token lock failed", "error", err)
		return Resolution{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if !result.Authorized() {
		logger.Info("viewer denied", "result", result.String())
		return Resolution{}, ErrSessionLocked
	}

	video, err := r.videos.GetByID(ctx, record.VideoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Resolution{}, ErrInvalidLink
		}
		logger.Error("video lookup failed", "videoId", record.VideoID, "error", err)
		return Resolution{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return Resolution{
		Video:         video,
		SessionID:     sessionID,
		IssuedSession: issued,
		Result:        result,
	}, nil
}
