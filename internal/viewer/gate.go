package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/videovault/backend/internal/logging"
	"github.com/videovault/backend/internal/repositories"
	"github.com/videovault/backend/internal/tokens"
	"github.com/videovault/backend/internal/upstream"
)

// Gate re-validates a link token on every media byte request and proxies the
// upstream byte stream. Players issue many ranged requests over a session, so
// the checks run per request; only the resolver acquires locks, the gate
// requires a pre-existing exact session match.
type Gate struct {
	tokens   *tokens.Manager
	videos   VideoFinder
	upstream upstream.Client
}

// NewGate constructs a Gate over the token manager, video catalog, and
// upstream byte store.
func NewGate(manager *tokens.Manager, videos VideoFinder, client upstream.Client) *Gate {
	if manager == nil || videos == nil || client == nil {
		panic("viewer: gate dependencies must not be nil")
	}
	return &Gate{tokens: manager, videos: videos, upstream: client}
}

// Stream authorizes the request and opens the upstream byte stream, passing
// the inbound Range header through verbatim. The caller owns the returned
// body; closing ctx cancels the upstream fetch without touching lock state.
func (g *Gate) Stream(ctx context.Context, token, sessionID, byteRange string) (*upstream.Object, error) {
	ctx, span := logging.StartSpan(ctx, "viewer.stream")
	defer span.End()

	logger := logging.FromContext(ctx)

	record, err := g.tokens.Find(ctx, token)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return nil, ErrInvalidLink
		}
		logger.Error("token lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if !tokens.Usable(record, g.tokens.Now()) {
		return nil, ErrInvalidLink
	}

	if !record.HeldBy(sessionID) {
		return nil, ErrSessionLocked
	}

	video, err := g.videos.GetByID(ctx, record.VideoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidLink
		}
		logger.Error("video lookup failed", "videoId", record.VideoID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	object, err := g.upstream.Fetch(ctx, video.BackingFileID, byteRange)
	if err != nil {
		logger.Error("upstream fetch failed", "videoId", video.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return object, nil
}
