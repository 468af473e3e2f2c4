package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/videovault/backend/internal/adminauth"
	"github.com/videovault/backend/internal/config"
	"github.com/videovault/backend/internal/db"
	"github.com/videovault/backend/internal/handlers"
	"github.com/videovault/backend/internal/middleware"
	"github.com/videovault/backend/internal/repositories"
	"github.com/videovault/backend/internal/tokens"
	"github.com/videovault/backend/internal/upstream"
	"github.com/videovault/backend/internal/videos"
	"github.com/videovault/backend/internal/viewer"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	tokenStore := repositories.NewPostgresTokenStore(pool)
	manager := tokens.NewManager(cfg.DefaultLinkTTL, cfg.DefaultMaxSessions, tokenStore)

	videoRepo := repositories.NewPostgresVideoRepository(pool)
	cachedVideos := videos.NewCachingFinder(videoRepo, cfg.MetadataCacheTTL)

	client, assets, err := buildUpstream(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	issuer, err := adminauth.NewIssuer(cfg.AdminCookieSecret, cfg.AdminSessionTTL)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	return handlers.Dependencies{
		Videos:        videoRepo,
		Tokens:        manager,
		Resolver:      viewer.NewResolver(manager, cachedVideos),
		Gate:          viewer.NewGate(manager, cachedVideos, client),
		Assets:        assets,
		AdminSessions: issuer,

		AdminPasswordHash: cfg.AdminPasswordHash,
		ViewerCookieTTL:   cfg.ViewerCookieTTL,

		AdminGuard:    middleware.RequireAdmin(issuer),
		LoginLimiter:  middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		ViewerLimiter: middleware.NewIPRateLimiter(60, time.Minute, 20, 10*time.Minute),
	}, nil
}

func buildUpstream(ctx context.Context, cfg config.Config) (upstream.Client, handlers.AssetStorage, error) {
	switch strings.ToLower(cfg.UpstreamKind) {
	case "drive", "":
		saCfg, err := upstream.LoadServiceAccountConfig(cfg.ServiceAccountJSON, cfg.ServiceAccountJSONPath)
		if err != nil {
			return nil, nil, fmt.Errorf("configure drive upstream: %w", err)
		}
		source, err := upstream.NewServiceAccountSource(saCfg, cfg.CredentialTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("configure drive upstream: %w", err)
		}
		return upstream.NewDriveClient(source, cfg.UpstreamHeaderTimeout), nil, nil
	case "s3":
		client, err := upstream.NewS3Client(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, nil, fmt.Errorf("configure s3 upstream: %w", err)
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown upstream kind %q", cfg.UpstreamKind)
	}
}
