package handlers

import (
	"net/http"
	"time"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Videos        VideoStore
	Tokens        TokenAdmin
	Resolver      LinkResolver
	Gate          StreamGate
	Assets        AssetStorage
	AdminSessions AdminSessions

	AdminPasswordHash string
	ViewerCookieTTL   time.Duration

	AdminGuard    func(http.Handler) http.Handler
	LoginLimiter  RateLimiter
	ViewerLimiter RateLimiter
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	admin := AdminHandler{PasswordHash: deps.AdminPasswordHash, Sessions: deps.AdminSessions, Limiter: deps.LoginLimiter}
	videos := VideoHandler{Videos: deps.Videos, Tokens: deps.Tokens, Assets: deps.Assets}
	links := LinkHandler{Tokens: deps.Tokens}
	view := ViewerHandler{Resolver: deps.Resolver, Gate: deps.Gate, CookieTTL: deps.ViewerCookieTTL, Limiter: deps.ViewerLimiter}

	guard := deps.AdminGuard
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/v1/admin/login", admin.Login)
	mux.HandleFunc("/api/v1/admin/logout", admin.Logout)

	mux.Handle("/api/v1/admin/videos", guard(http.HandlerFunc(videos.Handle)))
	mux.Handle("/api/v1/admin/videos/upload", guard(http.HandlerFunc(videos.Upload)))
	mux.Handle("/api/v1/admin/links", guard(http.HandlerFunc(links.Create)))
	mux.Handle("/api/v1/admin/links/reset", guard(http.HandlerFunc(links.Reset)))
	mux.Handle("/api/v1/admin/links/revoke", guard(http.HandlerFunc(links.Revoke)))

	mux.HandleFunc("/api/v1/view/resolve", view.Resolve)
	mux.HandleFunc("/api/v1/view/stream/{token}", view.Stream)
}
