package upstream

import (
	"context"
	"io"
	"net/http"
)

// Object is a byte stream fetched from the upstream video store, carrying
// only the response metadata the gate is allowed to pass through to viewers.
type Object struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Client fetches bytes for a backing file, optionally restricted to an HTTP
// byte range, using whatever credential the implementation manages.
type Client interface {
	Fetch(ctx context.Context, fileID, byteRange string) (*Object, error)
}

// passthroughHeaderNames is the full set of upstream headers forwarded to
// viewers. Everything else, caching and auth headers included, is dropped so
// upstream credentials never leak and private content is never cached.
var passthroughHeaderNames = []string{
	"Content-Type",
	"Content-Length",
	"Accept-Ranges",
	"Content-Range",
}

func passthroughHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(passthroughHeaderNames))
	for _, name := range passthroughHeaderNames {
		if value := src.Get(name); value != "" {
			dst.Set(name, value)
		}
	}
	return dst
}
