package videos

import (
	"context"
	"sync"
	"time"

	"github.com/videovault/backend/internal/models"
)

// Finder resolves video records by id.
type Finder interface {
	GetByID(ctx context.Context, id string) (models.Video, error)
}

type cacheEntry struct {
	video   models.Video
	expires time.Time
}

// CachingFinder wraps another Finder with a TTL-based in-memory cache. The
// streaming gate re-validates on every byte-range request, so without the
// cache each seek would cost an extra video row lookup.
type CachingFinder struct {
	base Finder
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingFinder returns a Finder that caches successful lookups for the
// provided TTL. Failed lookups are not cached.
func NewCachingFinder(base Finder, ttl time.Duration) *CachingFinder {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingFinder{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// GetByID returns the cached video when available, otherwise it delegates to
// the underlying finder and stores the result.
func (c *CachingFinder) GetByID(ctx context.Context, id string) (models.Video, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[id]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.video, nil
	}

	video, err := c.base.GetByID(ctx, id)
	if err != nil {
		return models.Video{}, err
	}

	c.mu.Lock()
	c.items[id] = cacheEntry{video: video, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return video, nil
}
