package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/videovault/backend/internal/models"
)

var (
	// ErrTokenNotFound indicates the provided link token does not exist.
	ErrTokenNotFound = errors.New("link token not found")
	// ErrInvalidInput indicates the creation parameters were rejected.
	ErrInvalidInput = errors.New("invalid token parameters")
)

// Store persists link tokens. Transact must apply the mutation as a single
// atomic read-modify-write on the addressed record: concurrent calls for the
// same token never interleave, and the write is all-or-nothing.
type Store interface {
	Insert(ctx context.Context, record models.VideoToken) error
	Find(ctx context.Context, token string) (models.VideoToken, error)
	ListByVideo(ctx context.Context, videoID string) ([]models.VideoToken, error)
	Transact(ctx context.Context, token string, mutate func(*models.VideoToken) error) (models.VideoToken, error)
}

// Manager owns the link-token lifecycle: creation, the session-locking
// protocol, reset, and revocation. All mutations flow through the Store's
// transactional primitive; records are never written field-by-field.
type Manager struct {
	defaultTTL         time.Duration
	defaultMaxSessions int

	store Store
	now   func() time.Time
}

// NewManager constructs a Manager applying the provided defaults when token
// creation omits an expiry or session quota.
func NewManager(defaultTTL time.Duration, defaultMaxSessions int, store Store) *Manager {
	if store == nil {
		panic("tokens: store must not be nil")
	}
	if defaultTTL <= 0 {
		defaultTTL = 7 * 24 * time.Hour
	}
	if defaultMaxSessions < 1 {
		defaultMaxSessions = 1
	}
	return &Manager{
		defaultTTL:         defaultTTL,
		defaultMaxSessions: defaultMaxSessions,
		store:              store,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (m *Manager) WithNowFunc(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Create mints a fresh unlocked token for the provided video. A zero expiresAt
// defaults to now plus the configured TTL; a zero maxSessions defaults to the
// configured quota. An expiry in the past or a negative quota is rejected.
func (m *Manager) Create(ctx context.Context, videoID string, expiresAt time.Time, maxSessions int) (models.VideoToken, error) {
	if videoID == "" {
		return models.VideoToken{}, fmt.Errorf("%w: video id is required", ErrInvalidInput)
	}

	now := m.now()

	if expiresAt.IsZero() {
		expiresAt = now.Add(m.defaultTTL)
	} else if !expiresAt.After(now) {
		return models.VideoToken{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	if maxSessions == 0 {
		maxSessions = m.defaultMaxSessions
	} else if maxSessions < 1 {
		return models.VideoToken{}, fmt.Errorf("%w: max sessions must be at least 1", ErrInvalidInput)
	}

	record := models.VideoToken{
		Token:        uuid.NewString(),
		VideoID:      videoID,
		SessionID:    nil,
		CreatedAt:    now,
		ExpiresAt:    expiresAt.UTC(),
		RevokedAt:    nil,
		MaxSessions:  maxSessions,
		SessionCount: 0,
	}

	if err := m.store.Insert(ctx, record); err != nil {
		return models.VideoToken{}, fmt.Errorf("insert link token: %w", err)
	}

	return record, nil
}

// Find loads a token record without mutating it.
func (m *Manager) Find(ctx context.Context, token string) (models.VideoToken, error) {
	return m.store.Find(ctx, token)
}

// ListByVideo returns every token minted for a video, newest first.
func (m *Manager) ListByVideo(ctx context.Context, videoID string) ([]models.VideoToken, error) {
	return m.store.ListByVideo(ctx, videoID)
}

// TryLock runs the session-locking protocol as one atomic transaction against
// the store. Two sessions racing on a never-locked token never both observe
// LockGranted. Expiry and revocation are deliberately not checked here; the
// caller short-circuits on those before attempting a write.
func (m *Manager) TryLock(ctx context.Context, token, sessionID string) (models.LockResult, error) {
	if sessionID == "" {
		return models.LockHeldByOther, errors.New("session id must be provided")
	}

	result := models.LockHeldByOther

	_, err := m.store.Transact(ctx, token, func(record *models.VideoToken) error {
		switch {
		case record.HeldBy(sessionID):
			result = models.LockAlreadyHeld
			return nil
		case record.Locked():
			result = models.LockHeldByOther
			return nil
		case record.SessionCount >= record.MaxSessions:
			result = models.LockQuotaExhausted
			return nil
		default:
			sid := sessionID
			record.SessionID = &sid
			record.SessionCount++
			result = models.LockGranted
			return nil
		}
	})
	if err != nil {
		return models.LockHeldByOther, err
	}

	return result, nil
}

// Reset unconditionally releases the current session lock. The lifetime
// session count is untouched, so a token can be reset at most MaxSessions
// times before its quota is exhausted for good.
func (m *Manager) Reset(ctx context.Context, token string) error {
	_, err := m.store.Transact(ctx, token, func(record *models.VideoToken) error {
		record.SessionID = nil
		return nil
	})
	return err
}

// Revoke permanently disables the token. Idempotent: the first revocation
// timestamp is preserved on repeat calls.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	_, err := m.store.Transact(ctx, token, func(record *models.VideoToken) error {
		if record.RevokedAt == nil {
			now := m.now()
			record.RevokedAt = &now
		}
		return nil
	})
	return err
}

// Usable reports whether a token record grants access at the provided
// instant: not revoked and not yet expired. An expiry equal to now counts as
// expired.
func Usable(record models.VideoToken, now time.Time) bool {
	return record.RevokedAt == nil && record.ExpiresAt.After(now)
}

// Now exposes the manager's clock so callers share its notion of time.
func (m *Manager) Now() time.Time {
	return m.now()
}
