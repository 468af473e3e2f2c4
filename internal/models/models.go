package models

import "time"

// Video references a privately stored media file that share links can be minted for.
type Video struct {
	ID            string
	Title         string
	BackingFileID string
	SourceURL     string
	CreatedAt     time.Time
}

// VideoToken is the unit of shareable access: an opaque link token bound to a
// single video, optionally locked to the one viewer session that holds it.
type VideoToken struct {
	Token        string
	VideoID      string
	SessionID    *string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	MaxSessions  int
	SessionCount int
}

// Locked reports whether any session currently holds the token.
func (t VideoToken) Locked() bool {
	return t.SessionID != nil && *t.SessionID != ""
}

// HeldBy reports whether the provided session currently holds the token.
func (t VideoToken) HeldBy(sessionID string) bool {
	return sessionID != "" && t.SessionID != nil && *t.SessionID == sessionID
}

// LockResult describes the outcome of a session attempting to claim a token.
type LockResult int

const (
	// LockGranted means the session acquired the lock, spending one unit of
	// the token's lifetime session quota.
	LockGranted LockResult = iota
	// LockAlreadyHeld means the session already holds the lock; no write occurred.
	LockAlreadyHeld
	// LockHeldByOther means a different session holds the lock.
	LockHeldByOther
	// LockQuotaExhausted means the token is unlocked but its lifetime quota is
	// spent, so no session can ever claim it again.
	LockQuotaExhausted
)

// Authorized reports whether the result permits the caller to proceed.
func (r LockResult) Authorized() bool {
	return r == LockGranted || r == LockAlreadyHeld
}

func (r LockResult) String() string {
	switch r {
	case LockGranted:
		return "granted"
	case LockAlreadyHeld:
		return "already-held"
	case LockHeldByOther:
		return "held-by-other"
	case LockQuotaExhausted:
		return "quota-exhausted"
	default:
		return "unknown"
	}
}
