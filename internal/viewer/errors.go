package viewer

import "errors"

var (
	// ErrInvalidLink covers missing, expired, and revoked tokens. The three
	// are deliberately indistinguishable to the viewer.
	ErrInvalidLink = errors.New("invalid or expired link")
	// ErrSessionLocked covers a lock held by another session and an exhausted
	// lifetime quota, again deliberately indistinguishable.
	ErrSessionLocked = errors.New("link locked to another session")
	// ErrUpstreamUnavailable indicates a transient store or upstream failure.
	// Safe for the caller to retry; never changes lock state.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
