package session

import (
	"context"
	"time"
)

// Row mirrors a wren.sessions row: one logged-in device/browser.
// Only the hash of the refresh token is stored, never the token itself.
type Row struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	RememberMe       bool
	DeviceInfo       *string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// RotateInput carries everything a store needs to rotate a refresh token
// in place. The store picks the TTL based on the row's RememberMe flag.
type RotateInput struct {
	Now         time.Time
	OldHash     string
	NewHash     string
	TTL         time.Duration
	RememberTTL time.Duration
}

// Store abstracts persistence for session state.
//
// RotateRefresh is the critical contract: two concurrent calls with the same
// OldHash must not both succeed. Implementations serialize the lookup and
// overwrite (row lock in a transaction, or a mutex) so the loser observes the
// new hash and fails with ErrInvalidToken.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, row Row) error

	// GetByRefreshHash loads a session by refresh token hash.
	// Returns ErrInvalidToken when no session matches.
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// RotateRefresh atomically replaces the hash and expiry of the session
	// matching OldHash, preserving the row id (one-session-per-device).
	// Returns:
	//   - ErrInvalidToken when no session matches OldHash
	//   - ErrTokenExpired when the session is past expiry; the row is deleted
	//     as a side effect so the token cannot be presented again
	RotateRefresh(ctx context.Context, in RotateInput) (Row, error)

	// DeleteByRefreshHash removes the matching session.
	// Missing rows are not an error (idempotent logout).
	DeleteByRefreshHash(ctx context.Context, refreshHash string) error

	// DeleteExpiredForUser garbage-collects the user's expired sessions.
	// Best-effort; not correctness-critical.
	DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) error
}
