package session

import "errors"

var (
	// ErrInvalidCredentials is returned when the login identifier or password
	// is wrong. The two cases are intentionally indistinguishable to the
	// caller to avoid user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a refresh token matches no session,
	// including a token that was already rotated away. After a rotation race,
	// the loser observes this error, which a defender can treat as a
	// compromise signal.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the session exists but is past expiry.
	// The expired row is deleted as a side effect, so a second attempt with
	// the same token fails with ErrInvalidToken.
	ErrTokenExpired = errors.New("token expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
