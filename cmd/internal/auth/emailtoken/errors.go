package emailtoken

import "errors"

var (
	// ErrInvalidToken is returned when a token matches no stored row,
	// including a token that was already consumed.
	ErrInvalidToken = errors.New("invalid email token")

	// ErrTokenExpired is returned when the token exists but is past expiry.
	// The row is deleted as a side effect, so a retry with the same token
	// fails with ErrInvalidToken.
	ErrTokenExpired = errors.New("email token expired")

	// ErrAlreadyVerified is returned when a verification token is requested
	// for a user whose email is already verified.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrUserNotFound is returned when a reset is requested for an unknown
	// email. Callers exposed to untrusted clients must flatten this into the
	// same response as success to avoid user enumeration.
	ErrUserNotFound = errors.New("user not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
