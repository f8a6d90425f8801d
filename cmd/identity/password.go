package identity

import (
	"errors"

	"wren/cmd/security/password"
)

// Password hashing for identity delegates to cmd/security/password as the
// single source of truth for Argon2id parameters and length policy.
// identity keeps a historical baseline of min length 8 and will honor a
// stricter env policy, never a weaker one.

// HashPassword returns a PHC-style Argon2id hash string.
func HashPassword(passwordPlain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		// Treat invalid env as an operational error, not a weak fallback.
		return "", err
	}
	if cfg.Policy.MinLength < 8 {
		cfg.Policy.MinLength = 8
	}

	enc, err := cfg.Hash(passwordPlain)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password too short"}
		case errors.Is(err, password.ErrPasswordTooLong):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password too long"}
		default:
			return "", err
		}
	}
	return enc, nil
}

// VerifyPassword checks a password against a PHC Argon2id hash.
// Strict PHC parsing; verification refuses hashes with parameters wildly
// above configured maxima.
func VerifyPassword(passwordPlain, encodedPHC string) (bool, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return false, err
	}
	return cfg.Verify(encodedPHC, passwordPlain)
}
