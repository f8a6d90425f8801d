package app

import (
	"errors"

	"wren/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// Fail-fast is intentional: the server must not silently fall back to
// weaker refresh-token hashing when the operator asked for HMAC.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: WREN_REQUIRE_TOKEN_HMAC=true but WREN_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: WREN_REQUIRE_TOKEN_HMAC=true but WREN_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// Guards against a future change reintroducing a plain SHA fallback under policy.
	if !token.HMACEnabled() {
		return errors.New("security policy: WREN_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
