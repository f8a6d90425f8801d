package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, refresh-token lifetimes, clock skew tolerance,
// refresh entropy size, and the HMAC signing secret for access tokens.
//
// The signing secret is threaded through explicitly rather than read from
// ambient state at the point of use, which keeps key rotation and test
// isolation possible.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of signed access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL is the session lifetime for ordinary logins.
	// RefreshTTLRemember applies when the client asked to be remembered.
	RefreshTTL         time.Duration
	RefreshTTLRemember time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh tokens.
	RefreshTokenBytes int

	// JWTSecret is the symmetric HS256 signing key for access tokens.
	JWTSecret string
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:             "wren",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		RefreshTTLRemember: 30 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RefreshTokenBytes:  32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - WREN_JWT_SECRET (min 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - WREN_AUTH_ISSUER
//   - WREN_AUTH_ACCESS_TTL
//   - WREN_AUTH_REFRESH_TTL
//   - WREN_AUTH_REFRESH_TTL_REMEMBER
//   - WREN_AUTH_CLOCK_SKEW
//   - WREN_AUTH_REFRESH_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WREN_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("WREN_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("WREN_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("WREN_AUTH_REFRESH_TTL_REMEMBER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTLRemember = d
	}

	if v := os.Getenv("WREN_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("WREN_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	cfg.JWTSecret = os.Getenv("WREN_JWT_SECRET")
	if len(cfg.JWTSecret) < 32 {
		return Config{}, ErrConfig
	}

	// Invariant: remembered sessions never live shorter than ordinary ones.
	if cfg.RefreshTTLRemember < cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
