package emailtoken

import (
	"os"
	"strings"
	"time"
)

// Config defines token lifetimes and link construction for outbound email.
type Config struct {
	// VerifyTTL is the lifetime of email-verification tokens.
	// ResetTTL is the lifetime of password-reset tokens.
	VerifyTTL time.Duration
	ResetTTL  time.Duration

	// TokenBytes is the number of random bytes per token.
	TokenBytes int

	// PublicBaseURL is the externally reachable origin embedded in email
	// links, e.g. "https://wren.example".
	PublicBaseURL string
}

// DefaultConfig returns the standard token policy.
func DefaultConfig() Config {
	return Config{
		VerifyTTL:     24 * time.Hour,
		ResetTTL:      time.Hour,
		TokenBytes:    32,
		PublicBaseURL: "http://localhost:3000",
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Optional:
//   - WREN_EMAIL_VERIFY_TTL
//   - WREN_EMAIL_RESET_TTL
//   - WREN_PUBLIC_BASE_URL
//
// Returns ErrConfig if any provided value is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WREN_EMAIL_VERIFY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.VerifyTTL = d
	}

	if v := os.Getenv("WREN_EMAIL_RESET_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.ResetTTL = d
	}

	if v := os.Getenv("WREN_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
		if cfg.PublicBaseURL == "" {
			return Config{}, ErrConfig
		}
	}

	return cfg, nil
}

func (c Config) ttl(kind Kind) time.Duration {
	if kind == KindReset {
		return c.ResetTTL
	}
	return c.VerifyTTL
}
