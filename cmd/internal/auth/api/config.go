package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// IP-scoped login throttling.
	LoginIPMax    int
	LoginIPWindow time.Duration

	// Identifier-scoped progressive lockout.
	LockoutWindow          time.Duration
	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration

	// Web cookie transport for refresh tokens.
	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:   envBool("WREN_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("WREN_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB

		LoginIPMax:    envInt("WREN_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow: envDuration("WREN_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),

		LockoutWindow:          envDuration("WREN_AUTH_LOCKOUT_WINDOW", 15*time.Minute),
		LockoutShortThreshold:  envInt("WREN_AUTH_LOCKOUT_SHORT_THRESHOLD", 5),
		LockoutShortDuration:   envDuration("WREN_AUTH_LOCKOUT_SHORT_DURATION", 5*time.Minute),
		LockoutLongThreshold:   envInt("WREN_AUTH_LOCKOUT_LONG_THRESHOLD", 10),
		LockoutLongDuration:    envDuration("WREN_AUTH_LOCKOUT_LONG_DURATION", 30*time.Minute),
		LockoutSevereThreshold: envInt("WREN_AUTH_LOCKOUT_SEVERE_THRESHOLD", 20),
		LockoutSevereDuration:  envDuration("WREN_AUTH_LOCKOUT_SEVERE_DURATION", 2*time.Hour),

		WebRefreshCookieEnabled: envBool("WREN_AUTH_WEB_COOKIES", true),
		RefreshCookieName:       envString("WREN_AUTH_REFRESH_COOKIE", "wren_refresh"),
		CSRFCookieName:          envString("WREN_AUTH_CSRF_COOKIE", "wren_csrf"),
		CSRFHeaderName:          envString("WREN_AUTH_CSRF_HEADER", "X-Wren-CSRF"),
		CookiePath:              envString("WREN_AUTH_COOKIE_PATH", "/auth"),
		CookieDomain:            envString("WREN_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:            envBool("WREN_AUTH_COOKIE_SECURE", true),
		CookieSameSite:          parseSameSite(os.Getenv("WREN_AUTH_COOKIE_SAMESITE")),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginIPMax <= 0 {
		cfg.LoginIPMax = 20
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "strict", "":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteStrictMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
