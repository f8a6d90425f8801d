package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, WREN_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// CORS policy for browser clients. Empty list disables CORS handling.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("WREN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WREN_LOG_LEVEL", "info"),
		LogFormat: EnvString("WREN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("WREN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WREN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WREN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WREN_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WREN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WREN_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WREN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WREN_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("WREN_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("WREN_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvStringList("WREN_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("WREN_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("WREN_CORS_MAX_AGE_SECONDS", 600),
	}
}
