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

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, CALLBOARD_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and session-token hashing must be HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("CALLBOARD_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CALLBOARD_LOG_LEVEL", "info"),
		LogFormat: EnvString("CALLBOARD_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("CALLBOARD_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CALLBOARD_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CALLBOARD_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CALLBOARD_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CALLBOARD_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("CALLBOARD_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("CALLBOARD_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("CALLBOARD_DB_MIN_CONNS", 0),

		CORSAllowedOrigins:   EnvCSV("CALLBOARD_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("CALLBOARD_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("CALLBOARD_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("CALLBOARD_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("CALLBOARD_REQUIRE_TOKEN_HMAC", false),
	}
}
