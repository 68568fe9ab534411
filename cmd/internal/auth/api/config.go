package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Session cookie attributes. Name, HttpOnly, and SameSite are fixed;
	// only path and the Secure flag are configurable.
	CookiePath   string
	CookieSecure bool

	SignInIPMax    int
	SignInIPWindow time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables with safe
// defaults. The Secure cookie flag defaults on when CALLBOARD_ENV is
// "production".
func LoadConfigFromEnv() Config {
	prod := strings.EqualFold(strings.TrimSpace(os.Getenv("CALLBOARD_ENV")), "production")

	cfg := Config{
		TrustProxy:     envBool("CALLBOARD_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("CALLBOARD_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CookiePath:     envString("CALLBOARD_AUTH_COOKIE_PATH", "/"),
		CookieSecure:   envBool("CALLBOARD_AUTH_COOKIE_SECURE", prod),
		SignInIPMax:    envInt("CALLBOARD_AUTH_SIGNIN_IP_MAX", 20),
		SignInIPWindow: envDuration("CALLBOARD_AUTH_SIGNIN_IP_WINDOW", 5*time.Minute),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.SignInIPMax <= 0 {
		cfg.SignInIPMax = 20
	}

	return cfg
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
