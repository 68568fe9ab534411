package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls session lifetime, the sliding-renewal window, and token
// entropy size.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// TTL is the session lifetime granted at creation and at each renewal.
	TTL time.Duration

	// RenewWithin is the sliding-window threshold: a validation that finds
	// strictly less than RenewWithin remaining extends the expiry to now+TTL.
	RenewWithin time.Duration

	// TokenBytes defines the number of random bytes used to generate
	// opaque session tokens (20 bytes = 160 bits).
	TokenBytes int
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		TTL:         30 * 24 * time.Hour,
		RenewWithin: 15 * 24 * time.Hour,
		TokenBytes:  20,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - CALLBOARD_SESSION_TTL
//   - CALLBOARD_SESSION_RENEW_WITHIN
//   - CALLBOARD_SESSION_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("CALLBOARD_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("CALLBOARD_SESSION_RENEW_WITHIN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RenewWithin = d
	}

	if v := os.Getenv("CALLBOARD_SESSION_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 20 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	// Invariants: the renewal window must fit inside the session lifetime,
	// otherwise every validation would renew.
	if cfg.RenewWithin >= cfg.TTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
