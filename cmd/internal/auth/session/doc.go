// Package session implements Callboard's session subsystem.
//
// It provides a multi-device session model with opaque tokens and a
// 30-day sliding expiry: validation renews the expiry whenever less than
// the renewal window remains.
//
// Tokens are 160 bits of cryptographically secure randomness encoded as
// lowercase base32 without padding. They are never logged or persisted in
// raw form; only the SHA-256 hex digest (HMAC-SHA256 when
// CALLBOARD_TOKEN_HMAC_KEY is set) is stored, and that digest doubles as
// the session ID.
//
// Transport (cookie/WS) integration is intentionally out of scope here.
package session
