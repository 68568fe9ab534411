package session

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"callboard/cmd/security/token"
)

// tokenEncoding is lowercase base32 without padding. Lowercase keeps the
// cookie value stable under clients that normalize case.
var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newOpaqueToken generates an opaque session token and ID pair.
// The plaintext token is never persisted; the hex hash is the session ID.
func newOpaqueToken(nBytes int) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	plain = strings.ToLower(tokenEncoding.EncodeToString(b))
	hashHex = token.HashSessionTokenHex(plain) // 64 hex chars

	return plain, hashHex, nil
}

// hashTokenHex computes the session ID for a presented token.
func hashTokenHex(plain string) string {
	return token.HashSessionTokenHex(plain)
}
