package session

// CookieName is the HTTP cookie that carries the opaque session token.
// Shared by the auth handlers (which set and clear it) and the websocket
// gateway (which reads it during the upgrade handshake).
const CookieName = "session"
