package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit). Inbound traffic is
	// keepalives only, so this is deliberately small.
	maxFrameBytes = 4 << 10 // 4 KiB

	// Per-connection outbound queue capacity. When full, the oldest queued
	// event is dropped to make room; the publisher never blocks.
	defaultSendQueueSize = 32
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Liveness reaper defaults: connections with no keepalive or read
	// activity inside the window are unregistered by the periodic sweep.
	reaperInterval = 30 * time.Second
	livenessWindow = 2 * time.Minute

	// Per-connection rate limits (keepalives/events per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
