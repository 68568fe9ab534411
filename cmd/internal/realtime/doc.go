// Package realtime pushes presence and operational events to signed-in
// browsers over WebSocket.
//
// The Registry tracks live connections, the Broadcaster fans envelopes
// out with per-event visibility, and the WSGateway owns the socket
// lifecycle (auth, origin policy, heartbeats, keepalives). Delivery is
// best-effort, at-most-once: a slow consumer loses its oldest queued
// events, never the publisher's time.
package realtime
