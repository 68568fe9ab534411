// Package v1 defines the Callboard realtime wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and browser clients to keep the envelope
// format authoritative in one place.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeAgentStatusUpdate announces an applied presence transition
	// (server -> agent's own connections + their supervisor's connections).
	TypeAgentStatusUpdate = "agent-status-update"

	// TypeSystemNotification carries an operational notice
	// (server -> all connections, optionally restricted to one role).
	TypeSystemNotification = "system-notification"

	// TypeActivityLog mirrors the activity feed visible to all signed-in
	// roles (server -> all connections).
	TypeActivityLog = "activity-log"

	// TypeKeepalive refreshes connection liveness (client -> server).
	// Connections with no keepalive inside the configured window are reaped.
	TypeKeepalive = "keepalive"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper for every realtime message.
type Envelope struct {
	V         string          `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeAgentStatusUpdate,
		TypeSystemNotification,
		TypeActivityLog,
		TypeKeepalive,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// AgentStatusUpdatePayload is broadcast when a presence transition is applied.
type AgentStatusUpdatePayload struct {
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	PauseReason string    `json:"pause_reason,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	Version     int64     `json:"version"`
}

// SystemNotificationPayload is an operational notice. Role restricts delivery
// to connections of that role; empty means every connection.
type SystemNotificationPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Role    string `json:"role,omitempty"`
}

// ActivityLogPayload mirrors an activity-feed entry visible to all roles.
type ActivityLogPayload struct {
	ActorID string    `json:"actor_id"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// KeepalivePayload is sent by clients to refresh liveness.
type KeepalivePayload struct{}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
