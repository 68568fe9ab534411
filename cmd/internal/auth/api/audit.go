package authapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"
)

// ActivityPublisher mirrors audited actions onto the realtime activity
// feed. Implemented by realtime.Broadcaster; nil disables fanout.
type ActivityPublisher interface {
	ActivityLog(actorID, action, detail string, now time.Time)
}

func (h *Handler) auditSignInFailed(ctx context.Context, userID *string, ip net.IP, ua, username, reason string) {
	h.insertAudit(ctx, "auth.sign_in.failed", userID, ip, ua, map[string]any{
		"username": username,
		"reason":   reason,
	})
}

func (h *Handler) auditSignIn(ctx context.Context, userID string, ip net.IP, ua string, now time.Time) {
	h.insertAudit(ctx, "auth.sign_in", &userID, ip, ua, nil)
	if h.activity != nil {
		h.activity.ActivityLog(userID, "sign-in", "", now)
	}
}

func (h *Handler) auditSignOut(ctx context.Context, userID string, ip net.IP, ua string, now time.Time) {
	h.insertAudit(ctx, "auth.sign_out", &userID, ip, ua, nil)
	if h.activity != nil {
		h.activity.ActivityLog(userID, "sign-out", "", now)
	}
}

func (h *Handler) auditPresenceChange(ctx context.Context, actorID, targetID, status, reason string, ip net.IP, ua string, now time.Time) {
	h.insertAudit(ctx, "presence.change", &actorID, ip, ua, map[string]any{
		"target_id":    targetID,
		"status":       status,
		"pause_reason": reason,
	})
	if h.activity != nil {
		detail := status
		if reason != "" {
			detail += "/" + reason
		}
		if actorID != targetID {
			detail += " (by " + actorID + ")"
		}
		h.activity.ActivityLog(targetID, "status-change", detail, now)
	}
}

func (h *Handler) insertAudit(ctx context.Context, action string, userID *string, ip net.IP, ua string, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO callboard.audit_log (
			user_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, userID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
