package authapi

import (
	"time"

	"callboard/cmd/internal/presence"
)

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type presenceRequest struct {
	Status      string `json:"status"`
	PauseReason string `json:"pause_reason"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type signInResponse struct {
	User userResponse `json:"user"`
}

type presenceResponse struct {
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	PauseReason string     `json:"pause_reason,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Version     int64      `json:"version"`
	Applied     *bool      `json:"applied,omitempty"`
}

func toPresenceResponse(row presence.AgentPresence) presenceResponse {
	resp := presenceResponse{
		UserID:      row.UserID,
		Status:      string(row.Status),
		PauseReason: string(row.PauseReason),
		Version:     row.Version,
	}
	if !row.LastActive.IsZero() {
		t := row.LastActive
		resp.LastUpdated = &t
	}
	return resp
}
