package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"callboard/cmd/internal/auth/session"
	"callboard/cmd/internal/directory"
	"callboard/cmd/internal/presence"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler wires the HTTP auth and presence endpoints to the session
// manager, user directory, and presence state machine.
type Handler struct {
	log *slog.Logger
	cfg Config

	// pool is optional; audit rows are skipped when nil (in-memory mode).
	pool *pgxpool.Pool

	users    directory.Store
	sessions *session.Manager
	machine  *presence.Machine
	activity ActivityPublisher

	throttle *signInThrottle

	// Dummy hash for timing-resistant sign-in checks.
	dummyHash string
}

// NewHandler constructs the auth Handler. pool and activity may be nil.
func NewHandler(log *slog.Logger, cfg Config, pool *pgxpool.Pool, users directory.Store, sessions *session.Manager, machine *presence.Machine, activity ActivityPublisher) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("authapi: nil user directory")
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session manager")
	}
	if machine == nil {
		return nil, errors.New("authapi: nil presence machine")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		pool:     pool,
		users:    users,
		sessions: sessions,
		machine:  machine,
		activity: activity,
		throttle: newSignInThrottle(cfg.SignInIPMax, cfg.SignInIPWindow),
	}

	if hash, err := directory.HashPassword("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/sign-in", h.handleSignIn)
	mux.HandleFunc("/auth/sign-out", h.handleSignOut)
	mux.HandleFunc("/presence", h.handlePresenceSelf)
	mux.HandleFunc("/presence/me", h.handlePresenceMe)
	mux.HandleFunc("/presence/agents/", h.handlePresenceAgent)
}

// ---- handlers ----

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signInRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	password := req.Password
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter := h.throttle.blocked(ipKey(ip), now); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	user, hash, err := h.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, directory.ErrUserNotFound) {
			h.log.Error("auth.sign_in.lookup.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
			return
		}
		// Timing resistance: perform a dummy verify when user is missing.
		if h.dummyHash != "" {
			_, _ = directory.VerifyPassword(password, h.dummyHash)
		}
		h.throttle.fail(ipKey(ip), now)
		h.auditSignInFailed(ctx, nil, ip, ua, username, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := directory.VerifyPassword(password, hash)
	if err != nil || !okPw {
		h.throttle.fail(ipKey(ip), now)
		h.auditSignInFailed(ctx, &user.ID, ip, ua, username, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	token, err := h.sessions.IssueToken()
	if err != nil {
		h.log.Error("auth.sign_in.issue_token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	rec, err := h.sessions.CreateSession(ctx, now, token, user.ID)
	if err != nil {
		h.log.Error("auth.sign_in.create_session.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
		return
	}

	h.setSessionCookie(w, token, rec.ExpiresAt)

	// Presence is forced ONLINE as part of signing in. A degraded presence
	// store does not fail an otherwise valid sign-in.
	if _, err := h.machine.ForceOnline(ctx, user.ID, now); err != nil {
		h.log.Error("auth.sign_in.force_online.fail", "err", err, "user_id", user.ID)
	}

	h.auditSignIn(ctx, user.ID, ip, ua, now)

	writeJSON(w, http.StatusOK, signInResponse{User: toUserResponse(user)})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ident, cache, token, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.sessions.Invalidate(ctx, ident.Session.ID); err != nil {
		h.log.Error("auth.sign_out.invalidate.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
		return
	}
	cache.Forget(token)

	if _, err := h.machine.ForceOffline(ctx, ident.User.ID, now); err != nil {
		h.log.Error("auth.sign_out.force_offline.fail", "err", err, "user_id", ident.User.ID)
	}

	h.clearSessionCookie(w)
	h.auditSignOut(ctx, ident.User.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), now)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePresenceMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ident, _, _, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	row, err := h.machine.Current(r.Context(), ident.User.ID)
	if err != nil {
		h.log.Error("presence.me.fail", "err", err, "user_id", ident.User.ID)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
		return
	}

	writeJSON(w, http.StatusOK, toPresenceResponse(row))
}

func (h *Handler) handlePresenceSelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ident, _, _, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	h.applyTransition(w, r, ident.User, ident.User.ID)
}

func (h *Handler) handlePresenceAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	targetID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/presence/agents/"))
	if targetID == "" || strings.Contains(targetID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown agent path")
		return
	}

	ident, _, _, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	h.applyTransition(w, r, ident.User, targetID)
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, actor directory.User, targetID string) {
	var req presenceRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	res, err := h.machine.Transition(ctx, actor, targetID,
		presence.Status(strings.TrimSpace(req.Status)),
		presence.PauseReason(strings.TrimSpace(req.PauseReason)),
		now,
	)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	if res.Applied {
		h.auditPresenceChange(ctx, actor.ID, targetID,
			string(res.Presence.Status), string(res.Presence.PauseReason),
			clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), now)
	}

	resp := toPresenceResponse(res.Presence)
	resp.Applied = &res.Applied
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, presence.ErrUnauthorizedTransition):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed to change this agent's status")
	case errors.Is(err, presence.ErrInvalidStatus):
		writeError(w, http.StatusUnprocessableEntity, "invalid_status", "unknown status")
	case errors.Is(err, presence.ErrPauseReasonRequired):
		writeError(w, http.StatusUnprocessableEntity, "pause_reason_required", "PAUSED requires a pause reason from the fixed set")
	case errors.Is(err, presence.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	default:
		h.log.Error("presence.transition.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ---- session plumbing ----

// requireSession resolves the session cookie. The returned cache is
// request-scoped; sign-out uses it to forget the entry it validated.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (session.Identity, *session.Cache, string, bool) {
	ck, err := r.Cookie(session.CookieName)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return session.Identity{}, nil, "", false
	}

	cache := session.NewCache(h.sessions)
	ident, ok := cache.Validate(r.Context(), time.Now().UTC(), ck.Value)
	if !ok {
		// An invalid cookie is cleared so clients stop replaying it.
		h.clearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return session.Identity{}, nil, "", false
	}
	return ident, cache, ck.Value, true
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     h.cfg.CookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
