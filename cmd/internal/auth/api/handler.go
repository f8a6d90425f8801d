package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wren/cmd/identity"
	"wren/cmd/internal/auth/emailtoken"
	"wren/cmd/internal/auth/session"
	"wren/cmd/internal/metrics"
)

// Handler wires the HTTP auth endpoints to the session and email token
// services. All collaborators are injected, so the handler runs unchanged
// against Postgres stores in production and memory stores in dev and tests.
type Handler struct {
	log *slog.Logger
	cfg Config

	users       identity.Store
	sessions    *session.Service
	emailTokens *emailtoken.Service
	audit       Auditor
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service, emailTokens *emailtoken.Service, audit Auditor) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if audit == nil {
		audit = NoopAuditor{}
	}
	return &Handler{
		log:         log,
		cfg:         cfg,
		users:       users,
		sessions:    sessions,
		emailTokens: emailTokens,
		audit:       audit,
	}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/forgot", h.handleForgot)
	mux.HandleFunc("/auth/reset", h.handleReset)
	mux.HandleFunc("/auth/send-verification", h.handleSendVerification)
	mux.HandleFunc("/auth/verify-email", h.handleVerifyEmail)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, err := h.sessions.Register(ctx, now, session.RegisterInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "conflict", conflictMessage(err))
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid registration input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	metrics.Registrations.Inc()
	h.audit.Record(ctx, Event{Action: "auth.register", UserID: &u.ID,
		IP: clientIP(r, h.cfg.TrustProxy), UserAgent: r.UserAgent(), At: now})

	// Best effort: a failed send must not fail registration.
	h.maybeSendVerification(ctx, now, u.ID)

	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	identifier := normalizeIdentifier(req.Identifier)
	if identifier == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identifier and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	// Both throttles run before any credential work.
	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, ip, now); err != nil {
		h.log.Error("auth.login.throttle_ip.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		metrics.Logins.WithLabelValues("rate_limited").Inc()
		h.audit.Record(ctx, Event{Action: "auth.login.rate_limited", Identifier: identifier, IP: ip, UserAgent: ua, At: now,
			Meta: map[string]any{"retry_after_s": int64(retryAfter.Seconds())}})
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter, err := h.checkLoginIdentifierThrottle(ctx, identifier, now); err != nil {
		h.log.Error("auth.login.throttle_identifier.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		metrics.Logins.WithLabelValues("rate_limited").Inc()
		h.audit.Record(ctx, Event{Action: "auth.login.rate_limited", Identifier: identifier, IP: ip, UserAgent: ua, At: now,
			Meta: map[string]any{"retry_after_s": int64(retryAfter.Seconds())}})
		writeRateLimited(w, retryAfter)
		return
	}

	creds, err := h.sessions.Login(ctx, now, session.LoginInput{
		EmailOrUsername: identifier,
		Password:        req.Password,
		RememberMe:      req.RememberMe,
		DeviceInfo:      strings.TrimSpace(req.DeviceInfo),
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			metrics.Logins.WithLabelValues("invalid_credentials").Inc()
			h.audit.Record(ctx, Event{Action: actionLoginFailed, Identifier: identifier, IP: ip, UserAgent: ua, At: now})
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		metrics.Logins.WithLabelValues("error").Inc()
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	metrics.Logins.WithLabelValues("success").Inc()
	h.audit.Record(ctx, Event{Action: "auth.login.success", UserID: &creds.User.ID, SessionID: &creds.SessionID,
		Identifier: identifier, IP: ip, UserAgent: ua, At: now})

	respSession := toSessionResponse(creds)
	if h.cfg.WebRefreshCookieEnabled {
		if _, err := h.setWebSessionCookies(w, creds.RefreshToken, creds.RefreshExp); err != nil {
			h.log.Error("auth.login.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(creds.User),
		Session: respSession,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok && refreshToken == "" {
		fromCookie = true
		refreshToken = cookieToken
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	creds, err := h.sessions.Refresh(ctx, now, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			metrics.Refreshes.WithLabelValues("expired").Inc()
			h.audit.Record(ctx, Event{Action: "auth.refresh.expired", IP: ip, UserAgent: ua, At: now})
			writeError(w, http.StatusUnauthorized, "token_expired", "session expired")
		case errors.Is(err, session.ErrInvalidToken):
			// Unknown hash: either garbage or a replay of a rotated token.
			metrics.Refreshes.WithLabelValues("invalid").Inc()
			h.audit.Record(ctx, Event{Action: "auth.refresh.reuse_detected", IP: ip, UserAgent: ua, At: now})
			writeError(w, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
		default:
			metrics.Refreshes.WithLabelValues("error").Inc()
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	metrics.Refreshes.WithLabelValues("success").Inc()
	h.audit.Record(ctx, Event{Action: "auth.refresh.success", UserID: &creds.User.ID, SessionID: &creds.SessionID,
		IP: ip, UserAgent: ua, At: now})

	respSession := toSessionResponse(creds)
	if fromCookie || h.cfg.WebRefreshCookieEnabled {
		if _, err := h.setWebSessionCookies(w, creds.RefreshToken, creds.RefreshExp); err != nil {
			h.log.Error("auth.refresh.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, refreshResponse{Session: respSession})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		if cookieToken, ok := h.refreshTokenFromCookie(r); ok {
			refreshToken = cookieToken
		}
	}

	ctx := r.Context()
	// Logout succeeds whether or not the token matched anything.
	if err := h.sessions.Logout(ctx, refreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, Event{Action: "auth.logout", IP: clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(), At: time.Now().UTC()})
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	err := h.emailTokens.SendReset(ctx, now, email)
	switch {
	case err == nil:
		metrics.EmailsSent.WithLabelValues("reset").Inc()
		h.audit.Record(ctx, Event{Action: "auth.reset.requested", IP: clientIP(r, h.cfg.TrustProxy),
			UserAgent: r.UserAgent(), At: now})
	case errors.Is(err, emailtoken.ErrUserNotFound):
		// Fall through to the generic response below.
	default:
		h.log.Error("auth.forgot.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// Identical response whether or not the email exists.
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "if this email is registered, a reset link has been sent",
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.emailTokens.ResetPassword(ctx, now, req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, emailtoken.ErrTokenExpired):
			writeError(w, http.StatusBadRequest, "token_expired", "reset link expired")
		case errors.Is(err, emailtoken.ErrInvalidToken):
			writeError(w, http.StatusBadRequest, "invalid_token", "invalid reset link")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_password", "password does not meet policy")
		default:
			h.log.Error("auth.reset.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.audit.Record(ctx, Event{Action: "auth.reset.completed", IP: clientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(), At: now})

	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *Handler) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.emailTokens.SendVerification(ctx, now, claims.UserID); err != nil {
		switch {
		case errors.Is(err, emailtoken.ErrAlreadyVerified):
			writeError(w, http.StatusConflict, "already_verified", "email is already verified")
		case errors.Is(err, emailtoken.ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		default:
			h.log.Error("auth.send_verification.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	metrics.EmailsSent.WithLabelValues("verify").Inc()
	writeJSON(w, http.StatusOK, messageResponse{Message: "verification email sent"})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, err := h.emailTokens.VerifyEmail(ctx, now, token)
	if err != nil {
		switch {
		case errors.Is(err, emailtoken.ErrTokenExpired):
			writeError(w, http.StatusBadRequest, "token_expired", "verification link expired")
		case errors.Is(err, emailtoken.ErrInvalidToken):
			writeError(w, http.StatusBadRequest, "invalid_token", "invalid verification link")
		default:
			h.log.Error("auth.verify_email.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.audit.Record(ctx, Event{Action: "auth.email.verified", UserID: &u.ID,
		IP: clientIP(r, h.cfg.TrustProxy), UserAgent: r.UserAgent(), At: now})

	writeJSON(w, http.StatusOK, verifyEmailResponse{User: toUserResponse(u)})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.VerifyAccess(token, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func (h *Handler) maybeSendVerification(ctx context.Context, now time.Time, userID string) {
	if h == nil || h.emailTokens == nil {
		return
	}
	if err := h.emailTokens.SendVerification(ctx, now, userID); err != nil {
		h.log.Error("auth.email_verification.send.fail", "err", err, "user_id", userID)
		return
	}
	metrics.EmailsSent.WithLabelValues("verify").Inc()
}

// normalizeIdentifier lowercases email-shaped identifiers; usernames keep
// their exact form.
func normalizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "@") {
		return identity.NormalizeEmail(s)
	}
	return identity.NormalizeUsername(s)
}

func conflictMessage(err error) string {
	var ce identity.ConflictError
	if errors.As(err, &ce) && ce.Field != "" {
		return ce.Field + " is already taken"
	}
	return "email or username is already taken"
}
