// Package authapi exposes account endpoints: signup, login, profile,
// password change, and admin user management.
package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/internal/auth/session"
	"github.com/Azuko9/forum-app/cmd/internal/httpx"
	"github.com/Azuko9/forum-app/cmd/security/token"
)

// Issuer mints access tokens for authenticated users.
type Issuer interface {
	Issue(sub token.Subject) (string, error)
}

// Handler wires HTTP auth endpoints to the accounts service.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts *identity.Service
	tokens   Issuer
	guard    *session.Guard
	throttle *loginThrottle
	metrics  *auditMetrics

	now func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler) error

// WithRegisterer registers the auth event counter with reg.
func WithRegisterer(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) error {
		m, err := newAuditMetrics(reg)
		if err != nil {
			return err
		}
		h.metrics = m
		return nil
	}
}

// WithClock overrides the time source used for throttling.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) error {
		if now != nil {
			h.now = now
		}
		return nil
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts *identity.Service, tokens Issuer, guard *session.Guard, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil {
		return nil, errors.New("auth: nil accounts service")
	}
	if tokens == nil {
		return nil, errors.New("auth: nil token issuer")
	}
	if guard == nil {
		return nil, errors.New("auth: nil guard")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		tokens:   tokens,
		guard:    guard,
		throttle: newLoginThrottle(cfg),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	adminOnly := h.guard.RequireRoles(identity.RoleAdmin)

	mux.HandleFunc("POST /api/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.Handle("GET /api/user/profile", h.guard.RequireFunc(h.handleProfile))
	mux.Handle("PUT /api/user/password", h.guard.RequireFunc(h.handleChangePassword))
	mux.Handle("GET /api/users", h.guard.Require(adminOnly(http.HandlerFunc(h.handleListUsers))))
	mux.Handle("PUT /api/users/{id}/role", h.guard.Require(adminOnly(http.HandlerFunc(h.handleSetRole))))
}

// ---- handlers ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req identity.SignupInput
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	u, err := h.accounts.CreateUser(ctx, req)
	if err != nil {
		switch {
		case identity.IsInvalidInput(err):
			httpx.WriteValidationError(w, "invalid input", identity.FieldErrors(err))
		case identity.IsConflict(err):
			field := identity.ConflictField(err)
			h.auditSignupConflict(ctx, field, ip, ua)
			if field == "username" {
				httpx.WriteError(w, http.StatusBadRequest, "username_taken", "username already taken")
				return
			}
			httpx.WriteError(w, http.StatusBadRequest, "user_exists", "user already exists")
		default:
			h.log.Error("auth.signup.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditSignup(ctx, u.ID, ip, ua)
	httpx.WriteJSON(w, http.StatusCreated, signupResponse{
		Message: "User created successfully",
		User:    toUserResponse(u),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()
	identifier := identity.NormalizeEmail(req.Email)

	if blocked, retryAfter := h.throttle.check(ip, identifier, now); blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.throttle.fail(ip, identifier, now)
			h.auditLoginFailed(ctx, ip, ua, identifier, "invalid_credentials")
			httpx.WriteError(w, http.StatusBadRequest, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	tok, err := h.tokens.Issue(token.Subject{ID: u.ID, Username: u.Username, Role: string(u.Role)})
	if err != nil {
		h.log.Error("auth.login.issue_token.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.throttle.succeed(ip, identifier)
	h.auditLoginSuccess(ctx, u.ID, ip, ua, identifier)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: tok, Message: "Login successful"})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	u, err := h.accounts.Profile(r.Context(), p.ID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("auth.profile.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if fields := missingFields(map[string]string{
		"currentPassword": req.CurrentPassword,
		"newPassword":     req.NewPassword,
	}); len(fields) > 0 {
		httpx.WriteValidationError(w, "currentPassword and newPassword are required", fields)
		return
	}

	ctx := r.Context()
	err := h.accounts.UpdatePassword(ctx, p.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case identity.IsInvalidCredentials(err):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_credentials", "current password is incorrect")
		return
	case identity.IsInvalidInput(err):
		httpx.WriteValidationError(w, "invalid input", identity.FieldErrors(err))
		return
	case identity.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
		return
	default:
		h.log.Error("auth.password.change.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditPasswordChanged(ctx, p.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context())
	if err != nil {
		h.log.Error("auth.users.list.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponses(users))
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req setRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, valid := identity.ParseRole(req.Role)
	if !valid {
		httpx.WriteValidationError(w, "invalid role", map[string]string{"role": "must be user or admin"})
		return
	}

	ctx := r.Context()
	target := r.PathValue("id")
	u, err := h.accounts.SetRole(ctx, target, role)
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
		case identity.IsInvalidInput(err):
			httpx.WriteValidationError(w, "invalid input", identity.FieldErrors(err))
		default:
			h.log.Error("auth.role.set.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRoleChanged(ctx, p.ID, u.ID, string(u.Role), clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// ---- helpers ----

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := session.PrincipalFrom(r.Context())
	if !ok || p.ID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "no token provided")
		return identity.Principal{}, false
	}
	return p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		if httpx.IsBodyTooLarge(err) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	return true
}

func missingFields(values map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			out[k] = "cannot be blank"
		}
	}
	return out
}
