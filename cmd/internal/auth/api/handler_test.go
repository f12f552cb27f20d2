package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/internal/auth/session"
	"github.com/Azuko9/forum-app/cmd/internal/httpx"
	"github.com/Azuko9/forum-app/cmd/security/password"
	"github.com/Azuko9/forum-app/cmd/security/token"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type testEnv struct {
	mux      *http.ServeMux
	handler  *Handler
	accounts *identity.Service
	tokens   *token.Service
	clock    *clock
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	pw := password.DefaultConfig()
	pw.Cost = bcrypt.MinCost

	accounts, err := identity.NewService(identity.NewMemoryStore(), pw)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}

	c := &clock{t: time.Now().UTC()}
	tokens, err := token.NewService(token.Config{Secret: []byte("authapi-test-secret")}, token.WithClock(c.Now))
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	log := slog.New(slog.DiscardHandler)
	reg := prometheus.NewRegistry()
	h, err := NewHandler(log, cfg, accounts, tokens, session.NewGuard(tokens, log),
		WithRegisterer(reg),
		WithClock(c.Now),
	)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{mux: mux, handler: h, accounts: accounts, tokens: tokens, clock: c, registry: reg}
}

func (e *testEnv) do(t *testing.T, method, target, auth, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4321"
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signup(t *testing.T, username, email, pw string) userResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"username":"`+username+`","email":"`+email+`","password":"`+pw+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decode[signupResponse](t, rec).User
}

func (e *testEnv) login(t *testing.T, email, pw string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"`+email+`","password":"`+pw+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	return "Bearer " + decode[loginResponse](t, rec).Token
}

// eventCount reads forum_auth_events_total{action=action} from the registry.
func (e *testEnv) eventCount(t *testing.T, action string) float64 {
	t.Helper()

	families, err := e.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "forum_auth_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "action" && lp.GetValue() == action {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSignup(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())

	u := e.signup(t, "alice", "Alice@Example.com", "correct-horse")
	if u.Email != "alice@example.com" || u.Role != "user" || u.ID == "" {
		t.Fatalf("unexpected user: %+v", u)
	}

	rec := e.do(t, http.MethodPost, "/api/auth/signup", "", `{"username":"alice2","email":"alice@example.com","password":"correct-horse"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email status=%d want 400", rec.Code)
	}
	env := decode[httpx.ErrorResponse](t, rec)
	if env.Error.Code != "user_exists" || env.Error.Message != "user already exists" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	rec = e.do(t, http.MethodPost, "/api/auth/signup", "", `{"username":"alice","email":"other@example.com","password":"correct-horse"}`)
	if rec.Code != http.StatusBadRequest || decode[httpx.ErrorResponse](t, rec).Error.Code != "username_taken" {
		t.Fatalf("duplicate username status=%d body=%s", rec.Code, rec.Body.String())
	}

	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Fatalf("response leaked hash field")
	}
	if got := e.eventCount(t, "auth.signup.conflict"); got != 2 {
		t.Fatalf("conflict counter=%v want 2", got)
	}
}

func TestSignup_Validation(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())

	rec := e.do(t, http.MethodPost, "/api/auth/signup", "", `{"username":"","email":"not-an-email","password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rec.Code)
	}
	env := decode[httpx.ErrorResponse](t, rec)
	if env.Error.Code != "validation_failed" {
		t.Fatalf("unexpected code: %+v", env)
	}
	for _, f := range []string{"username", "email"} {
		if env.Error.Fields[f] == "" {
			t.Fatalf("expected field error for %s: %+v", f, env.Error.Fields)
		}
	}

	rec = e.do(t, http.MethodPost, "/api/auth/signup", "", `not json`)
	if rec.Code != http.StatusBadRequest || decode[httpx.ErrorResponse](t, rec).Error.Code != "invalid_json" {
		t.Fatalf("malformed body status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())
	u := e.signup(t, "bob", "bob@example.com", "correct-horse")

	rec := e.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"bob@example.com","password":"wrong-horse"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong password status=%d want 400", rec.Code)
	}
	wrongPw := decode[httpx.ErrorResponse](t, rec)

	rec = e.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"nobody@example.com","password":"correct-horse"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown email status=%d want 400", rec.Code)
	}
	if unknown := decode[httpx.ErrorResponse](t, rec); unknown.Error.Code != wrongPw.Error.Code || unknown.Error.Message != wrongPw.Error.Message {
		t.Fatalf("unknown email and wrong password must look identical: %+v vs %+v", unknown, wrongPw)
	}

	rec = e.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"BOB@example.com","password":"correct-horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[loginResponse](t, rec)
	if resp.Token == "" || resp.Message == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	claims, err := e.tokens.Verify(resp.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.ID != u.ID || claims.Username != "bob" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if d := claims.ExpiresAt.Sub(claims.IssuedAt); d != token.DefaultTTL {
		t.Fatalf("token lifetime=%v want %v", d, token.DefaultTTL)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginIPMax = 3
	cfg.LoginIPWindow = time.Minute
	e := newTestEnv(t, cfg)
	e.signup(t, "carol", "carol@example.com", "correct-horse")

	for i := 0; i < 3; i++ {
		rec := e.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"carol@example.com","password":"nope-nope"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d status=%d want 400", i, rec.Code)
		}
	}

	rec := e.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"carol@example.com","password":"correct-horse"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	e.clock.t = e.clock.t.Add(2 * time.Minute)
	e.login(t, "carol@example.com", "correct-horse")
}

func TestProfile(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())
	u := e.signup(t, "dave", "dave@example.com", "correct-horse")
	auth := e.login(t, "dave@example.com", "correct-horse")

	rec := e.do(t, http.MethodGet, "/api/user/profile", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header status=%d want 401", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/user/profile", "Bearer garbage", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token status=%d want 403", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/user/profile", auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[userResponse](t, rec); got.ID != u.ID || got.Username != "dave" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	e.clock.t = e.clock.t.Add(token.DefaultTTL + time.Second)
	rec = e.do(t, http.MethodGet, "/api/user/profile", auth, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expired token status=%d want 403", rec.Code)
	}
}

func TestProfile_UserVanished(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())

	tok, err := e.tokens.Issue(token.Subject{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Username: "ghost"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := e.do(t, http.MethodGet, "/api/user/profile", "Bearer "+tok, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())
	e.signup(t, "erin", "erin@example.com", "correct-horse")
	auth := e.login(t, "erin@example.com", "correct-horse")

	rec := e.do(t, http.MethodPut, "/api/user/password", auth, `{"currentPassword":"wrong-horse","newPassword":"battery-staple"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong current status=%d want 400", rec.Code)
	}

	rec = e.do(t, http.MethodPut, "/api/user/password", auth, `{"currentPassword":"correct-horse"}`)
	if rec.Code != http.StatusBadRequest || decode[httpx.ErrorResponse](t, rec).Error.Fields["newPassword"] == "" {
		t.Fatalf("missing new password status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPut, "/api/user/password", auth, `{"currentPassword":"correct-horse","newPassword":"battery-staple"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("change status=%d body=%s", rec.Code, rec.Body.String())
	}

	if _, err := e.accounts.Authenticate(context.Background(), "erin@example.com", "correct-horse"); !identity.IsInvalidCredentials(err) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	e.login(t, "erin@example.com", "battery-staple")
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t, DefaultConfig())
	e.signup(t, "root", "root@example.com", "correct-horse")
	target := e.signup(t, "frank", "frank@example.com", "correct-horse")

	userAuth := e.login(t, "frank@example.com", "correct-horse")
	rec := e.do(t, http.MethodGet, "/api/users", userAuth, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin list status=%d want 403", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/users", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status=%d want 401", rec.Code)
	}

	if n, err := e.accounts.BootstrapAdmins(context.Background(), []string{"root@example.com"}); err != nil || n != 1 {
		t.Fatalf("bootstrap admins n=%d err=%v", n, err)
	}
	adminAuth := e.login(t, "root@example.com", "correct-horse")

	rec = e.do(t, http.MethodGet, "/api/users", adminAuth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status=%d", rec.Code)
	}
	if users := decode[[]userResponse](t, rec); len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	rec = e.do(t, http.MethodPut, "/api/users/"+target.ID+"/role", adminAuth, `{"role":"superuser"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad role status=%d want 400", rec.Code)
	}

	rec = e.do(t, http.MethodPut, "/api/users/"+target.ID+"/role", adminAuth, `{"role":"admin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set role status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[userResponse](t, rec); got.Role != "admin" {
		t.Fatalf("expected admin role, got %+v", got)
	}

	rec = e.do(t, http.MethodPut, "/api/users/missing/role", adminAuth, `{"role":"user"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing user status=%d want 404", rec.Code)
	}
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	if _, err := NewHandler(nil, DefaultConfig(), nil, nil, nil); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req, false); got != "192.0.2.1" {
		t.Fatalf("untrusted clientIP=%q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted clientIP=%q", got)
	}

	req.RemoteAddr = "garbage"
	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req, true); got != "" {
		t.Fatalf("expected empty ip, got %q", got)
	}
}
