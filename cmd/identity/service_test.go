package identity

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Azuko9/forum-app/cmd/security/password"
)

// countingHasher records how often the expensive primitive runs.
type countingHasher struct {
	inner  password.Config
	hashes int
	checks int
}

func (h *countingHasher) Hash(p string) (string, error) {
	h.hashes++
	return h.inner.Hash(p)
}

func (h *countingHasher) Verify(p, hash string) bool {
	h.checks++
	return h.inner.Verify(p, hash)
}

func testPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Cost = bcrypt.MinCost
	return cfg
}

func newTestService(t *testing.T) (*Service, *countingHasher) {
	t.Helper()

	h := &countingHasher{inner: testPasswordConfig()}
	svc, err := NewService(NewMemoryStore(), testPasswordConfig(), WithHasher(h))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.hashes, h.checks = 0, 0
	return svc, h
}

func mustCreateUser(t *testing.T, svc *Service, username, email, pw string) User {
	t.Helper()

	u, err := svc.CreateUser(context.Background(), SignupInput{Username: username, Email: email, Password: pw})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return u
}

func TestCreateUser_HashesAndDefaultsRole(t *testing.T) {
	svc, h := newTestService(t)

	u := mustCreateUser(t, svc, "alice", "Alice@Example.com", "s3cret-pass")
	if u.Role != RoleUser {
		t.Fatalf("role=%q want user", u.Role)
	}
	if u.PasswordHash == "" || u.PasswordHash == "s3cret-pass" {
		t.Fatalf("password was not hashed")
	}
	if h.hashes != 1 {
		t.Fatalf("expected exactly one hash, got %d", h.hashes)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
}

func TestCreateUser_ExistingEmail(t *testing.T) {
	svc, h := newTestService(t)

	mustCreateUser(t, svc, "alice", "alice@example.com", "s3cret-pass")
	_, err := svc.CreateUser(context.Background(), SignupInput{Username: "other", Email: "ALICE@example.com", Password: "s3cret-pass"})
	if !IsConflict(err) || ConflictField(err) != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if h.hashes != 1 {
		t.Fatalf("conflict must not hash, got %d hashes", h.hashes)
	}
}

func TestCreateUser_ExistingUsername(t *testing.T) {
	svc, _ := newTestService(t)

	mustCreateUser(t, svc, "alice", "alice@example.com", "s3cret-pass")
	_, err := svc.CreateUser(context.Background(), SignupInput{Username: "alice", Email: "other@example.com", Password: "s3cret-pass"})
	if !IsConflict(err) || ConflictField(err) != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	svc, h := newTestService(t)

	cases := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{name: "missing username", in: SignupInput{Email: "a@example.com", Password: "s3cret-pass"}, field: "username"},
		{name: "bad email", in: SignupInput{Username: "a", Email: "nope", Password: "s3cret-pass"}, field: "email"},
		{name: "missing password", in: SignupInput{Username: "a", Email: "a@example.com"}, field: "password"},
		{name: "short password", in: SignupInput{Username: "a", Email: "a@example.com", Password: "short"}, field: "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateUser(context.Background(), tc.in)
			if !IsInvalidInput(err) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			fields := FieldErrors(err)
			if _, ok := fields[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, fields)
			}
		})
	}
	if h.hashes != 0 {
		t.Fatalf("validation failures must not hash, got %d", h.hashes)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, h := newTestService(t)
	mustCreateUser(t, svc, "alice", "alice@example.com", "s3cret-pass")
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, " ALICE@example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := svc.Authenticate(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	before := h.checks
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "whatever-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if h.checks != before+1 {
		t.Fatalf("unknown email must still run one verify")
	}

	for _, in := range [][2]string{{"", "whatever-pass"}, {"   ", "whatever-pass"}, {"alice@example.com", ""}} {
		before = h.checks
		if _, err := svc.Authenticate(ctx, in[0], in[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Authenticate(%q, %q): expected invalid credentials, got %v", in[0], in[1], err)
		}
		if h.checks != before+1 {
			t.Fatalf("Authenticate(%q, %q) must run one verify", in[0], in[1])
		}
	}
}

func TestUpdatePassword(t *testing.T) {
	svc, h := newTestService(t)
	u := mustCreateUser(t, svc, "alice", "alice@example.com", "s3cret-pass")
	ctx := context.Background()

	if err := svc.UpdatePassword(ctx, u.ID, "wrong-pass", "another-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := svc.UpdatePassword(ctx, u.ID, "s3cret-pass", "short"); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	hashesBefore := h.hashes
	if err := svc.UpdatePassword(ctx, u.ID, "s3cret-pass", "another-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if h.hashes != hashesBefore+1 {
		t.Fatalf("expected one new hash")
	}

	if _, err := svc.Authenticate(ctx, "alice@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "another-pass"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}

	if err := svc.UpdatePassword(ctx, "missing", "a", "b"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetRole_DoesNotRehash(t *testing.T) {
	svc, h := newTestService(t)
	u := mustCreateUser(t, svc, "alice", "alice@example.com", "s3cret-pass")

	hashesBefore := h.hashes
	got, err := svc.SetRole(context.Background(), u.ID, RoleAdmin)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if got.Role != RoleAdmin || got.PasswordHash != u.PasswordHash {
		t.Fatalf("unexpected user: %+v", got)
	}
	if h.hashes != hashesBefore {
		t.Fatalf("role change must not hash")
	}

	if _, err := svc.SetRole(context.Background(), u.ID, Role("root")); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestBootstrapAdmins(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreateUser(t, svc, "alice", "alice@example.com", "s3cret-pass")
	mustCreateUser(t, svc, "bob", "bob@example.com", "s3cret-pass")
	ctx := context.Background()

	n, err := svc.BootstrapAdmins(ctx, []string{"ALICE@example.com", "ghost@example.com", ""})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted=%d want 1", n)
	}

	// Idempotent.
	n, err = svc.BootstrapAdmins(ctx, []string{"alice@example.com"})
	if err != nil || n != 0 {
		t.Fatalf("second run: n=%d err=%v", n, err)
	}

	u, err := svc.Store().GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Role != RoleAdmin {
		t.Fatalf("alice should be admin")
	}
}

func TestAuthenticate_RehashesOnCostChange(t *testing.T) {
	store := NewMemoryStore()
	low := testPasswordConfig()

	lowSvc, err := NewService(store, low)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	u, err := lowSvc.CreateUser(context.Background(), SignupInput{Username: "a", Email: "a@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	higher := low
	higher.Cost = bcrypt.MinCost + 1
	hiSvc, err := NewService(store, higher)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := hiSvc.Authenticate(context.Background(), "a@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	got, err := store.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.PasswordHash == u.PasswordHash {
		t.Fatalf("expected hash to be upgraded")
	}
	cost, err := bcrypt.Cost([]byte(got.PasswordHash))
	if err != nil || cost != bcrypt.MinCost+1 {
		t.Fatalf("cost=%d err=%v", cost, err)
	}
}
