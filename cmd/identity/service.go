package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/Azuko9/forum-app/cmd/security/password"
)

// Hasher is the password primitive the accounts service depends on.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// SignupInput is a raw registration request.
type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field presence and shape. Password policy is applied separately.
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// Service is the accounts API. It is the only place passwords are hashed,
// and it hashes only when a password is set or changed.
type Service struct {
	store     Store
	hasher    Hasher
	policy    password.Config
	now       func() time.Time
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHasher overrides the hasher (defaults to the password config itself).
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the accounts service. It hashes one throwaway password
// so that unknown-email logins cost the same as wrong-password logins.
func NewService(store Store, pw password.Config, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}

	s := &Service{
		store:  store,
		hasher: pw,
		policy: pw,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := s.hasher.Hash("dummy-password-not-used-for-login")
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Store exposes the underlying credential store.
func (s *Service) Store() Store { return s.store }

// CreateUser registers a new user with the default role.
//
// Errors:
//   - ErrInvalidInput wrapping validation.Errors for bad fields
//   - ConflictError{Field: "email"} when the email is taken
//   - ConflictError{Field: "username"} when the username is taken
func (s *Service) CreateUser(ctx context.Context, in SignupInput) (User, error) {
	const op = "identity.CreateUser"

	in.Username = NormalizeUsername(in.Username)
	in.Email = NormalizeEmail(in.Email)

	if err := in.Validate(); err != nil {
		return User{}, invalidFields(err)
	}
	if err := s.policy.Validate(in.Password); err != nil {
		return User{}, invalidFields(validation.Errors{"password": err})
	}

	// The unique index is the final arbiter; this check gives the common case
	// a clean answer without spending a bcrypt round.
	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return User{}, ConflictError{Op: op, Field: "email"}
	} else if !IsNotFound(err) {
		return User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}

	return s.store.CreateUser(ctx, CreateUserInput{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         RoleUser,
		Now:          s.now(),
	})
}

// Authenticate checks an email/password pair. Blank input, unknown email and
// wrong password are indistinguishable: each runs one bcrypt compare and
// returns ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || plaintext == "" {
		_ = s.hasher.Verify(plaintext, s.dummyHash)
		return User{}, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			_ = s.hasher.Verify(plaintext, s.dummyHash)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if !s.hasher.Verify(plaintext, u.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}

	s.maybeRehash(ctx, u, plaintext)
	return u, nil
}

// UpdatePassword replaces the password after checking the current one.
func (s *Service) UpdatePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := s.policy.Validate(next); err != nil {
		return invalidFields(validation.Errors{"newPassword": err})
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, u.ID, hash, s.now())
}

// Profile returns the stored user behind a principal.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// ListUsers returns every account ordered by creation.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// SetRole changes a user's role. The password hash is untouched.
func (s *Service) SetRole(ctx context.Context, userID string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, invalidFields(validation.Errors{"role": errors.New("must be user or admin")})
	}
	return s.store.UpdateRole(ctx, userID, role, s.now())
}

// BootstrapAdmins promotes the listed emails to admin. Unknown emails are
// skipped. It returns the number of accounts promoted.
func (s *Service) BootstrapAdmins(ctx context.Context, emails []string) (int, error) {
	promoted := 0
	for _, raw := range emails {
		email := NormalizeEmail(raw)
		if email == "" {
			continue
		}
		u, err := s.store.GetUserByEmail(ctx, email)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return promoted, err
		}
		if u.Role == RoleAdmin {
			continue
		}
		if _, err := s.store.UpdateRole(ctx, u.ID, RoleAdmin, s.now()); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (s *Service) maybeRehash(ctx context.Context, u User, plaintext string) {
	r, ok := s.hasher.(interface{ NeedsRehash(string) bool })
	if !ok || !r.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	_ = s.store.UpdatePasswordHash(ctx, u.ID, hash, s.now())
}

// invalidFields wraps field errors so callers can match ErrInvalidInput and
// still extract validation.Errors with errors.As.
func invalidFields(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// FieldErrors extracts per-field messages from a validation failure.
func FieldErrors(err error) map[string]string {
	var ve validation.Errors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for k, v := range ve {
		if v == nil {
			continue
		}
		out[k] = strings.TrimSpace(v.Error())
	}
	return out
}
