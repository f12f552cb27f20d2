package identity

import (
	"context"
	"time"
)

// User is a registered account.
// PasswordHash is never serialized by the HTTP layer.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the identity a token for u should carry.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}

// CreateUserInput is a normalized, pre-hashed registration record.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Now          time.Time
}

// Store is the credential persistence boundary.
//
// Contract:
//   - CreateUser returns ConflictError{Field: "email"|"username"} on uniqueness violations.
//   - Lookups return NotFoundError when no row matches.
//   - UpdatePasswordHash is the only write that touches the hash.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error
	UpdateRole(ctx context.Context, id string, role Role, now time.Time) (User, error)

	// Usernames resolves ids to usernames. Unknown ids are omitted.
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
}

func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Username = NormalizeUsername(in.Username)
	in.Email = NormalizeEmail(in.Email)

	if in.Username == "" {
		return in, invalid(op, "username is required")
	}
	if in.Email == "" {
		return in, invalid(op, "email is required")
	}
	if in.PasswordHash == "" {
		return in, invalid(op, "password hash is required")
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		return in, invalid(op, "unknown role")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	in.Now = in.Now.UTC()
	return in, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
