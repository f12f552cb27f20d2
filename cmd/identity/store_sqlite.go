package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azuko9/forum-app/cmd/internal/db"
)

const sqliteQueryTimeout = 3 * time.Second

// SQLiteStore implements Store over a migrated SQLite database.
// The *sql.DB is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database (see db.OpenSQLite).
func NewSQLiteStore(d *sql.DB) (*SQLiteStore, error) {
	if d == nil {
		return nil, fmt.Errorf("identity: nil database")
	}
	return &SQLiteStore{db: d}, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+pgUserColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, in.Username, in.Email, in.PasswordHash, string(in.Role), in.Now, in.Now,
	)
	if err != nil {
		if col, ok := db.IsSQLiteUniqueViolation(err); ok {
			field := col
			if field != "email" && field != "username" {
				field = "unique"
			}
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = ?`, id)
	return sqliteScanUser("identity.GetUserByID", row)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
	return sqliteScanUser("identity.GetUserByEmail", row)
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+pgUserColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := sqliteScanUser("identity.ListUsers", rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if hash == "" {
		return invalid(op, "password hash is required")
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, nowOr(now), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return userNotFound(op)
	}
	return nil
}

func (s *SQLiteStore) UpdateRole(ctx context.Context, id string, role Role, now time.Time) (User, error) {
	const op = "identity.UpdateRole"

	if !role.Valid() {
		return User{}, invalid(op, "unknown role")
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), nowOr(now), id)
	if err != nil {
		return User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return User{}, err
	}
	if n == 0 {
		return User{}, userNotFound(op)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = ?`, id)
	return sqliteScanUser(op, row)
}

func (s *SQLiteStore) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	ids = dedupeIDs(ids)
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, username FROM users WHERE id IN (` + placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

type sqlRow interface {
	Scan(dest ...any) error
}

func sqliteScanUser(op string, row sqlRow) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, err
	}
	u.Role = RoleOrDefault(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
