package forum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteQueryTimeout = 3 * time.Second

// SQLiteStore implements Store over a migrated SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database (see db.OpenSQLite).
func NewSQLiteStore(d *sql.DB) (*SQLiteStore, error) {
	if d == nil {
		return nil, fmt.Errorf("forum: nil database")
	}
	return &SQLiteStore{db: d}, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) CreateTopic(ctx context.Context, t Topic) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (`+topicColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Content, t.CreatedBy, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	t, err := scanTopic(s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, topicNotFound("forum.GetTopic")
	}
	return t, err
}

func (s *SQLiteStore) ListTopics(ctx context.Context, q ListTopicsQuery) ([]Topic, int, error) {
	q = q.Normalize()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM topics`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM topics`+orderBy(q.Sort)+` LIMIT ? OFFSET ?`,
		q.Limit, q.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Topic, 0, q.Limit)
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) UpdateTopic(ctx context.Context, id string, patch TopicPatch, now time.Time) (Topic, error) {
	const op = "forum.UpdateTopic"

	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET title = COALESCE(?, title), content = COALESCE(?, content), updated_at = ? WHERE id = ?`,
		patch.Title, patch.Content, now.UTC(), id,
	)
	if err != nil {
		return Topic{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Topic{}, err
	}
	if n == 0 {
		return Topic{}, topicNotFound(op)
	}

	t, err := scanTopic(s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, topicNotFound(op)
	}
	return t, err
}

func (s *SQLiteStore) DeleteTopic(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	return execDelete(ctx, s.db, `DELETE FROM topics WHERE id = ?`, id, topicNotFound("forum.DeleteTopic"))
}

func (s *SQLiteStore) CreateComment(ctx context.Context, c Comment) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Content, c.CreatedBy, c.TopicID, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetComment(ctx context.Context, id string) (Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	c, err := scanComment(s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, commentNotFound("forum.GetComment")
	}
	return c, err
}

func (s *SQLiteStore) ListComments(ctx context.Context, topicID string) ([]Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE topic_id = ? ORDER BY created_at DESC, id DESC`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	return execDelete(ctx, s.db, `DELETE FROM comments WHERE id = ?`, id, commentNotFound("forum.DeleteComment"))
}

func execDelete(ctx context.Context, d *sql.DB, q, id string, notFound error) error {
	res, err := d.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
