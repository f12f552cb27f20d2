package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Azuko9/forum-app/cmd/identity"
)

// PostgresStore implements Store over PostgreSQL. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a PostgresStore in schema ("public" when empty).
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("forum: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if !identity.PgIdentIsValid(schema) {
		return nil, fmt.Errorf("forum: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) topics() string   { return identity.PgIdent(s.schema, "topics") }
func (s *PostgresStore) comments() string { return identity.PgIdent(s.schema, "comments") }

func (s *PostgresStore) CreateTopic(ctx context.Context, t Topic) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.topics()+` (`+topicColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Title, t.Content, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetTopic(ctx context.Context, id string) (Topic, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+topicColumns+` FROM `+s.topics()+` WHERE id = $1`, id)
	t, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Topic{}, topicNotFound("forum.GetTopic")
	}
	return t, err
}

func (s *PostgresStore) ListTopics(ctx context.Context, q ListTopicsQuery) ([]Topic, int, error) {
	q = q.Normalize()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.topics()).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+topicColumns+` FROM `+s.topics()+orderBy(q.Sort)+` LIMIT $1 OFFSET $2`,
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

func (s *PostgresStore) UpdateTopic(ctx context.Context, id string, patch TopicPatch, now time.Time) (Topic, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.topics()+`
		    SET title = COALESCE($2, title), content = COALESCE($3, content), updated_at = $4
		  WHERE id = $1
		 RETURNING `+topicColumns,
		id, patch.Title, patch.Content, now.UTC(),
	)
	t, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Topic{}, topicNotFound("forum.UpdateTopic")
	}
	return t, err
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.topics()+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return topicNotFound("forum.DeleteTopic")
	}
	return nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, c Comment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.comments()+` (`+commentColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Content, c.CreatedBy, c.TopicID, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM `+s.comments()+` WHERE id = $1`, id)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, commentNotFound("forum.GetComment")
	}
	return c, err
}

func (s *PostgresStore) ListComments(ctx context.Context, topicID string) ([]Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM `+s.comments()+` WHERE topic_id = $1
		 ORDER BY created_at DESC, id DESC`,
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

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.comments()+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commentNotFound("forum.DeleteComment")
	}
	return nil
}
