package forum

// Shared SQL fragments for the Postgres and SQLite stores.

const (
	topicColumns   = `id, title, content, created_by, created_at, updated_at`
	commentColumns = `id, content, created_by, topic_id, created_at, updated_at`
)

type scanner interface {
	Scan(dest ...any) error
}

// orderBy renders a whitelisted ORDER BY clause; s never carries user text.
func orderBy(s Sort) string {
	col := "created_at"
	switch s.Field {
	case SortUpdatedAt:
		col = "updated_at"
	case SortTitle:
		col = "title"
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return ` ORDER BY ` + col + ` ` + dir + `, id ` + dir
}

func scanTopic(row scanner) (Topic, error) {
	var t Topic
	if err := row.Scan(&t.ID, &t.Title, &t.Content, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Topic{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func scanComment(row scanner) (Comment, error) {
	var c Comment
	if err := row.Scan(&c.ID, &c.Content, &c.CreatedBy, &c.TopicID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Comment{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
