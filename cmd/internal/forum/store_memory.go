package forum

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the fallback Store when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	topics   map[string]Topic
	comments map[string]Comment
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:   make(map[string]Topic),
		comments: make(map[string]Comment),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateTopic(ctx context.Context, t Topic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Author = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t.ID] = t
	return nil
}

func (s *MemoryStore) GetTopic(ctx context.Context, id string) (Topic, error) {
	if err := ctx.Err(); err != nil {
		return Topic{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[id]
	if !ok {
		return Topic{}, topicNotFound("forum.GetTopic")
	}
	return t, nil
}

func (s *MemoryStore) ListTopics(ctx context.Context, q ListTopicsQuery) ([]Topic, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	q = q.Normalize()

	s.mu.Lock()
	all := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		all = append(all, t)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return topicLess(all[i], all[j], q.Sort) })

	total := len(all)
	start := q.Offset()
	if start < 0 || start >= total {
		return []Topic{}, total, nil
	}
	end := total
	if q.Limit < total-start {
		end = start + q.Limit
	}
	return all[start:end], total, nil
}

func topicLess(a, b Topic, s Sort) bool {
	var c int
	switch s.Field {
	case SortTitle:
		c = strings.Compare(a.Title, b.Title)
	case SortUpdatedAt:
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if s.Desc {
		return c > 0
	}
	return c < 0
}

func (s *MemoryStore) UpdateTopic(ctx context.Context, id string, patch TopicPatch, now time.Time) (Topic, error) {
	if err := ctx.Err(); err != nil {
		return Topic{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[id]
	if !ok {
		return Topic{}, topicNotFound("forum.UpdateTopic")
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	t.UpdatedAt = now.UTC()
	s.topics[id] = t
	return t, nil
}

func (s *MemoryStore) DeleteTopic(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[id]; !ok {
		return topicNotFound("forum.DeleteTopic")
	}
	delete(s.topics, id)
	return nil
}

func (s *MemoryStore) CreateComment(ctx context.Context, c Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Author = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c
	return nil
}

func (s *MemoryStore) GetComment(ctx context.Context, id string) (Comment, error) {
	if err := ctx.Err(); err != nil {
		return Comment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return Comment{}, commentNotFound("forum.GetComment")
	}
	return c, nil
}

func (s *MemoryStore) ListComments(ctx context.Context, topicID string) ([]Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]Comment, 0)
	for _, c := range s.comments {
		if c.TopicID == topicID {
			out = append(out, c)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CreatedAt.Compare(out[j].CreatedAt); c != 0 {
			return c > 0
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) DeleteComment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return commentNotFound("forum.DeleteComment")
	}
	delete(s.comments, id)
	return nil
}
