package forum

import (
	"context"
	"time"
)

// Store persists topics and comments. Records are written whole: ids and
// timestamps are assigned by the service before the call.
//
// Contract:
//   - Get*/Update*/Delete* return NotFoundError when no row matches.
//   - ListTopics returns the requested page and the unpaged total.
//   - ListComments returns a topic's comments newest first.
//   - Deleting a topic leaves its comments in place.
type Store interface {
	CreateTopic(ctx context.Context, t Topic) error
	GetTopic(ctx context.Context, id string) (Topic, error)
	ListTopics(ctx context.Context, q ListTopicsQuery) ([]Topic, int, error)
	UpdateTopic(ctx context.Context, id string, patch TopicPatch, now time.Time) (Topic, error)
	DeleteTopic(ctx context.Context, id string) error

	CreateComment(ctx context.Context, c Comment) error
	GetComment(ctx context.Context, id string) (Comment, error)
	ListComments(ctx context.Context, topicID string) ([]Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

func topicNotFound(op string) error   { return NotFoundError{Op: op, Resource: "topic"} }
func commentNotFound(op string) error { return NotFoundError{Op: op, Resource: "comment"} }
