package forum

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/identity/ids"
	"github.com/Azuko9/forum-app/cmd/internal/auth/policy"
)

const (
	maxTitleLen   = 200
	maxContentLen = 20000
)

// UsernameResolver maps user ids to usernames for author population.
// identity.Store satisfies it.
type UsernameResolver interface {
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
}

// TopicInput is a create-topic request.
type TopicInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (in TopicInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, maxTitleLen)),
		validation.Field(&in.Content, validation.Required, validation.RuneLength(1, maxContentLen)),
	)
}

// TopicUpdate is an update-topic request. Absent or blank fields are ignored.
type TopicUpdate struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Patch trims the update and drops blank fields.
func (u TopicUpdate) Patch() TopicPatch {
	var p TopicPatch
	if u.Title != nil {
		if v := strings.TrimSpace(*u.Title); v != "" {
			p.Title = &v
		}
	}
	if u.Content != nil {
		if v := strings.TrimSpace(*u.Content); v != "" {
			p.Content = &v
		}
	}
	return p
}

func (p TopicPatch) validate() error {
	errs := validation.Errors{}
	if p.Title != nil {
		errs["title"] = validation.Validate(*p.Title, validation.RuneLength(1, maxTitleLen))
	}
	if p.Content != nil {
		errs["content"] = validation.Validate(*p.Content, validation.RuneLength(1, maxContentLen))
	}
	return errs.Filter()
}

// CommentInput is a create-comment request.
type CommentInput struct {
	Content string `json:"content"`
	Topic   string `json:"topic"`
}

func (in CommentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Content, validation.Required, validation.RuneLength(1, maxContentLen)),
		validation.Field(&in.Topic, validation.Required),
	)
}

// Service implements topic and comment operations. Every mutation of an
// existing resource goes through policy.Evaluate.
type Service struct {
	store Store
	users UsernameResolver
	now   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service. users may be nil, in which case authors
// carry only their id.
func NewService(store Store, users UsernameResolver, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("forum: nil store")
	}
	s := &Service{
		store: store,
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// timestamp is microsecond precision so every backend round-trips it.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateTopic stores a new topic owned by p.
func (s *Service) CreateTopic(ctx context.Context, p identity.Principal, in TopicInput) (Topic, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := in.Validate(); err != nil {
		return Topic{}, invalidFields(err)
	}

	now := s.timestamp()
	id, err := ids.NewULID(now)
	if err != nil {
		return Topic{}, err
	}

	t := Topic{
		ID:        id,
		Title:     in.Title,
		Content:   in.Content,
		CreatedBy: p.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTopic(ctx, t); err != nil {
		return Topic{}, err
	}
	t.Author = &Author{ID: p.ID, Username: p.Username}
	return t, nil
}

// ListTopics returns one page of topics with authors populated.
func (s *Service) ListTopics(ctx context.Context, q ListTopicsQuery) (TopicPage, error) {
	q = q.Normalize()

	topics, total, err := s.store.ListTopics(ctx, q)
	if err != nil {
		return TopicPage{}, err
	}
	if err := s.populateTopics(ctx, topics); err != nil {
		return TopicPage{}, err
	}
	return TopicPage{
		Topics: topics,
		Total:  total,
		Page:   q.Page,
		Pages:  PageCount(total, q.Limit),
	}, nil
}

// GetTopic returns one topic with its author.
func (s *Service) GetTopic(ctx context.Context, id string) (Topic, error) {
	t, err := s.store.GetTopic(ctx, id)
	if err != nil {
		return Topic{}, err
	}
	one := []Topic{t}
	if err := s.populateTopics(ctx, one); err != nil {
		return Topic{}, err
	}
	return one[0], nil
}

// UpdateTopic applies the non-blank fields of u when p owns the topic or is
// an admin. An update with nothing to change returns the topic as stored.
func (s *Service) UpdateTopic(ctx context.Context, p identity.Principal, id string, u TopicUpdate) (Topic, error) {
	const op = "forum.UpdateTopic"

	current, found, err := s.loadTopic(ctx, id)
	if err != nil {
		return Topic{}, err
	}
	if err := authorize(op, "topic", p, current, found); err != nil {
		return Topic{}, err
	}

	patch := u.Patch()
	if err := patch.validate(); err != nil {
		return Topic{}, invalidFields(err)
	}

	updated := current
	if !patch.Empty() {
		updated, err = s.store.UpdateTopic(ctx, id, patch, s.timestamp())
		if err != nil {
			return Topic{}, err
		}
	}

	one := []Topic{updated}
	if err := s.populateTopics(ctx, one); err != nil {
		return Topic{}, err
	}
	return one[0], nil
}

// DeleteTopic removes a topic owned by p (or any topic, for admins).
// Its comments are left in place.
func (s *Service) DeleteTopic(ctx context.Context, p identity.Principal, id string) error {
	const op = "forum.DeleteTopic"

	current, found, err := s.loadTopic(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(op, "topic", p, current, found); err != nil {
		return err
	}
	return s.store.DeleteTopic(ctx, id)
}

// CreateComment attaches a comment by p to an existing topic.
func (s *Service) CreateComment(ctx context.Context, p identity.Principal, in CommentInput) (Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.Topic = strings.TrimSpace(in.Topic)
	if err := in.Validate(); err != nil {
		return Comment{}, invalidFields(err)
	}

	if _, err := s.store.GetTopic(ctx, in.Topic); err != nil {
		return Comment{}, err
	}

	now := s.timestamp()
	id, err := ids.NewULID(now)
	if err != nil {
		return Comment{}, err
	}

	c := Comment{
		ID:        id,
		Content:   in.Content,
		CreatedBy: p.ID,
		TopicID:   in.Topic,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return Comment{}, err
	}
	c.Author = &Author{ID: p.ID, Username: p.Username}
	return c, nil
}

// ListComments returns a topic's comments, newest first. The topic itself
// is not required to exist.
func (s *Service) ListComments(ctx context.Context, topicID string) ([]Comment, error) {
	topicID = strings.TrimSpace(topicID)
	if topicID == "" {
		return nil, invalidFields(validation.Errors{"topic": errors.New("cannot be blank")})
	}

	comments, err := s.store.ListComments(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if err := s.populateComments(ctx, comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// DeleteComment removes a comment owned by p (or any comment, for admins).
func (s *Service) DeleteComment(ctx context.Context, p identity.Principal, id string) error {
	const op = "forum.DeleteComment"

	c, err := s.store.GetComment(ctx, id)
	found := err == nil
	if err != nil && !IsNotFound(err) {
		return err
	}
	if err := authorize(op, "comment", p, c, found); err != nil {
		return err
	}
	return s.store.DeleteComment(ctx, id)
}

// loadTopic reports a missing topic as found=false so the policy decides.
func (s *Service) loadTopic(ctx context.Context, id string) (Topic, bool, error) {
	t, err := s.store.GetTopic(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return Topic{}, false, nil
		}
		return Topic{}, false, err
	}
	return t, true, nil
}

func authorize(op, kind string, p identity.Principal, resource policy.Owned, found bool) error {
	switch policy.Evaluate(p, resource, found) {
	case policy.Allow:
		return nil
	case policy.DenyForbidden:
		return ForbiddenError{Op: op, Resource: kind}
	default:
		return NotFoundError{Op: op, Resource: kind}
	}
}

func (s *Service) populateTopics(ctx context.Context, topics []Topic) error {
	ownerIDs := make([]string, 0, len(topics))
	for _, t := range topics {
		ownerIDs = append(ownerIDs, t.CreatedBy)
	}
	names, err := s.resolve(ctx, ownerIDs)
	if err != nil {
		return err
	}
	for i := range topics {
		id := topics[i].CreatedBy
		topics[i].Author = &Author{ID: id, Username: names[id]}
	}
	return nil
}

func (s *Service) populateComments(ctx context.Context, comments []Comment) error {
	ownerIDs := make([]string, 0, len(comments))
	for _, c := range comments {
		ownerIDs = append(ownerIDs, c.CreatedBy)
	}
	names, err := s.resolve(ctx, ownerIDs)
	if err != nil {
		return err
	}
	for i := range comments {
		id := comments[i].CreatedBy
		comments[i].Author = &Author{ID: id, Username: names[id]}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, userIDs []string) (map[string]string, error) {
	if s.users == nil || len(userIDs) == 0 {
		return map[string]string{}, nil
	}
	return s.users.Usernames(ctx, userIDs)
}
