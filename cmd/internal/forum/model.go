package forum

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Author is the public view of a resource's creator.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Topic is a discussion thread.
type Topic struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"createdBy"`
	Author    *Author   `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnerID implements policy.Owned.
func (t Topic) OwnerID() string { return t.CreatedBy }

// Comment is a reply attached to a topic.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"createdBy"`
	TopicID   string    `json:"topic"`
	Author    *Author   `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnerID implements policy.Owned.
func (c Comment) OwnerID() string { return c.CreatedBy }

// TopicPatch carries optional replacements. Nil fields are left unchanged.
type TopicPatch struct {
	Title   *string
	Content *string
}

// Empty reports whether the patch changes nothing.
func (p TopicPatch) Empty() bool { return p.Title == nil && p.Content == nil }

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "-createdAt"
)

// SortField is a whitelisted topic ordering key.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
)

// Sort is an ordering over one field. Ties break on id.
type Sort struct {
	Field SortField
	Desc  bool
}

// ParseSort parses "field" or "-field". Unknown fields are an error.
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultSort
	}

	var out Sort
	if strings.HasPrefix(s, "-") {
		out.Desc = true
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	switch f := SortField(s); f {
	case SortCreatedAt, SortUpdatedAt, SortTitle:
		out.Field = f
		return out, nil
	default:
		return Sort{}, fmt.Errorf("unsupported sort field %q", s)
	}
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + string(s.Field)
	}
	return string(s.Field)
}

// ListTopicsQuery selects one page of topics.
type ListTopicsQuery struct {
	Page  int
	Limit int
	Sort  Sort
}

// Normalize clamps paging values to their defaults and bounds.
func (q ListTopicsQuery) Normalize() ListTopicsQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	// Page*Limit must fit in an int so Offset and the page end never overflow.
	if maxPage := math.MaxInt / q.Limit; q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Sort.Field == "" {
		q.Sort = Sort{Field: SortCreatedAt, Desc: true}
	}
	return q
}

// Offset is the number of rows skipped before the page. It saturates at
// math.MaxInt instead of wrapping for un-normalized queries.
func (q ListTopicsQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// TopicPage is one page of a topic listing.
type TopicPage struct {
	Topics []Topic `json:"topics"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Pages  int     `json:"pages"`
}

// PageCount returns ceil(total/limit).
func PageCount(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
