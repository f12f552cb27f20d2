package forum

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not_found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid_input")
)

// NotFoundError names the missing resource ("topic", "comment").
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ForbiddenError reports an ownership denial.
type ForbiddenError struct {
	Op       string
	Resource string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrForbidden, e.Resource)
}

func (e ForbiddenError) Unwrap() error { return ErrForbidden }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// NotFoundResource returns the missing resource's name, or "".
func NotFoundResource(err error) string {
	var nf NotFoundError
	if errors.As(err, &nf) {
		return nf.Resource
	}
	return ""
}

func invalidFields(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
