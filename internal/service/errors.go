package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/appgallery-cms/internal/validation"
)

var (
	// ErrNotFound is returned when an app, content item, gallery image or
	// file does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for malformed input
	ErrInvalid = errors.New("invalid input")
	// ErrTooLarge is returned for uploads over the configured size limit
	ErrTooLarge = errors.New("file too large")
)

// ValidationFailed carries field-level errors; it matches ErrInvalid
type ValidationFailed struct {
	Errors []validation.ValidationError
}

func (e *ValidationFailed) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, v := range e.Errors {
		msgs = append(msgs, v.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationFailed) Unwrap() error { return ErrInvalid }

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

func validationFailed(errs []validation.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationFailed{Errors: errs}
}
