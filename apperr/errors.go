package apperr

import (
	"errors"
	"fmt"
)

// Category classifies an upload error for transport mapping and retry decisions
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryIncomplete Category = "incomplete"
	CategoryIO         Category = "io"
	CategoryTransient  Category = "transient"
)

type classifiedError struct {
	category     Category
	message      string
	pendingCount int
	retryable    bool
	cause        error
}

func (e *classifiedError) Error() string {
	switch {
	case e.message != "" && e.cause != nil:
		return e.message + ": " + e.cause.Error()
	case e.message != "":
		return e.message
	case e.cause != nil:
		return e.cause.Error()
	}
	return string(e.category)
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Validation marks a malformed request. No state is mutated.
func Validation(format string, args ...interface{}) error {
	return &classifiedError{category: CategoryValidation, message: fmt.Sprintf(format, args...)}
}

// NotFound marks an unknown session
func NotFound(sessionID string) error {
	return &classifiedError{category: CategoryNotFound, message: fmt.Sprintf("session %s not found", sessionID)}
}

// Conflict marks a finalize already in flight or a write against a session that no longer accepts chunks
func Conflict(format string, args ...interface{}) error {
	return &classifiedError{category: CategoryConflict, message: fmt.Sprintf(format, args...)}
}

// Incomplete marks a finalize attempted while chunks are still pending
func Incomplete(pendingCount int) error {
	return &classifiedError{
		category:     CategoryIncomplete,
		message:      fmt.Sprintf("%d chunks still pending", pendingCount),
		pendingCount: pendingCount,
	}
}

// IO wraps a writer or pipeline failure
func IO(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{category: CategoryIO, message: fmt.Sprintf(format, args...), cause: cause}
}

// Transient wraps a client-observed network failure that is safe to retry
func Transient(cause error) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{category: CategoryTransient, retryable: true, cause: cause}
}

// Wrap classifies an arbitrary cause
func Wrap(cause error, category Category, message string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		message:   message,
		retryable: category == CategoryTransient,
		cause:     cause,
	}
}

// CategoryOf returns the category of err, or "" when err is unclassified
func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

// Is reports whether err carries the given category
func Is(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}

// PendingCountOf returns the pending chunk count of an Incomplete error
func PendingCountOf(err error) int {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.pendingCount
	}
	return 0
}

// Retryable reports whether a client should retry the failed call.
// Unclassified errors are treated as retryable; validation, not-found and
// conflict outcomes never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var classified *classifiedError
	if !errors.As(err, &classified) {
		return true
	}
	switch classified.category {
	case CategoryValidation, CategoryNotFound, CategoryConflict, CategoryIncomplete:
		return false
	case CategoryIO:
		return true
	}
	return classified.retryable
}
