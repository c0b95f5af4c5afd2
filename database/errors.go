package database

import (
	"errors"
	"fmt"

	"resumable-upload/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDBType = errors.New("unsupported database type")
	ErrSessionCompleted  = errors.New("completed sessions are never deleted")
	ErrSessionMismatch   = errors.New("session exists with a different file size")
	ErrStatusMismatch    = errors.New("session status changed concurrently")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// TransitionError a status move missing from the transition table
type TransitionError struct {
	From model.SessionStatus
	To   model.SessionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}
