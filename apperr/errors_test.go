package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryOf(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name      string
		err       error
		category  Category
		retryable bool
	}{
		{name: "validation", err: Validation("bad index %d", 7), category: CategoryValidation},
		{name: "not found", err: NotFound("abc"), category: CategoryNotFound},
		{name: "conflict", err: Conflict("finalize in progress"), category: CategoryConflict},
		{name: "incomplete", err: Incomplete(2), category: CategoryIncomplete},
		{name: "io", err: IO(cause, "write chunk"), category: CategoryIO, retryable: true},
		{name: "transient", err: Transient(cause), category: CategoryTransient, retryable: true},
		{name: "wrapped twice", err: fmt.Errorf("outer: %w", Conflict("x")), category: CategoryConflict},
		{name: "unclassified", err: cause, category: "", retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, CategoryOf(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
		})
	}
}

func TestIncompleteCarriesCount(t *testing.T) {
	err := fmt.Errorf("finalize: %w", Incomplete(3))
	require.True(t, Is(err, CategoryIncomplete))
	assert.Equal(t, 3, PendingCountOf(err))
	assert.Contains(t, err.Error(), "3 chunks still pending")
}

func TestIOUnwrapsCause(t *testing.T) {
	cause := errors.New("permission denied")
	err := IO(cause, "open temp file")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "open temp file: permission denied", err.Error())
	assert.Nil(t, IO(nil, "noop"))
	assert.False(t, Retryable(nil))
}
