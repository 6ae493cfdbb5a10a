package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelHierarchy(t *testing.T) {
	assert.ErrorIs(t, ErrNoDocumentAtRank, ErrNotFound)
	assert.ErrorIs(t, ErrConnectionNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrDuplicateFeedback, ErrConflict)
	assert.ErrorIs(t, ErrMissingUserID, ErrInvalidInput)
	assert.ErrorIs(t, ErrCompletionUnavailable, ErrUpstream)
	assert.NotErrorIs(t, ErrNoDocumentAtRank, ErrConnectionNotFound)
}

func TestMissingFieldError(t *testing.T) {
	err := fmt.Errorf("submit: %w", &MissingFieldError{Field: "reason"})

	var mf *MissingFieldError
	assert.True(t, errors.As(err, &mf))
	assert.Equal(t, "reason", mf.Field)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "submit: missing required field: reason", err.Error())
}

func TestValidationError(t *testing.T) {
	err := Invalid("responseLength", "must be short, medium or long")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid responseLength: must be short, medium or long", err.Error())
}
