package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("cheque_number", "required for cheque deposits")

	assert.EqualError(t, err, "invalid cheque_number: required for cheque deposits")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestBatchStateErrors(t *testing.T) {
	assert.ErrorIs(t, ErrBatchNotOpen, ErrInvalidState)
	assert.ErrorIs(t, ErrBatchAlreadyPosted, ErrInvalidState)
	assert.NotErrorIs(t, ErrBatchNotOpen, ErrBatchAlreadyPosted)
}

func TestRemote(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Remote("get balance", nil))
	})

	t.Run("unclassified error becomes remote failure", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		err := Remote("get balance", cause)

		assert.ErrorIs(t, err, ErrRemoteFailure)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "get balance")
	})

	t.Run("classified error keeps its kind", func(t *testing.T) {
		cause := fmt.Errorf("resident 42: %w", ErrNotFound)
		err := Remote("get balance", cause)

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrRemoteFailure)
	})
}
