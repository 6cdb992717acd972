package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("cancel order 7: %w", ErrCannotCancel)

	assert.True(t, errors.Is(err, ErrCannotCancel))
	assert.False(t, errors.Is(err, ErrInvalidTransition), "same code, different reason")
	assert.True(t, errors.Is(err, &Error{Code: CodeConflict}), "empty reason matches any reason of the code")

	assert.Equal(t, CodeConflict, CodeOf(err))
	assert.Equal(t, ReasonCannotCancel, ReasonOf(err))
}

func TestUnclassifiedIsInternal(t *testing.T) {
	err := errors.New("driver: bad connection")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Empty(t, ReasonOf(err))

	wrapped := Internal(err)
	assert.ErrorIs(t, wrapped, err)
	assert.Contains(t, wrapped.Error(), "bad connection")
}
