package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesType(t *testing.T) {
	err := Wrap(NewValidation("bad payload"), "submit")

	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "submit: bad payload")
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestWrap_ForeignErrorBecomesInternal(t *testing.T) {
	err := Wrap(fmt.Errorf("boom"), "store")

	assert.True(t, IsInternal(err))
	assert.True(t, IsRetryable(err))
}

func TestUnknownGraph(t *testing.T) {
	err := UnknownGraph("g1")

	assert.True(t, stderrors.Is(err, ErrUnknownGraph))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), `"g1"`)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewConflict("version mismatch")))
	assert.True(t, IsRetryable(NewUnavailable("broker", fmt.Errorf("timeout"))))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", NewConflict("x"))))
	assert.False(t, IsRetryable(NewValidation("nope")))
	assert.False(t, IsRetryable(nil))
}
