package pgerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesStack(t *testing.T) {
	base := New(KindConnection, "dial failed")
	wrapped := Wrap(base, KindTarget, "write rejected")
	assert.Equal(t, base.Stack, wrapped.Stack)
	assert.True(t, errors.Is(wrapped, wrapped))
}

func TestIsRetryableOnlyConnection(t *testing.T) {
	assert.True(t, IsRetryable(New(KindConnection, "x")))
	assert.False(t, IsRetryable(New(KindDataValidation, "x")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 2, ExitCode(New(KindConfiguration, "x")))
	assert.Equal(t, 3, ExitCode(New(KindDataValidation, "x")))
	assert.Equal(t, 3, ExitCode(New(KindSchemaInference, "x")))
	assert.Equal(t, 4, ExitCode(New(KindTransform, "x")))
	assert.Equal(t, 1, ExitCode(New(KindConnection, "x")))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(KindDataValidation, "bad row").WithDetail("column", "email").WithDetail("row", 3)
	assert.Equal(t, "email", err.Details["column"])
	assert.Equal(t, 3, err.Details["row"])
}
