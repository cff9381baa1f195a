package dagerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDagError_Error(t *testing.T) {
	e := New(CodeCorruption, "low > high")
	assert.Equal(t, "[CORRUPTION] low > high", e.Error())

	wrapped := Wrap(CodeIo, "flush failed", errors.New("disk full"))
	assert.Equal(t, "[IO_ERROR] flush failed: disk full", wrapped.Error())
	assert.Equal(t, "disk full", wrapped.Unwrap().Error())
}

func TestDagError_Is(t *testing.T) {
	err := fnThatFails()
	assert.True(t, IsNameNotFound(err))
	assert.False(t, IsCycle(err))
	assert.Equal(t, CodeNameNotFound, Code(err))
}

func fnThatFails() error {
	return Wrap(CodeNameNotFound, "unknown parent", errors.New("boom"))
}
