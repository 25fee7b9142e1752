package xpusim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("mesh.build", CodeConfiguration, "nonsquare dims")

	assert.Equal(t, "mesh.build", err.Op)
	assert.Equal(t, CodeConfiguration, err.Code)
	assert.Equal(t, "xpusim: mesh.build: nonsquare dims (configuration)", err.Error())
}

func TestWrapError(t *testing.T) {
	inner := errors.New("boom")
	err := WrapError("tile.run", CodeArithmetic, inner)

	assert.Equal(t, CodeArithmetic, err.Code)
	assert.True(t, errors.Is(err, inner))
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("tile.run", CodeArithmetic, nil))
}

func TestErrorIsClosedSentinel(t *testing.T) {
	err := NewError("chan.dequeue", CodeClosed, "channel drained")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, errors.Is(err, errors.New("unrelated")))
}

func TestIsCode(t *testing.T) {
	err := NewError("tile.new", CodeConfiguration, "bad divisibility")

	assert.True(t, IsCode(err, CodeConfiguration))
	assert.False(t, IsCode(err, CodeUsage))
	assert.False(t, IsCode(nil, CodeConfiguration))
}
